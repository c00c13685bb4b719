package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"freshtrace-system/internal/ledger"
)

const (
	ALERTS_CACHE_PREFIX  = "insights:alerts:"
	REORDER_CACHE_PREFIX = "insights:reorder:"
	DEMAND_CACHE_PREFIX  = "insights:demand:"
	CACHE_TTL_SHORT      = 5 * time.Minute
)

// InvalidateInsightsCaches drops the cached analyses for a retailer after a
// stock mutation. batchIDs scope the demand entries to drop.
func InvalidateInsightsCaches(ctx context.Context, rdb *redis.Client, retailerID int64, batchIDs ...int64) {
	keys := []string{
		fmt.Sprintf("%s%d", ALERTS_CACHE_PREFIX, retailerID),
		fmt.Sprintf("%s%d", REORDER_CACHE_PREFIX, retailerID),
	}
	for _, batchID := range batchIDs {
		keys = append(keys, fmt.Sprintf("%s%d:%d", DEMAND_CACHE_PREFIX, retailerID, batchID))
	}
	_ = rdb.Del(ctx, keys...)
}

type InsightsHandler struct {
	ledger *ledger.Service
	redis  *redis.Client
	log    *zap.Logger
}

func NewInsightsHandler(svc *ledger.Service, redisClient *redis.Client, log *zap.Logger) *InsightsHandler {
	return &InsightsHandler{ledger: svc, redis: redisClient, log: log}
}

// cached serves the payload from redis when fresh, otherwise computes and
// stores it. Cache failures fall through to a live computation.
func (h *InsightsHandler) cached(c *gin.Context, key string, compute func() (interface{}, error)) {
	ctx := c.Request.Context()
	if raw, err := h.redis.Get(ctx, key).Result(); err == nil {
		var data interface{}
		if json.Unmarshal([]byte(raw), &data) == nil {
			success(c, data)
			return
		}
	}

	data, err := compute()
	if err != nil {
		failErr(c, err)
		return
	}
	if raw, err := json.Marshal(data); err == nil {
		if err := h.redis.Set(ctx, key, raw, CACHE_TTL_SHORT).Err(); err != nil {
			h.log.Warn("insights cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	success(c, data)
}

func (h *InsightsHandler) Alerts(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	key := fmt.Sprintf("%s%d", ALERTS_CACHE_PREFIX, ident.UserID)
	h.cached(c, key, func() (interface{}, error) {
		return h.ledger.Alerts(c.Request.Context(), ident)
	})
}

func (h *InsightsHandler) ReorderSuggestions(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	key := fmt.Sprintf("%s%d", REORDER_CACHE_PREFIX, ident.UserID)
	h.cached(c, key, func() (interface{}, error) {
		return h.ledger.ReorderSuggestions(c.Request.Context(), ident)
	})
}

func (h *InsightsHandler) DemandProjection(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	batchID, ok := parseID(c, "batchID")
	if !ok {
		return
	}
	key := fmt.Sprintf("%s%d:%d", DEMAND_CACHE_PREFIX, ident.UserID, batchID)
	h.cached(c, key, func() (interface{}, error) {
		return h.ledger.DemandProjection(c.Request.Context(), ident, batchID)
	})
}
