package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"freshtrace-system/config"
	"freshtrace-system/internal/gateway/handlers"
	"freshtrace-system/internal/gateway/middleware"
	"freshtrace-system/internal/ledger"
	"freshtrace-system/internal/registry"
	"freshtrace-system/internal/reward"
	"freshtrace-system/internal/storage"
)

// CACHE_TTL_MARKET bounds how stale a cached market quote may get.
const CACHE_TTL_MARKET = time.Hour

const rateLimitFormat = "60-M"

func buildRouter(
	cfg config.Config,
	rdb *redis.Client,
	store storage.Store,
	registrySvc *registry.Service,
	ledgerSvc *ledger.Service,
	rewardSvc *reward.Service,
	logger *zap.Logger,
) *gin.Engine {
	userHandler := handlers.NewUserHandler(store, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, logger)
	batchHandler := handlers.NewBatchHandler(registrySvc)
	ledgerHandler := handlers.NewLedgerHandler(ledgerSvc, rdb)
	insightsHandler := handlers.NewInsightsHandler(ledgerSvc, rdb, logger)
	rewardsHandler := handlers.NewRewardsHandler(rewardSvc)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(rateLimitFormat))

	r.GET("/health", healthHandler)

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/register", userHandler.Register)
			auth.POST("/login", userHandler.Login)
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth([]byte(cfg.Auth.JWTSecret)))
	{
		protected.GET("/me", userHandler.Me)

		batches := protected.Group("/batches")
		{
			batches.POST("", batchHandler.CreateBatch)
			batches.GET("", batchHandler.ListBatches)
			batches.GET("/stats", batchHandler.Stats)
		}
		protected.GET("/scan", batchHandler.Resolve)

		inventory := protected.Group("/inventory")
		{
			inventory.GET("", ledgerHandler.Inventory)
			inventory.POST("/shipments", ledgerHandler.ReceiveShipment)
			inventory.POST("/sales", ledgerHandler.RecordSale)
			inventory.POST("/sales/scan", ledgerHandler.QuickScan)
			inventory.POST("/write-off/:batchID", ledgerHandler.WriteOff)
		}

		donations := protected.Group("/donations")
		{
			donations.POST("", ledgerHandler.CreateDonation)
			donations.GET("", ledgerHandler.Donations)
			donations.POST("/:id/confirm", ledgerHandler.ConfirmDonation)
			donations.GET("/ngos", ledgerHandler.NGOs)
		}

		insights := protected.Group("/insights")
		{
			insights.GET("/alerts", insightsHandler.Alerts)
			insights.GET("/reorder", insightsHandler.ReorderSuggestions)
			insights.GET("/demand/:batchID", insightsHandler.DemandProjection)
		}

		protected.GET("/rewards/balance", rewardsHandler.Balance)
	}

	return r
}
