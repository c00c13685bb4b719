package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"freshtrace-system/config"
	"freshtrace-system/internal/database"
	"freshtrace-system/internal/ledger"
	"freshtrace-system/internal/pricing"
	"freshtrace-system/internal/registry"
	"freshtrace-system/internal/reward"
	"freshtrace-system/internal/storage"
	"freshtrace-system/internal/storage/memory"
	"freshtrace-system/internal/storage/postgres"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	var store storage.Store
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage, data will not survive a restart")
		store = memory.New()
	case "postgres":
		db, err := database.NewConnection(cfg.DB.DSN())
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		if err := database.Migrate(db); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		store = postgres.New(db)
	default:
		logger.Fatal("unknown storage driver", zap.String("driver", cfg.Storage.Driver))
	}

	rdb := config.NewRedisClient(cfg.Redis)

	var prices pricing.Source
	if cfg.Pricing.MarketAPIURL != "" {
		prices = pricing.NewCachedSource(rdb, pricing.NewHTTPSource(cfg.Pricing.MarketAPIURL), CACHE_TTL_MARKET)
		logger.Info("market price lookups enabled", zap.String("url", cfg.Pricing.MarketAPIURL))
	}

	registrySvc := registry.NewService(store, cfg.Codec.LinkBaseURL, logger)
	ledgerSvc := ledger.NewService(store, prices, logger)
	rewardSvc := reward.NewService(store)

	r := buildRouter(cfg, rdb, store, registrySvc, ledgerSvc, rewardSvc, logger)

	logger.Info("server listening", zap.String("port", cfg.HTTP.Port))
	if err := r.Run(":" + cfg.HTTP.Port); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
