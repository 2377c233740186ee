// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"shopmirror/internal/domain/catalog"
	"shopmirror/internal/domain/customer"
	"shopmirror/internal/domain/inventory"
	"shopmirror/internal/domain/subscription"
	"shopmirror/internal/infrastructure/http/v1/handlers"
	"shopmirror/internal/infrastructure/http/v1/middleware"
	"shopmirror/internal/infrastructure/storage/postgres"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/webhook"
	"shopmirror/pkg/logger"
)

// RouterConfig holds the wired application for the HTTP surface.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// Domain services.
	Customers     *customer.Service
	Catalog       *catalog.Service
	Inventory     *inventory.Service
	Subscriptions *subscription.Service

	// Sync engine surfaces.
	Registry   *enginesync.Registry
	Dispatcher *dispatch.Dispatcher
	Gateway    *webhook.Gateway
	Limiter    *platform.Limiter
	Failed     map[enginesync.Kind]handlers.FailedLister
	History    handlers.HistoryReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()

	// Webhooks sit outside /api: the platform signs the raw body and the
	// path is registered with the platform verbatim.
	webhookHandler := handlers.NewWebhookHandler(baseHandler, cfg.Gateway)
	webhookHandler.RegisterRoutes(router.Group("/webhooks"))

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		customerHandler := handlers.NewCustomerHandler(baseHandler, cfg.Customers)
		customerHandler.RegisterRoutes(apiV1.Group("/customers"))

		productHandler := handlers.NewProductHandler(baseHandler, cfg.Catalog)
		productHandler.RegisterRoutes(apiV1.Group("/products"))

		inventoryHandler := handlers.NewInventoryHandler(baseHandler, cfg.Inventory)
		inventoryHandler.RegisterRoutes(apiV1.Group("/inventory-levels"))

		subscriptionHandler := handlers.NewSubscriptionHandler(baseHandler, cfg.Subscriptions)
		subscriptionHandler.RegisterContractRoutes(apiV1.Group("/subscription-contracts"))
		subscriptionHandler.RegisterPlanRoutes(apiV1.Group("/selling-plans"))

		syncHandler := handlers.NewSyncHandler(
			baseHandler,
			cfg.Registry,
			cfg.Dispatcher,
			cfg.Gateway,
			cfg.Limiter,
			cfg.Failed,
			cfg.History,
		)
		syncHandler.RegisterRoutes(apiV1.Group("/sync"))
	}

	return router
}
