package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appctx "storeledger/internal/core/context"
	"storeledger/internal/domain/documents/purchase"
	"storeledger/internal/domain/documents/receipt"
	"storeledger/internal/domain/registers/stock"
	"storeledger/internal/domain/reports"
	"storeledger/internal/infrastructure/http/v1/handlers"
	"storeledger/internal/infrastructure/http/v1/middleware"
	"storeledger/pkg/logger"
)

// Observer is the metrics surface used by the router.
type Observer interface {
	middleware.HTTPObserver
	middleware.PanicObserver
	handlers.OperationObserver
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Metrics records HTTP and ledger operation metrics (optional)
	Metrics Observer

	// MetricsHandler serves /metrics (optional)
	MetricsHandler http.Handler

	// JWTValidator enables bearer authentication on /api/v1 when set
	JWTValidator middleware.TokenValidator

	// Idempotency enables X-Idempotency-Key handling when set
	Idempotency middleware.IdempotencyStore

	// HealthChecks are probed by /health/ready
	HealthChecks map[string]handlers.Pinger

	Stocks    *stock.Service
	StockRepo stock.Repository
	Purchases *purchase.Service
	Receipts  *receipt.Service

	// Reports enables the store report routes when set
	Reports *reports.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	middleware.SetupValidator()

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	var panics middleware.PanicObserver
	if cfg.Metrics != nil {
		panics = cfg.Metrics
	}
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery(panics))

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := router.Group("/api/v1")
	if cfg.JWTValidator != nil {
		api.Use(middleware.Auth(cfg.JWTValidator))
	}
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	var observer handlers.OperationObserver
	if cfg.Metrics != nil {
		observer = cfg.Metrics
	}
	base := handlers.NewBaseHandler(observer)
	stores := api.Group("/stores")

	// Clients never reach purchases or reports.
	var storeOnly []gin.HandlerFunc
	if cfg.JWTValidator != nil {
		storeOnly = append(storeOnly, middleware.RequireRole(appctx.RoleAdmin, appctx.RoleStore))
	}

	registerStockRoutes(api, stores, base, cfg)
	registerPurchaseRoutes(api.Group("", storeOnly...), stores.Group("", storeOnly...), base, cfg)
	registerReceiptRoutes(api, stores, base, cfg)
	if cfg.Reports != nil {
		h := handlers.NewReportsHandler(base, cfg.Reports)
		reportRoutes := stores.Group("/:storeId/reports", storeOnly...)
		reportRoutes.GET("/stock-valuation", h.StockValuation)
		reportRoutes.GET("/settlement", h.Settlement)
	}

	return router
}

func registerStockRoutes(api, stores *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewStockHandler(base, cfg.Stocks, cfg.StockRepo)

	stores.GET("/:storeId/stocks", h.List)
	stores.POST("/:storeId/stocks", h.AddBatch)

	stocks := api.Group("/stocks")
	{
		stocks.GET("/:id", h.Get)
		stocks.GET("/:id/batches", h.ListBatches)
		stocks.PATCH("/:id/settings", h.UpdateSettings)
		stocks.POST("/:id/losses", h.RecordLoss)
	}

	batches := api.Group("/batches")
	{
		batches.PATCH("/:id", h.UpdateBatch)
		batches.DELETE("/:id", h.DeleteBatch)
	}
}

func registerPurchaseRoutes(api, stores *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewPurchaseHandler(base, cfg.Purchases)
	RegisterLedgerRoutes(stores, api.Group("/purchases"), "/purchases", h, h)
}

func registerReceiptRoutes(api, stores *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewReceiptHandler(base, cfg.Receipts)
	receipts := api.Group("/receipts")
	RegisterLedgerRoutes(stores, receipts, "/receipts", h, h)

	receipts.POST("/:id/deliver", h.ValidateDelivery)
	receipts.PUT("/:id/expected-delivery", h.UpdateExpectedDelivery)
	receipts.PUT("/:id/lines/price", h.UpdateLinePrice)
	receipts.PUT("/:id/status", h.UpdateStatus)
	receipts.POST("/:id/return", h.Return)
}
