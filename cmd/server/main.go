// Package main is the entry point for the storeledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storeledger/internal/core/clock"
	"storeledger/internal/domain"
	"storeledger/internal/domain/auth"
	"storeledger/internal/domain/catalogs"
	"storeledger/internal/domain/documents/purchase"
	"storeledger/internal/domain/documents/receipt"
	"storeledger/internal/domain/registers/stock"
	"storeledger/internal/domain/reports"
	"storeledger/internal/infrastructure/cache"
	"storeledger/internal/infrastructure/config"
	v1 "storeledger/internal/infrastructure/http/v1"
	"storeledger/internal/infrastructure/http/v1/handlers"
	"storeledger/internal/infrastructure/metrics"
	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/internal/infrastructure/storage/postgres/catalog_repo"
	"storeledger/internal/infrastructure/storage/postgres/document_repo"
	"storeledger/internal/infrastructure/storage/postgres/register_repo"
	"storeledger/internal/infrastructure/storage/postgres/report_repo"
	"storeledger/pkg/logger"
	"storeledger/pkg/numerator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     "storeledger-api",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting storeledger server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	poolCfg.TimeZone = cfg.Ledger.TimeZone

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalw("failed to migrate database", "error", err)
		}
	}

	txManager := postgres.NewTxManager(pool)
	m := metrics.New()
	m.RegisterPool(pool)

	clk, err := clock.NewSystem(cfg.Ledger.TimeZone)
	if err != nil {
		log.Fatalw("invalid ledger time zone", "timezone", cfg.Ledger.TimeZone, "error", err)
	}

	// --- Catalogs (optionally cached in Redis) ---
	var lookup catalogs.Lookup = catalog_repo.NewLookup(txManager)
	healthChecks := map[string]handlers.Pinger{"database": pool}

	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer func() { _ = client.Close() }()

		catalogCache := cache.NewCatalogCache(lookup, cache.NewRedisStore(client),
			cache.WithTTL(cfg.Redis.CatalogTTL),
			cache.WithObserver(m.ObserveCache),
		)
		invalidator := cache.NewInvalidator(pool.Pool, catalogCache)
		invalidator.Start(ctx)
		defer invalidator.Stop()

		lookup = catalogCache
		healthChecks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		log.Infow("catalog cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CatalogTTL)
	}

	// --- Ledger services ---
	numbers := numerator.NewWithProvider(func(ctx context.Context) numerator.Querier {
		return txManager.GetQuerier(ctx)
	})
	auditor, err := postgres.NewAuditService(txManager, cfg.Ledger.AuditCompressAbove)
	if err != nil {
		log.Fatalw("failed to initialize audit", "error", err)
	}
	events := postgres.NewOutboxPublisher(txManager)

	stockRepo := register_repo.NewStockRepo(txManager)
	stocks := stock.NewService(stockRepo, lookup, txManager, events, auditor, clk)
	purchases := purchase.NewService(document_repo.NewPurchaseRepo(txManager), stocks, lookup, numbers, txManager, events, auditor, clk)
	receipts := receipt.NewService(document_repo.NewReceiptRepo(txManager), stocks, lookup, numbers, txManager, events, auditor, clk).
		WithCodeAttempts(cfg.Ledger.ReceiptCodeAttempts)

	purchases.Hooks().OnAfterCreate(func(_ context.Context, p *purchase.Purchase) error {
		m.AddAmount(domain.AggregatePurchase, p.TotalAmount)
		return nil
	})
	receipts.Hooks().OnAfterCreate(func(_ context.Context, r *receipt.Receipt) error {
		m.AddAmount(domain.AggregateReceipt, r.Total)
		return nil
	})
	observeLifecycle(purchases.Hooks(), m, domain.AggregatePurchase)
	observeLifecycle(receipts.Hooks(), m, domain.AggregateReceipt)

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Logger:         log,
		Metrics:        m,
		MetricsHandler: m.Handler(),
		HealthChecks:   healthChecks,
		Stocks:         stocks,
		StockRepo:      stockRepo,
		Purchases:      purchases,
		Receipts:       receipts,
		Reports:        reports.NewService(report_repo.NewReportRepo(txManager), clk),
	}
	if cfg.Auth.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
		jwtCfg.Issuer = cfg.Auth.Issuer
		routerCfg.JWTValidator = auth.NewJWTService(jwtCfg)
	} else {
		log.Warn("auth.jwt_secret is empty: API authentication disabled")
	}
	if cfg.Server.IdempotencyEnabled {
		routerCfg.Idempotency = postgres.NewIdempotencyStore(txManager, cfg.Server.IdempotencyTTL, cfg.Server.WriteTimeout*2)
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// observeLifecycle counts every committed create, update and delete of a
// ledger document.
func observeLifecycle[T any](hooks *domain.HookRegistry[T], m *metrics.Metrics, ledger string) {
	for _, event := range []domain.HookEvent{domain.AfterCreate, domain.AfterUpdate, domain.AfterDelete} {
		event := event
		hooks.On(event, func(context.Context, T) error {
			m.ObserveDocument(ledger, string(event))
			return nil
		})
	}
}
