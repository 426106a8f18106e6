// Package main is the entry point for the storeledger background worker:
// it relays outbox events to Kafka and prunes expired bookkeeping rows.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storeledger/internal/infrastructure/config"
	"storeledger/internal/infrastructure/messaging"
	"storeledger/internal/infrastructure/metrics"
	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/pkg/logger"
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
		Service:     "storeledger-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting storeledger worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
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

	var handler postgres.OutboxHandler = logHandler{log: log.WithComponent("outbox")}
	if cfg.Kafka.Enabled {
		kafkaCfg := messaging.DefaultConfig(cfg.Kafka.Brokers)
		kafkaCfg.TopicPrefix = cfg.Kafka.TopicPrefix
		publisher := messaging.NewPublisher(kafkaCfg, m.ObserveBreaker)
		defer func() { _ = publisher.Close() }()
		handler = publisher
		log.Infow("relaying outbox to kafka", "brokers", cfg.Kafka.Brokers, "topic_prefix", cfg.Kafka.TopicPrefix)
	} else {
		log.Warn("kafka disabled: outbox events are logged and marked published")
	}

	relayCfg := postgres.DefaultRelayConfig()
	relayCfg.BatchSize = cfg.Worker.BatchSize
	relayCfg.MaxAttempts = cfg.Worker.MaxAttempts

	worker := &Worker{
		relay:       postgres.NewOutboxRelay(txManager, handler, relayCfg),
		idempotency: postgres.NewIdempotencyStore(txManager, cfg.Server.IdempotencyTTL, cfg.Server.WriteTimeout*2),
		pool:        pool,
		metrics:     m,
		cfg:         cfg.Worker,
		log:         log.WithComponent("worker"),
	}

	var metricsServer *http.Server
	if cfg.Worker.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	log.Info("worker stopped")
}
