package main

import (
	"context"
	"time"

	"storeledger/internal/infrastructure/config"
	"storeledger/internal/infrastructure/metrics"
	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/pkg/logger"
)

// Relay is the outbox side of the worker.
type Relay interface {
	ProcessBatch(ctx context.Context) (postgres.RelayResult, error)
	MoveToDLQ(ctx context.Context) (int64, error)
	PurgePublished(ctx context.Context, retention time.Duration) (int64, error)
}

// ExpiredCleaner removes expired idempotency keys.
type ExpiredCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Worker polls the outbox and runs periodic housekeeping.
type Worker struct {
	relay       Relay
	idempotency ExpiredCleaner
	pool        *postgres.Pool
	metrics     *metrics.Metrics
	cfg         config.WorkerConfig
	log         *logger.Logger
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

// drain relays batches until the outbox has nothing due.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox relay failed", "error", err)
			return
		}
		w.metrics.ObserveRelay(res)
		if res.Published+res.Failed == 0 {
			return
		}
		w.log.Debugw("outbox batch relayed", "published", res.Published, "failed", res.Failed)
		if res.Failed > 0 {
			// Failed messages are rescheduled with backoff; do not spin on them.
			return
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("move to dead letter failed", "error", err)
	} else if n > 0 {
		w.metrics.OutboxDLQ.Add(float64(n))
		w.log.Warnw("outbox messages moved to dead letter", "count", n)
	}

	if n, err := w.relay.PurgePublished(ctx, w.cfg.PublishedRetention); err != nil {
		w.log.Errorw("purge published outbox failed", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}

	if n, err := w.idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
	} else if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}

	if w.pool != nil {
		w.pool.LogStats(ctx)
	}
}

// logHandler stands in for the broker when Kafka is disabled.
type logHandler struct {
	log *logger.Logger
}

func (h logHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	h.log.WithContext(ctx).Infow("outbox event",
		"event_id", msg.ID,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"event_type", msg.EventType,
	)
	return nil
}
