package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/id"
	"storeledger/internal/domain"
	"storeledger/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxMessage is one row of sys_outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"` // purchase, receipt, stock
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"` // e.g. purchase.created
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// eventEnvelope is the JSON stored in sys_outbox.payload.
type eventEnvelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	RequestID  string    `json:"requestId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Data       any       `json:"data"`
}

// OutboxPublisher writes domain events to sys_outbox in the caller's
// transaction. It implements domain.EventPublisher.
type OutboxPublisher struct {
	txManager *TxManager
}

var _ domain.EventPublisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes an event to the outbox.
// MUST be called inside a transaction context.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.Event) error {
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(eventEnvelope{
		Type:       event.Type,
		OccurredAt: now,
		RequestID:  appctx.GetRequestID(ctx),
		UserID:     appctx.GetUserID(ctx),
		Data:       event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id.New(), event.AggregateType, event.AggregateID, event.Type, payload, OutboxStatusPending, now)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxHandler delivers one outbox message to the broker.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRelayConfig returns the worker defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:   100,
		MaxAttempts: 5,
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  10 * time.Minute,
	}
}

// RelayResult summarises one relay pass.
type RelayResult struct {
	Published int
	Failed    int
}

// OutboxRelay claims pending messages and hands them to an OutboxHandler.
// Claims use FOR UPDATE SKIP LOCKED so several workers can run side by side.
type OutboxRelay struct {
	txManager *TxManager
	handler   OutboxHandler
	cfg       RelayConfig
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, handler OutboxHandler, cfg RelayConfig) *OutboxRelay {
	return &OutboxRelay{txManager: txManager, handler: handler, cfg: cfg}
}

// ProcessBatch claims up to BatchSize due messages and delivers them.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (RelayResult, error) {
	var res RelayResult
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, q, &messages, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("claim outbox messages: %w", err)
		}

		updates := make([]BatchQuery, 0, len(messages))
		now := time.Now().UTC()
		for _, msg := range messages {
			if err := r.handler.Handle(ctx, msg); err != nil {
				res.Failed++
				updates = append(updates, r.failure(msg, err, now))
				logger.Warn(ctx, "outbox delivery failed",
					"message_id", msg.ID,
					"event_type", msg.EventType,
					"attempt", msg.RetryCount+1,
					"error", err)
				continue
			}
			res.Published++
			updates = append(updates, BatchQuery{
				SQL:  `UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3`,
				Args: []any{OutboxStatusPublished, now, msg.ID},
			})
		}
		return ExecBatch(ctx, q, updates)
	})
	return res, err
}

// failure schedules the next attempt with exponential backoff, or marks the
// message failed once MaxAttempts is reached.
func (r *OutboxRelay) failure(msg *OutboxMessage, cause error, now time.Time) BatchQuery {
	attempt := msg.RetryCount + 1
	status := OutboxStatusPending
	if attempt >= r.cfg.MaxAttempts {
		status = OutboxStatusFailed
	}
	return BatchQuery{
		SQL: `
			UPDATE sys_outbox
			SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4
			WHERE id = $5`,
		Args: []any{attempt, cause.Error(), now.Add(r.backoff(attempt)), status, msg.ID},
	}
}

func (r *OutboxRelay) backoff(attempt int) time.Duration {
	d := time.Duration(float64(r.cfg.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if d <= 0 || d > r.cfg.MaxBackoff {
		return r.cfg.MaxBackoff
	}
	return d
}

// MoveToDLQ moves failed messages to the dead letter table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq (id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at, failed_at)
		SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at, NOW()
		FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgePublished deletes published messages older than retention.
func (r *OutboxRelay) PurgePublished(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_outbox WHERE status = $1 AND published_at < $2`,
		OutboxStatusPublished, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
