package domain

import (
	"context"

	"storeledger/internal/core/id"
)

// Aggregate types carried by ledger events.
const (
	AggregatePurchase = "purchase"
	AggregateReceipt  = "receipt"
	AggregateStock    = "stock"
)

// Event is a ledger fact recorded in the same transaction as the write that
// produced it and relayed to subscribers later.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	Type          string
	Payload       any
}

// EventPublisher records events. Implementations must write through the
// transaction carried by ctx.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Audit actions.
const (
	AuditDelete = "delete"
	AuditLoss   = "loss"
	AuditUpdate = "update"
)

// Auditor keeps a durable trail of destructive ledger mutations.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, before, after any) error
}

// NopAuditor discards audit records.
type NopAuditor struct{}

// LogChange implements Auditor.
func (NopAuditor) LogChange(context.Context, string, id.ID, string, any, any) error { return nil }
