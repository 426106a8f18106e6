// Package tx provides the unit-of-work abstraction used by ledger services.
// Domain code depends on these interfaces; the Postgres implementation
// lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a group of ledger writes atomically.
//
// Every ledger mutation (stock, batches, purchase, receipt, outbox event)
// is expressed as a closure passed to RunInTransaction, so either all of its
// writes are committed or none are.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back and that error is returned.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
