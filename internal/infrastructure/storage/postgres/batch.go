package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchInserter bulk-loads rows with the COPY protocol. StockStatus batches
// of a multi-line purchase and seed catalogs go through it.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice inserts rows (each matching columns) into table.
// It must run inside a unit of work so that a failed COPY rolls back with
// the rest of the ledger mutation.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// BatchQuery is one statement of a pipelined batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// ExecBatch sends queries in a single round-trip using the querier of ctx.
func ExecBatch(ctx context.Context, q Querier, queries []BatchQuery) error {
	if len(queries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, query := range queries {
		batch.Queue(query.SQL, query.Args...)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch query %d: %w", i, err)
		}
	}
	return nil
}
