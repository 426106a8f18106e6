package stock

import (
	"context"

	"storeledger/internal/core/id"
)

// Filter narrows stock listings.
type Filter struct {
	StoreID     id.ID
	ProductIDs  []id.ID
	ExcludeZero bool
}

// Repository defines data access for stocks and their batches.
type Repository interface {
	// GetByID returns a stock or NotFound.
	GetByID(ctx context.Context, stockID id.ID) (*Stock, error)

	// GetForUpdate returns a stock locked for the rest of the transaction.
	GetForUpdate(ctx context.Context, stockID id.ID) (*Stock, error)

	// FindForUpdate locks the stock of (store, product), NotFound if none exists.
	FindForUpdate(ctx context.Context, storeID, productID id.ID) (*Stock, error)

	// Create inserts a new stock.
	Create(ctx context.Context, s *Stock) error

	// Update writes the stock if its version is unchanged and bumps the version.
	// A lost race is a ConcurrentModification error.
	Update(ctx context.Context, s *Stock) error

	// List returns the stocks matching filter.
	List(ctx context.Context, filter Filter) ([]*Stock, error)

	// CreateBatches inserts batches.
	CreateBatches(ctx context.Context, batches []*Batch) error

	// GetBatch returns a batch or NotFound.
	GetBatch(ctx context.Context, batchID id.ID) (*Batch, error)

	// GetBatchForUpdate returns a batch locked until the transaction ends.
	GetBatchForUpdate(ctx context.Context, batchID id.ID) (*Batch, error)

	// ListBatches returns the batches of a stock, oldest first.
	ListBatches(ctx context.Context, stockID id.ID) ([]*Batch, error)

	// UpdateBatch writes a batch.
	UpdateBatch(ctx context.Context, b *Batch) error

	// DeleteBatch removes a batch.
	DeleteBatch(ctx context.Context, batchID id.ID) error

	// CountBatches returns how many of batchIDs still exist.
	CountBatches(ctx context.Context, batchIDs []id.ID) (int, error)
}
