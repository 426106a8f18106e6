package receipt

import (
	"context"

	"storeledger/internal/core/id"
	"storeledger/internal/domain"
)

// Repository defines data access for receipts and their status snapshots.
type Repository interface {
	Create(ctx context.Context, r *Receipt) error

	// Update writes the receipt header with an optimistic version check.
	Update(ctx context.Context, r *Receipt) error

	GetByID(ctx context.Context, receiptID id.ID) (*Receipt, error)
	GetForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error)

	// Delete marks the receipt deleted.
	Delete(ctx context.Context, receiptID id.ID) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Receipt], error)

	// CodeExists reports whether a receipt already uses code.
	CodeExists(ctx context.Context, code string) (bool, error)

	AppendSnapshot(ctx context.Context, s *StatusSnapshot) error

	// UpdateSnapshotLines rewrites the lines of an existing snapshot
	// (price corrections on the latest snapshot only).
	UpdateSnapshotLines(ctx context.Context, s *StatusSnapshot) error

	GetSnapshots(ctx context.Context, receiptID id.ID) ([]*StatusSnapshot, error)
}
