package purchase

import (
	"context"

	"storeledger/internal/core/id"
	"storeledger/internal/domain"
)

// Repository defines data access for purchases and their snapshots.
type Repository interface {
	Create(ctx context.Context, p *Purchase) error

	// Update writes the purchase header with an optimistic version check.
	Update(ctx context.Context, p *Purchase) error

	GetByID(ctx context.Context, purchaseID id.ID) (*Purchase, error)
	GetForUpdate(ctx context.Context, purchaseID id.ID) (*Purchase, error)

	// Delete marks the purchase deleted.
	Delete(ctx context.Context, purchaseID id.ID) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Purchase], error)

	AppendSnapshot(ctx context.Context, s *Snapshot) error
	GetSnapshots(ctx context.Context, purchaseID id.ID) ([]*Snapshot, error)
}
