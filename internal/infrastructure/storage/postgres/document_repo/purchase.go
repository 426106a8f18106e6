package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
	"storeledger/internal/domain/documents/purchase"
	"storeledger/internal/domain/ledger"
	"storeledger/internal/infrastructure/storage/postgres"
)

const (
	purchasesTable         = "doc_purchases"
	purchaseSnapshotsTable = "doc_purchase_snapshots"
)

// PurchaseRepo implements purchase.Repository.
type PurchaseRepo struct {
	*BaseDocumentRepo[*purchase.Purchase]
	snapshots *SnapshotRepo[purchase.Snapshot]
}

// NewPurchaseRepo creates a new purchase repository.
func NewPurchaseRepo(txManager *postgres.TxManager) *PurchaseRepo {
	base := NewBaseDocumentRepo(
		txManager,
		purchasesTable,
		postgres.ExtractDBColumns[purchase.Purchase](),
		func() *purchase.Purchase { return &purchase.Purchase{} },
	)
	base.counterpartyCol = "supplier_id"
	base.stateFilter = func(state string) (squirrel.Sqlizer, error) {
		if !ledger.State(state).Valid() {
			return nil, apperror.NewValidation("unknown payment state").WithDetail("state", state)
		}
		return squirrel.Eq{"payment_state": state}, nil
	}

	return &PurchaseRepo{
		BaseDocumentRepo: base,
		snapshots:        NewSnapshotRepo[purchase.Snapshot](txManager, purchaseSnapshotsTable, "purchase_id"),
	}
}

func (r *PurchaseRepo) AppendSnapshot(ctx context.Context, s *purchase.Snapshot) error {
	return r.snapshots.Append(ctx, s)
}

func (r *PurchaseRepo) GetSnapshots(ctx context.Context, purchaseID id.ID) ([]*purchase.Snapshot, error) {
	return r.snapshots.List(ctx, purchaseID)
}

var _ purchase.Repository = (*PurchaseRepo)(nil)
