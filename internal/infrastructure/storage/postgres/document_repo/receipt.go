package document_repo

import (
	"context"
	"strconv"

	"github.com/Masterminds/squirrel"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
	"storeledger/internal/domain/documents/receipt"
	"storeledger/internal/infrastructure/storage/postgres"
)

const (
	receiptsTable        = "doc_receipts"
	receiptStatusesTable = "doc_receipt_statuses"
)

// ReceiptRepo implements receipt.Repository.
type ReceiptRepo struct {
	*BaseDocumentRepo[*receipt.Receipt]
	snapshots *SnapshotRepo[receipt.StatusSnapshot]
}

// NewReceiptRepo creates a new receipt repository.
func NewReceiptRepo(txManager *postgres.TxManager) *ReceiptRepo {
	base := NewBaseDocumentRepo(
		txManager,
		receiptsTable,
		postgres.ExtractDBColumns[receipt.Receipt](),
		func() *receipt.Receipt { return &receipt.Receipt{} },
	)
	base.counterpartyCol = "client_id"
	base.stateFilter = func(state string) (squirrel.Sqlizer, error) {
		code, err := strconv.Atoi(state)
		if err != nil || code < int(receipt.StatusPending) || code > int(receipt.StatusReturned) {
			return nil, apperror.NewValidation("unknown receipt status").WithDetail("state", state)
		}
		return squirrel.Eq{"status": code}, nil
	}

	return &ReceiptRepo{
		BaseDocumentRepo: base,
		snapshots:        NewSnapshotRepo[receipt.StatusSnapshot](txManager, receiptStatusesTable, "receipt_id"),
	}
}

// CodeExists reports whether a receipt, deleted or not, already uses code.
func (r *ReceiptRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	return r.Exists(ctx, squirrel.Eq{"number": code})
}

func (r *ReceiptRepo) AppendSnapshot(ctx context.Context, s *receipt.StatusSnapshot) error {
	return r.snapshots.Append(ctx, s)
}

func (r *ReceiptRepo) UpdateSnapshotLines(ctx context.Context, s *receipt.StatusSnapshot) error {
	return r.snapshots.UpdateLines(ctx, s.ID, s.Lines)
}

func (r *ReceiptRepo) GetSnapshots(ctx context.Context, receiptID id.ID) ([]*receipt.StatusSnapshot, error) {
	return r.snapshots.List(ctx, receiptID)
}

var _ receipt.Repository = (*ReceiptRepo)(nil)
