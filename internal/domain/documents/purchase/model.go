// Package purchase provides the supplier purchase ledger and its chain of
// SousPurchase snapshots.
package purchase

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/ledger"
)

// Purchase is one supplier transaction.
type Purchase struct {
	entity.Document

	SupplierID id.ID `db:"supplier_id" json:"supplierId"`

	// TotalAmount is the discounted amount owed for the latest snapshot
	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`

	// Discount is a percentage in [0, 100]
	Discount types.Money `db:"discount" json:"discount"`

	ledger.Settlement

	// Snapshots is the SousPurchase chain, oldest first
	Snapshots []*Snapshot `db:"-" json:"sousPurchases,omitempty"`
}

// Validate implements entity.Validatable.
func (p *Purchase) Validate(ctx context.Context) error {
	if err := p.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(p.SupplierID) {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplierId")
	}
	if !types.ValidPercent(p.Discount) {
		return apperror.NewValidation("discount must be between 0 and 100").
			WithDetail("discount", p.Discount.String())
	}
	if p.TotalAmount.IsNegative() {
		return apperror.NewValidation("total amount must not be negative")
	}
	return nil
}

// Latest returns the most recent snapshot, nil when the chain is not loaded.
func (p *Purchase) Latest() *Snapshot {
	if len(p.Snapshots) == 0 {
		return nil
	}
	return p.Snapshots[len(p.Snapshots)-1]
}

// BatchIDs returns the StockStatus batches created by the purchase.
func (p *Purchase) BatchIDs() []id.ID {
	if len(p.Snapshots) == 0 {
		return nil
	}
	first := p.Snapshots[0]
	ids := make([]id.ID, len(first.Lines))
	for i, l := range first.Lines {
		ids[i] = l.BatchID
	}
	return ids
}

// Snapshot is one SousPurchase: the outstanding quantity per batch at Date.
// Snapshots are never modified after they are written.
type Snapshot struct {
	ID         id.ID     `db:"id" json:"id"`
	PurchaseID id.ID     `db:"purchase_id" json:"purchaseId"`
	Seq        int       `db:"seq" json:"seq"`
	Date       time.Time `db:"date" json:"date"`
	Lines      Lines     `db:"lines" json:"sousStocks"`
}

// Line is the outstanding quantity of one StockStatus batch.
type Line struct {
	BatchID  id.ID       `json:"sousStock"`
	StockID  id.ID       `json:"stock"`
	Quantity int64       `json:"quantity"`
	Price    types.Money `json:"price"`
}

// Lines is stored as a JSONB array.
type Lines []Line

// Value implements driver.Valuer.
func (l Lines) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *Lines) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = Lines{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("purchase lines: unsupported source type %T", src)
	}
}

// LineItem is one line of a new purchase: Boxes boxes of a product at
// per-unit prices.
type LineItem struct {
	ProductID      id.ID
	Boxes          int64
	BuyingPrice    types.Money
	SellingPrice   types.Money
	ExpirationDate *time.Time
}

// CreateInput is the payload of CreatePurchase.
type CreateInput struct {
	StoreID    id.ID
	SupplierID id.ID
	Lines      []LineItem
	// Amount is the caller's pre-discount total, checked against the lines
	Amount   types.Money
	Discount types.Money
	Comment  string
}

// Adjustment subtracts Quantity units from the outstanding quantity of a batch.
type Adjustment struct {
	BatchID  id.ID
	Quantity int64
}
