package entity

import (
	"context"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
)

// Document is the base type of store ledgers (purchases, receipts).
type Document struct {
	BaseDocument

	// Number is the human-facing document number (purchase number, receipt code)
	Number string `db:"number" json:"number"`

	// Date is the business date, always taken from the server clock
	Date time.Time `db:"date" json:"date"`

	// StoreID is the owning store
	StoreID id.ID `db:"store_id" json:"storeId"`

	// Comment is an optional free-text note
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new Document owned by storeID and dated now.
func NewDocument(storeID id.ID, now time.Time) Document {
	return Document{
		BaseDocument: NewBaseDocument(now),
		Date:         now,
		StoreID:      storeID,
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if id.IsNil(d.StoreID) {
		return apperror.NewValidation("store is required").
			WithDetail("field", "storeId")
	}
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// GetID returns the document ID.
func (d *Document) GetID() id.ID {
	return d.ID
}
