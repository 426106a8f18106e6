// Package receipt provides the client order ledger and its chain of
// ReceiptStatus snapshots.
package receipt

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

// Status is the fulfilment code of a receipt. Codes only move forward.
type Status int

const (
	StatusPending    Status = 0
	StatusAccepted   Status = 1
	StatusInDelivery Status = 2
	StatusDelivered  Status = 3 // set only by ValidateDelivery
	StatusReturned   Status = 4 // set only by Return
)

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned
}

// DeliveryType tells how the client gets the goods.
type DeliveryType string

const (
	TypeDelivery DeliveryType = "delivery"
	TypePickup   DeliveryType = "pickup"
)

// Valid reports whether t is a known delivery type.
func (t DeliveryType) Valid() bool {
	return t == TypeDelivery || t == TypePickup
}

// Receipt is one client order.
type Receipt struct {
	entity.Document

	ClientID id.ID `db:"client_id" json:"clientId"`

	// Total is sum(quantity*price) of the latest snapshot
	Total types.Money `db:"total" json:"total"`

	// Profit is the margin realised by the order, rescaled with Total
	Profit types.Money `db:"profit" json:"profit"`

	DeliveryCost         types.Money  `db:"delivery_cost" json:"deliveryCost"`
	Type                 DeliveryType `db:"delivery_type" json:"type"`
	DeliveredLocation    string       `db:"delivered_location" json:"deliveredLocation,omitempty"`
	ExpectedDeliveryDate *time.Time   `db:"expected_delivery_date" json:"expectedDeliveryDate,omitempty"`
	Delivered            bool         `db:"delivered" json:"delivered"`
	Status               Status       `db:"status" json:"status"`
	ReturnedReason       string       `db:"returned_reason" json:"returnedReason,omitempty"`

	ledger.Settlement

	// Snapshots is the ReceiptStatus chain, oldest first
	Snapshots []*StatusSnapshot `db:"-" json:"products,omitempty"`
}

// Validate implements entity.Validatable.
func (r *Receipt) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(r.ClientID) {
		return apperror.NewValidation("client is required").
			WithDetail("field", "clientId")
	}
	if !r.Type.Valid() {
		return apperror.NewValidation("type must be delivery or pickup").
			WithDetail("type", string(r.Type))
	}
	if r.Type == TypeDelivery && r.DeliveredLocation == "" {
		return apperror.NewValidation("delivered location is required for deliveries").
			WithDetail("field", "deliveredLocation")
	}
	if r.Type == TypePickup && r.DeliveredLocation != "" {
		return apperror.NewValidation("pickups do not take a delivered location").
			WithDetail("field", "deliveredLocation")
	}
	if r.DeliveryCost.IsNegative() {
		return apperror.NewValidation("delivery cost must not be negative").
			WithDetail("deliveryCost", r.DeliveryCost.String())
	}
	return nil
}

// Latest returns the most recent snapshot, nil when the chain is not loaded.
func (r *Receipt) Latest() *StatusSnapshot {
	if len(r.Snapshots) == 0 {
		return nil
	}
	return r.Snapshots[len(r.Snapshots)-1]
}

// StatusSnapshot is one ReceiptStatus: the ordered line items at Date.
type StatusSnapshot struct {
	ID        id.ID     `db:"id" json:"id"`
	ReceiptID id.ID     `db:"receipt_id" json:"receiptId"`
	Seq       int       `db:"seq" json:"seq"`
	Date      time.Time `db:"date" json:"date"`
	Lines     Lines     `db:"lines" json:"products"`
}

// LineKey identifies a line across snapshots.
type LineKey struct {
	ProductID id.ID `json:"product"`
	StockID   id.ID `json:"stock"`
}

// Line is one ordered item.
type Line struct {
	LineKey
	Quantity int64       `json:"quantity"`
	Price    types.Money `json:"price"`
}

// Lines is stored as a JSONB array.
type Lines []Line

// Total returns sum(quantity*price).
func (l Lines) Total() types.Money {
	sum := types.Zero()
	for _, line := range l {
		sum = sum.Add(types.LineAmount(line.Price, line.Quantity))
	}
	return sum
}

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
		return fmt.Errorf("receipt lines: unsupported source type %T", src)
	}
}

// LineItem is one line of a new order.
type LineItem struct {
	StockID  id.ID
	Quantity int64
	Price    types.Money
}

// CreateInput is the payload of CreateReceipt.
type CreateInput struct {
	StoreID  id.ID
	ClientID id.ID
	Lines    []LineItem
	// Total is the caller's declared sum(price*quantity)
	Total                types.Money
	Type                 DeliveryType
	DeliveredLocation    string
	ExpectedDeliveryDate *time.Time
	DeliveryCost         types.Money
	Comment              string
}

// Adjustment subtracts Quantity units from a line of the latest snapshot.
type Adjustment struct {
	LineKey
	Quantity int64
}
