package dto

import (
	"time"

	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/documents/receipt"
)

// CreateReceiptRequest places a client order.
type CreateReceiptRequest struct {
	ClientID             string               `json:"clientId" binding:"required,uuid"`
	Lines                []ReceiptLineRequest `json:"lines" binding:"required,min=1,dive"`
	Total                types.Money          `json:"total" binding:"decimal_gt0"`
	Type                 string               `json:"type" binding:"required,oneof=delivery pickup"`
	DeliveredLocation    string               `json:"deliveredLocation,omitempty" binding:"max=500"`
	ExpectedDeliveryDate *time.Time           `json:"expectedDeliveryDate,omitempty"`
	DeliveryCost         types.Money          `json:"deliveryCost" binding:"decimal_gte0"`
	Comment              string               `json:"comment,omitempty" binding:"max=1000"`
}

// ReceiptLineRequest is one ordered stock.
type ReceiptLineRequest struct {
	StockID  string      `json:"stockId" binding:"required,uuid"`
	Quantity int64       `json:"quantity" binding:"required,gt=0"`
	Price    types.Money `json:"price" binding:"decimal_gt0"`
}

// ClientRef returns the parsed client id.
func (r *CreateReceiptRequest) ClientRef() id.ID {
	clientID, _ := id.Parse(r.ClientID)
	return clientID
}

// ToInput converts request to the domain input.
func (r *CreateReceiptRequest) ToInput(storeID id.ID) receipt.CreateInput {
	in := receipt.CreateInput{
		StoreID:              storeID,
		ClientID:             r.ClientRef(),
		Total:                r.Total,
		Type:                 receipt.DeliveryType(r.Type),
		DeliveredLocation:    r.DeliveredLocation,
		ExpectedDeliveryDate: r.ExpectedDeliveryDate,
		DeliveryCost:         r.DeliveryCost,
		Comment:              r.Comment,
		Lines:                make([]receipt.LineItem, len(r.Lines)),
	}
	for i, l := range r.Lines {
		stockID, _ := id.Parse(l.StockID)
		in.Lines[i] = receipt.LineItem{StockID: stockID, Quantity: l.Quantity, Price: l.Price}
	}
	return in
}

// LineKeyRequest identifies a receipt line.
type LineKeyRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	StockID   string `json:"stockId" binding:"required,uuid"`
}

// ToKey converts request to the domain key.
func (r LineKeyRequest) ToKey() receipt.LineKey {
	productID, _ := id.Parse(r.ProductID)
	stockID, _ := id.Parse(r.StockID)
	return receipt.LineKey{ProductID: productID, StockID: stockID}
}

// ReceiptSnapshotRequest appends a ReceiptStatus.
type ReceiptSnapshotRequest struct {
	Adjustments []ReceiptAdjustmentRequest `json:"adjustments" binding:"required,min=1,dive"`
}

// ReceiptAdjustmentRequest removes units of one line.
type ReceiptAdjustmentRequest struct {
	LineKeyRequest
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

// ToAdjustments converts request to domain adjustments.
func (r *ReceiptSnapshotRequest) ToAdjustments() []receipt.Adjustment {
	out := make([]receipt.Adjustment, len(r.Adjustments))
	for i, a := range r.Adjustments {
		out[i] = receipt.Adjustment{LineKey: a.ToKey(), Quantity: a.Quantity}
	}
	return out
}

// ExpectedDeliveryRequest moves the expected delivery date.
type ExpectedDeliveryRequest struct {
	Date time.Time `json:"date" binding:"required"`
}

// LinePriceRequest reprices one line of the latest snapshot.
type LinePriceRequest struct {
	LineKeyRequest
	Price types.Money `json:"price" binding:"decimal_gt0"`
}

// StatusRequest sets the fulfilment status code.
type StatusRequest struct {
	Status *int `json:"status" binding:"required,min=0,max=4"`
}

// ReturnRequest marks a receipt returned.
type ReturnRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}
