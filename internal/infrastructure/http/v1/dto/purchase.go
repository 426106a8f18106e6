package dto

import (
	"time"

	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/documents/purchase"
)

// CreatePurchaseRequest records a supplier purchase.
type CreatePurchaseRequest struct {
	SupplierID string                `json:"supplierId" binding:"required,uuid"`
	Lines      []PurchaseLineRequest `json:"lines" binding:"required,min=1,dive"`
	Amount     types.Money           `json:"amount" binding:"decimal_gte0"`
	Discount   types.Money           `json:"discount" binding:"decimal_gte0"`
	Comment    string                `json:"comment,omitempty" binding:"max=1000"`
}

// PurchaseLineRequest is one purchased product, counted in boxes.
type PurchaseLineRequest struct {
	ProductID      string      `json:"productId" binding:"required,uuid"`
	Boxes          int64       `json:"boxes" binding:"required,gt=0"`
	BuyingPrice    types.Money `json:"buyingPrice" binding:"decimal_gt0"`
	SellingPrice   types.Money `json:"sellingPrice" binding:"decimal_gt0"`
	ExpirationDate *time.Time  `json:"expirationDate,omitempty"`
}

// ToInput converts request to the domain input.
func (r *CreatePurchaseRequest) ToInput(storeID id.ID) purchase.CreateInput {
	supplierID, _ := id.Parse(r.SupplierID)
	in := purchase.CreateInput{
		StoreID:    storeID,
		SupplierID: supplierID,
		Amount:     r.Amount,
		Discount:   r.Discount,
		Comment:    r.Comment,
		Lines:      make([]purchase.LineItem, len(r.Lines)),
	}
	for i, l := range r.Lines {
		productID, _ := id.Parse(l.ProductID)
		in.Lines[i] = purchase.LineItem{
			ProductID:      productID,
			Boxes:          l.Boxes,
			BuyingPrice:    l.BuyingPrice,
			SellingPrice:   l.SellingPrice,
			ExpirationDate: l.ExpirationDate,
		}
	}
	return in
}

// PurchaseSnapshotRequest appends a SousPurchase.
type PurchaseSnapshotRequest struct {
	Adjustments []PurchaseAdjustmentRequest `json:"adjustments" binding:"required,min=1,dive"`
}

// PurchaseAdjustmentRequest removes units of one batch.
type PurchaseAdjustmentRequest struct {
	BatchID  string `json:"sousStock" binding:"required,uuid"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

// ToAdjustments converts request to domain adjustments.
func (r *PurchaseSnapshotRequest) ToAdjustments() []purchase.Adjustment {
	out := make([]purchase.Adjustment, len(r.Adjustments))
	for i, a := range r.Adjustments {
		batchID, _ := id.Parse(a.BatchID)
		out[i] = purchase.Adjustment{BatchID: batchID, Quantity: a.Quantity}
	}
	return out
}
