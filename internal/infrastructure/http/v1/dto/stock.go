package dto

import (
	"time"

	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/registers/stock"
)

// AddBatchRequest receives units into a store's stock of a product.
type AddBatchRequest struct {
	ProductID      string      `json:"productId" binding:"required,uuid"`
	Quantity       int64       `json:"quantity" binding:"required,gt=0"`
	BuyingPrice    types.Money `json:"buyingPrice" binding:"decimal_gt0"`
	SellingPrice   types.Money `json:"sellingPrice" binding:"decimal_gt0"`
	ExpirationDate *time.Time  `json:"expirationDate,omitempty"`
}

// ProductRef returns the parsed product id.
func (r *AddBatchRequest) ProductRef() id.ID {
	productID, _ := id.Parse(r.ProductID)
	return productID
}

// ToInput converts request to the domain input.
func (r *AddBatchRequest) ToInput() stock.BatchInput {
	return stock.BatchInput{
		Quantity:       r.Quantity,
		BuyingPrice:    r.BuyingPrice,
		SellingPrice:   r.SellingPrice,
		ExpirationDate: r.ExpirationDate,
	}
}

// PlacementResponse is the outcome of AddBatch.
type PlacementResponse struct {
	Stock   *stock.Stock `json:"stock"`
	Batch   *stock.Batch `json:"batch"`
	Created bool         `json:"created"`
}

// FromPlacement converts the domain result.
func FromPlacement(p *stock.Placement) PlacementResponse {
	return PlacementResponse{Stock: p.Stock, Batch: p.Batch, Created: p.Created}
}

// StockListRequest filters a store's stocks.
type StockListRequest struct {
	ProductIDs  []string `form:"productId" binding:"omitempty,dive,uuid"`
	ExcludeZero bool     `form:"excludeZero"`
}

// ToFilter builds the domain filter for storeID.
func (r *StockListRequest) ToFilter(storeID id.ID) stock.Filter {
	f := stock.Filter{StoreID: storeID, ExcludeZero: r.ExcludeZero}
	for _, s := range r.ProductIDs {
		productID, _ := id.Parse(s)
		f.ProductIDs = append(f.ProductIDs, productID)
	}
	return f
}

// UpdateSettingsRequest edits the sale settings of a stock.
type UpdateSettingsRequest struct {
	QuantityLimit *int64       `json:"quantityLimit,omitempty" binding:"omitempty,gte=0"`
	BuyingMethod  *string      `json:"buyingMethod,omitempty" binding:"omitempty,oneof=unit box both"`
	SellingPrice  *types.Money `json:"sellingPrice,omitempty" binding:"omitempty,decimal_gt0"`
}

// ToSettings converts request to the domain edit.
func (r *UpdateSettingsRequest) ToSettings() stock.Settings {
	s := stock.Settings{
		QuantityLimit: r.QuantityLimit,
		SellingPrice:  r.SellingPrice,
	}
	if r.BuyingMethod != nil {
		m := stock.BuyingMethod(*r.BuyingMethod)
		s.BuyingMethod = &m
	}
	return s
}

// RecordLossRequest writes units off a stock.
type RecordLossRequest struct {
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
	Reason   string `json:"reason" binding:"required,max=500"`
}

// UpdateBatchRequest edits a StockStatus batch; absent fields are kept.
type UpdateBatchRequest struct {
	Quantity       *int64       `json:"quantity,omitempty" binding:"omitempty,gt=0"`
	BuyingPrice    *types.Money `json:"buyingPrice,omitempty" binding:"omitempty,decimal_gt0"`
	SellingPrice   *types.Money `json:"sellingPrice,omitempty" binding:"omitempty,decimal_gt0"`
	ExpirationDate *time.Time   `json:"expirationDate,omitempty"`
}

// ToChange converts request to the domain edit.
func (r *UpdateBatchRequest) ToChange() stock.BatchChange {
	return stock.BatchChange{
		Quantity:       r.Quantity,
		BuyingPrice:    r.BuyingPrice,
		SellingPrice:   r.SellingPrice,
		ExpirationDate: r.ExpirationDate,
	}
}
