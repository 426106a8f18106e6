package dto

import (
	"time"

	"storeledger/internal/core/id"
	"storeledger/internal/domain/reports"
)

// StockValuationRequest filters the stock valuation report.
type StockValuationRequest struct {
	ProductIDs  []string `form:"productId" binding:"omitempty,dive,uuid"`
	ExcludeZero bool     `form:"excludeZero"`
	Limit       int      `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset      int      `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter builds the report filter for storeID.
func (r *StockValuationRequest) ToFilter(storeID id.ID) reports.StockValuationFilter {
	f := reports.StockValuationFilter{
		StoreID:     storeID,
		ExcludeZero: r.ExcludeZero,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
	for _, s := range r.ProductIDs {
		productID, _ := id.Parse(s)
		f.ProductIDs = append(f.ProductIDs, productID)
	}
	return f
}

// SettlementRequest bounds the settlement report by ledger date.
type SettlementRequest struct {
	From *time.Time `form:"from" time_format:"2006-01-02"`
	To   *time.Time `form:"to" time_format:"2006-01-02"`
}

// ToFilter builds the report filter for storeID.
func (r *SettlementRequest) ToFilter(storeID id.ID) reports.SettlementFilter {
	return reports.SettlementFilter{StoreID: storeID, From: r.From, To: r.To}
}
