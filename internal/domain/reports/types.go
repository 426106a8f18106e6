// Package reports provides read-only store reports built over the ledgers.
package reports

import (
	"time"

	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
)

// --- Stock Valuation Report ---

// StockValuationFilter defines filter for the stock valuation report.
type StockValuationFilter struct {
	StoreID id.ID

	// Filters
	ProductIDs []id.ID

	// Exclude stocks with zero quantity
	ExcludeZero bool

	// Pagination
	Limit  int
	Offset int
}

// StockValuationItem is one stock row of the valuation report.
type StockValuationItem struct {
	StockID     id.ID  `db:"stock_id" json:"stockId"`
	ProductID   id.ID  `db:"product_id" json:"productId"`
	ProductName string `db:"product_name" json:"productName"`
	Barcode     string `db:"barcode" json:"barcode,omitempty"`
	Quantity    int64  `db:"quantity" json:"quantity"`
	Batches     int64  `db:"batches" json:"batches"`

	// CostValue sums batch quantities at their buying prices.
	CostValue types.Money `db:"cost_value" json:"costValue"`
	// RetailValue is the stock quantity at the current selling price.
	RetailValue types.Money `db:"retail_value" json:"retailValue"`

	NextExpiration *time.Time `db:"next_expiration" json:"nextExpiration,omitempty"`
}

// StockValuationReport is the full stock valuation report.
type StockValuationReport struct {
	StoreID    id.ID                `json:"storeId"`
	AsOf       time.Time            `json:"asOf"`
	Items      []StockValuationItem `json:"items"`
	TotalItems int                  `json:"totalItems"`

	// Summary over the returned page
	TotalQuantity int64       `json:"totalQuantity"`
	TotalCost     types.Money `json:"totalCost"`
	TotalRetail   types.Money `json:"totalRetail"`
}

// --- Settlement Report ---

// SettlementFilter defines filter for the settlement report.
// From and To bound the ledger date (To is exclusive).
type SettlementFilter struct {
	StoreID id.ID
	From    *time.Time
	To      *time.Time
}

// SettlementRow aggregates the ledgers of one payment state.
type SettlementRow struct {
	State       string      `db:"state" json:"state"`
	Count       int64       `db:"count" json:"count"`
	Total       types.Money `db:"total" json:"total"`
	Paid        types.Money `db:"paid" json:"paid"`
	Outstanding types.Money `db:"-" json:"outstanding"`
}

// SettlementReport summarizes what the store owes suppliers (payables)
// and what clients owe the store (receivables).
type SettlementReport struct {
	StoreID id.ID      `json:"storeId"`
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`

	Payables    []SettlementRow `json:"payables"`
	Receivables []SettlementRow `json:"receivables"`

	OutstandingPayables    types.Money `json:"outstandingPayables"`
	OutstandingReceivables types.Money `json:"outstandingReceivables"`
}
