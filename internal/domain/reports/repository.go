package reports

import (
	"context"
)

// Repository defines report data access interface.
type Repository interface {
	// Stock reports
	StockValuation(ctx context.Context, filter StockValuationFilter) ([]StockValuationItem, error)

	// Settlement reports, one row per payment state
	PurchaseSettlement(ctx context.Context, filter SettlementFilter) ([]SettlementRow, error)
	ReceiptSettlement(ctx context.Context, filter SettlementFilter) ([]SettlementRow, error)
}
