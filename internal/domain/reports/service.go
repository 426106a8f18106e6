package reports

import (
	"context"
	"fmt"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/ledger"
)

// Service provides report generation operations.
type Service struct {
	repo  Repository
	clock clock.Clock
}

// NewService creates a new reports service.
func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk}
}

// GetStockValuation generates the stock valuation report of one store.
func (s *Service) GetStockValuation(ctx context.Context, filter StockValuationFilter) (*StockValuationReport, error) {
	if id.IsNil(filter.StoreID) {
		return nil, apperror.NewValidation("storeId is required")
	}

	// Set default pagination
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}

	items, err := s.repo.StockValuation(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get stock valuation report: %w", err)
	}
	if items == nil {
		items = []StockValuationItem{}
	}

	report := &StockValuationReport{
		StoreID:     filter.StoreID,
		AsOf:        s.clock.Now(),
		Items:       items,
		TotalItems:  len(items),
		TotalCost:   types.Zero(),
		TotalRetail: types.Zero(),
	}
	for _, item := range items {
		report.TotalQuantity += item.Quantity
		report.TotalCost = report.TotalCost.Add(item.CostValue)
		report.TotalRetail = report.TotalRetail.Add(item.RetailValue)
	}
	return report, nil
}

// GetSettlement generates the payables/receivables summary of one store.
func (s *Service) GetSettlement(ctx context.Context, filter SettlementFilter) (*SettlementReport, error) {
	if id.IsNil(filter.StoreID) {
		return nil, apperror.NewValidation("storeId is required")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, apperror.NewValidation("from must be before to")
	}

	payables, err := s.repo.PurchaseSettlement(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get purchase settlement: %w", err)
	}
	receivables, err := s.repo.ReceiptSettlement(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get receipt settlement: %w", err)
	}

	report := &SettlementReport{
		StoreID: filter.StoreID,
		From:    filter.From,
		To:      filter.To,
	}
	report.Payables, report.OutstandingPayables = withOutstanding(payables)
	report.Receivables, report.OutstandingReceivables = withOutstanding(receivables)
	return report, nil
}

// withOutstanding fills Outstanding per row and returns the rows with their sum.
// Closed states owe nothing regardless of the recorded payments.
func withOutstanding(rows []SettlementRow) ([]SettlementRow, types.Money) {
	sum := types.Zero()
	out := make([]SettlementRow, 0, len(rows))
	for _, row := range rows {
		row.Outstanding = types.Zero()
		st := ledger.Settlement{State: ledger.State(row.State)}
		if !st.Closed() && row.Total.GreaterThan(row.Paid) {
			row.Outstanding = row.Total.Sub(row.Paid)
		}
		sum = sum.Add(row.Outstanding)
		out = append(out, row)
	}
	return out, sum
}
