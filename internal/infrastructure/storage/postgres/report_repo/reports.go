// Package report_repo provides PostgreSQL implementations for report repositories.
package report_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeledger/internal/domain/reports"
	"storeledger/internal/infrastructure/storage/postgres"
)

// paidLateral sums the JSONB payment list of the joined ledger row.
const paidLateral = `CROSS JOIN LATERAL (
	SELECT COALESCE(SUM((e->>'amount')::numeric), 0) AS paid
	FROM jsonb_array_elements(d.payments) e
) pay`

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txManager *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// StockValuation values every stock of the store at batch cost and at the
// current selling price.
func (r *ReportRepo) StockValuation(ctx context.Context, filter reports.StockValuationFilter) ([]reports.StockValuationItem, error) {
	q := r.builder.Select(
		"s.id AS stock_id",
		"s.product_id",
		"p.name AS product_name",
		"p.barcode",
		"s.quantity",
		"COUNT(b.id) AS batches",
		"COALESCE(SUM(b.quantity * b.buying_price), 0) AS cost_value",
		"s.quantity * s.selling_price AS retail_value",
		"MIN(b.expiration_date) FILTER (WHERE b.quantity > 0) AS next_expiration",
	).
		From("reg_stocks s").
		Join("cat_products p ON p.id = s.product_id").
		LeftJoin("reg_stock_statuses b ON b.stock_id = s.id").
		Where(squirrel.Eq{"s.store_id": filter.StoreID}).
		Where("NOT s.deletion_mark")

	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"s.product_id": filter.ProductIDs})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.Gt{"s.quantity": 0})
	}

	q = q.GroupBy("s.id", "p.name", "p.barcode").
		OrderBy("p.name", "s.id").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stock valuation query: %w", err)
	}

	var items []reports.StockValuationItem
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("stock valuation report: %w", err)
	}
	return items, nil
}

// PurchaseSettlement groups the store's purchases by payment state.
func (r *ReportRepo) PurchaseSettlement(ctx context.Context, filter reports.SettlementFilter) ([]reports.SettlementRow, error) {
	return r.settlement(ctx, "doc_purchases", "total_amount", filter)
}

// ReceiptSettlement groups the store's receipts by payment state.
func (r *ReportRepo) ReceiptSettlement(ctx context.Context, filter reports.SettlementFilter) ([]reports.SettlementRow, error) {
	return r.settlement(ctx, "doc_receipts", "total", filter)
}

func (r *ReportRepo) settlement(ctx context.Context, table, totalColumn string, filter reports.SettlementFilter) ([]reports.SettlementRow, error) {
	q := r.builder.Select(
		"d.payment_state AS state",
		"COUNT(*) AS count",
		fmt.Sprintf("COALESCE(SUM(d.%s), 0) AS total", totalColumn),
		"COALESCE(SUM(pay.paid), 0) AS paid",
	).
		From(table + " d").
		JoinClause(paidLateral).
		Where(squirrel.Eq{"d.store_id": filter.StoreID}).
		Where("NOT d.deletion_mark")

	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"d.date": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"d.date": *filter.To})
	}

	sql, args, err := q.GroupBy("d.payment_state").OrderBy("d.payment_state").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s settlement query: %w", table, err)
	}

	var rows []reports.SettlementRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("%s settlement report: %w", table, err)
	}
	return rows, nil
}
