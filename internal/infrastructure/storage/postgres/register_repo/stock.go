// Package register_repo provides the PostgreSQL implementation of the stock register.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
	"storeledger/internal/domain/registers/stock"
	"storeledger/internal/infrastructure/storage/postgres"
)

const (
	stocksTable        = "reg_stocks"
	stockStatusesTable = "reg_stock_statuses"
)

var (
	stockColumns = postgres.ExtractDBColumns[stock.Stock]()
	batchColumns = postgres.ExtractDBColumns[stock.Batch]()
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *StockRepo) getStock(ctx context.Context, q squirrel.SelectBuilder, ref string) (*stock.Stock, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s stock.Stock
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock", ref)
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return &s, nil
}

func (r *StockRepo) selectStock() squirrel.SelectBuilder {
	return r.builder.Select(stockColumns...).
		From(stocksTable).
		Where(squirrel.Eq{"deletion_mark": false})
}

// GetByID returns a stock or NotFound.
func (r *StockRepo) GetByID(ctx context.Context, stockID id.ID) (*stock.Stock, error) {
	return r.getStock(ctx, r.selectStock().Where(squirrel.Eq{"id": stockID}), stockID.String())
}

// GetForUpdate returns a stock locked until the transaction ends.
func (r *StockRepo) GetForUpdate(ctx context.Context, stockID id.ID) (*stock.Stock, error) {
	q := r.selectStock().
		Where(squirrel.Eq{"id": stockID}).
		Suffix("FOR UPDATE")
	return r.getStock(ctx, q, stockID.String())
}

// FindForUpdate locks the stock of (store, product).
func (r *StockRepo) FindForUpdate(ctx context.Context, storeID, productID id.ID) (*stock.Stock, error) {
	q := r.selectStock().
		Where(squirrel.Eq{"store_id": storeID, "product_id": productID}).
		Suffix("FOR UPDATE")
	return r.getStock(ctx, q, storeID.String()+"/"+productID.String())
}

// Create inserts a new stock.
func (r *StockRepo) Create(ctx context.Context, s *stock.Stock) error {
	sql, args, err := r.builder.Insert(stocksTable).
		SetMap(postgres.StructToMap(s)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("stock", "product", s.ProductID.String()).WithCause(err)
		}
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

// Update writes the stock if its version is unchanged and bumps the version.
func (r *StockRepo) Update(ctx context.Context, s *stock.Stock) error {
	sql, args, err := r.builder.Update(stocksTable).
		Set("quantity", s.Quantity).
		Set("buying_price", s.BuyingPrice).
		Set("selling_price", s.SellingPrice).
		Set("quantity_limit", s.QuantityLimit).
		Set("buying_method", s.BuyingMethod).
		Set("deletion_mark", s.DeletionMark).
		Set("updated_at", s.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": s.ID, "version": s.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock", s.ID.String())
	}

	s.Version++
	return nil
}

// List returns the stocks matching filter, ordered by product.
func (r *StockRepo) List(ctx context.Context, filter stock.Filter) ([]*stock.Stock, error) {
	q := r.selectStock().Where(squirrel.Eq{"store_id": filter.StoreID})
	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.Gt{"quantity": 0})
	}

	sql, args, err := q.OrderBy("product_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*stock.Stock
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	return items, nil
}

// CreateBatches inserts batches, using COPY inside a transaction.
func (r *StockRepo) CreateBatches(ctx context.Context, batches []*stock.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	// Fast path: COPY when inside a transaction.
	if tx := r.txManager.GetTx(ctx); tx != nil {
		rows := make([][]any, 0, len(batches))
		for _, b := range batches {
			rows = append(rows, []any{
				b.ID, b.StockID, b.Date, b.BuyingPrice, b.SellingPrice, b.Quantity, b.ExpirationDate,
			})
		}
		inserter := postgres.NewBatchInserter(r.txManager)
		if _, err := inserter.CopyFromSlice(ctx, stockStatusesTable, batchColumns, rows); err != nil {
			return fmt.Errorf("copy batches: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(stockStatusesTable).Columns(batchColumns...)
	for _, b := range batches {
		q = q.Values(b.ID, b.StockID, b.Date, b.BuyingPrice, b.SellingPrice, b.Quantity, b.ExpirationDate)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert batches: %w", err)
	}
	return nil
}

// GetBatch returns a batch or NotFound.
func (r *StockRepo) GetBatch(ctx context.Context, batchID id.ID) (*stock.Batch, error) {
	return r.getBatch(ctx, r.selectBatch(batchID), batchID)
}

// GetBatchForUpdate returns a batch locked until the transaction ends.
func (r *StockRepo) GetBatchForUpdate(ctx context.Context, batchID id.ID) (*stock.Batch, error) {
	return r.getBatch(ctx, r.selectBatch(batchID).Suffix("FOR UPDATE"), batchID)
}

func (r *StockRepo) selectBatch(batchID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(batchColumns...).
		From(stockStatusesTable).
		Where(squirrel.Eq{"id": batchID})
}

func (r *StockRepo) getBatch(ctx context.Context, q squirrel.SelectBuilder, batchID id.ID) (*stock.Batch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b stock.Batch
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock status", batchID.String())
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// ListBatches returns the batches of a stock, oldest first.
func (r *StockRepo) ListBatches(ctx context.Context, stockID id.ID) ([]*stock.Batch, error) {
	sql, args, err := r.builder.Select(batchColumns...).
		From(stockStatusesTable).
		Where(squirrel.Eq{"stock_id": stockID}).
		OrderBy("date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*stock.Batch
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return items, nil
}

// UpdateBatch writes a batch.
func (r *StockRepo) UpdateBatch(ctx context.Context, b *stock.Batch) error {
	sql, args, err := r.builder.Update(stockStatusesTable).
		Set("date", b.Date).
		Set("buying_price", b.BuyingPrice).
		Set("selling_price", b.SellingPrice).
		Set("quantity", b.Quantity).
		Set("expiration_date", b.ExpirationDate).
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("stock status", b.ID.String())
	}
	return nil
}

// DeleteBatch removes a batch.
func (r *StockRepo) DeleteBatch(ctx context.Context, batchID id.ID) error {
	sql, args, err := r.builder.Delete(stockStatusesTable).
		Where(squirrel.Eq{"id": batchID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("stock status", batchID.String())
	}
	return nil
}

// CountBatches returns how many of batchIDs still exist.
func (r *StockRepo) CountBatches(ctx context.Context, batchIDs []id.ID) (int, error) {
	if len(batchIDs) == 0 {
		return 0, nil
	}

	sql, args, err := r.builder.Select("COUNT(*)").
		From(stockStatusesTable).
		Where(squirrel.Eq{"id": batchIDs}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count batches: %w", err)
	}
	return n, nil
}

var _ stock.Repository = (*StockRepo)(nil)
