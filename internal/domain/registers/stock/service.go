package stock

import (
	"context"
	"fmt"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/tx"
	"storeledger/internal/core/types"
	"storeledger/internal/domain"
	"storeledger/internal/domain/catalogs"
	"storeledger/pkg/logger"
)

// Service owns every change to stock quantities. Each mutation runs in the
// caller's transaction when there is one and in its own otherwise.
type Service struct {
	repo      Repository
	catalogs  catalogs.Lookup
	txManager tx.Manager
	events    domain.EventPublisher
	audit     domain.Auditor
	clock     clock.Clock
}

// NewService creates a new stock ledger service.
func NewService(
	repo Repository,
	lookup catalogs.Lookup,
	txManager tx.Manager,
	events domain.EventPublisher,
	audit domain.Auditor,
	clk clock.Clock,
) *Service {
	return &Service{
		repo:      repo,
		catalogs:  lookup,
		txManager: txManager,
		events:    events,
		audit:     audit,
		clock:     clk,
	}
}

// Placement is the result of receiving a batch.
type Placement struct {
	Stock   *Stock
	Batch   *Batch
	Created bool
}

// CreateOrAugment receives a batch for (store, product): the existing stock
// grows by the batch quantity and takes the batch prices, or a new stock is
// seeded from the batch.
func (s *Service) CreateOrAugment(ctx context.Context, storeID, productID id.ID, in BatchInput) (*Placement, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var placed *Placement
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.catalogs.Store(ctx, storeID); err != nil {
			return err
		}
		if _, err := s.catalogs.Product(ctx, productID); err != nil {
			return err
		}

		now := s.clock.Now()
		st, err := s.repo.FindForUpdate(ctx, storeID, productID)
		created := false
		switch {
		case apperror.IsNotFound(err):
			st = &Stock{
				BaseEntity:   entity.NewBaseEntity(),
				StoreID:      storeID,
				ProductID:    productID,
				BuyingMethod: BuyByUnit,
				CreatedAt:    now,
			}
			created = true
		case err != nil:
			return fmt.Errorf("find stock: %w", err)
		}

		if err := st.apply(mutation{delta: in.Quantity}); err != nil {
			return err
		}
		st.BuyingPrice = in.BuyingPrice
		st.SellingPrice = in.SellingPrice
		st.UpdatedAt = now

		if created {
			err = s.repo.Create(ctx, st)
		} else {
			err = s.repo.Update(ctx, st)
		}
		if err != nil {
			return err
		}

		batch := &Batch{
			ID:             id.New(),
			StockID:        st.ID,
			Date:           now,
			BuyingPrice:    in.BuyingPrice,
			SellingPrice:   in.SellingPrice,
			Quantity:       in.Quantity,
			ExpirationDate: in.ExpirationDate,
		}
		if err := s.repo.CreateBatches(ctx, []*Batch{batch}); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}

		placed = &Placement{Stock: st, Batch: batch, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock batch received",
		"stock_id", placed.Stock.ID,
		"batch_id", placed.Batch.ID,
		"quantity", placed.Batch.Quantity,
		"created", placed.Created)

	return placed, nil
}

// Consume withdraws units for a sale from a stock of storeID.
func (s *Service) Consume(ctx context.Context, storeID, stockID id.ID, qty int64) (*Stock, error) {
	if qty <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("stock_id", stockID.String())
	}

	var st *Stock
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.lockInStore(ctx, storeID, stockID)
		if err != nil {
			return err
		}
		return s.mutate(ctx, st, mutation{delta: -qty, checkLimit: true})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Restock puts units back on the shelf (returned orders).
func (s *Service) Restock(ctx context.Context, stockID id.ID, qty int64) error {
	if qty <= 0 {
		return nil
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		return s.mutate(ctx, st, mutation{delta: qty})
	})
}

// AdjustForStatusDeletion removes a deleted batch's units from the stock.
// The deletion is refused, not clamped, when the stock holds fewer units.
func (s *Service) AdjustForStatusDeletion(ctx context.Context, stockID id.ID, batchQty int64) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		return s.mutate(ctx, st, mutation{delta: -batchQty})
	})
}

// DeleteBatch deletes a StockStatus entry and its units from the stock.
func (s *Service) DeleteBatch(ctx context.Context, batchID id.ID) error {
	var batch *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.repo.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if err := s.AdjustForStatusDeletion(ctx, batch.StockID, batch.Quantity); err != nil {
			return err
		}
		if err := s.repo.DeleteBatch(ctx, batchID); err != nil {
			return fmt.Errorf("delete batch: %w", err)
		}
		if err := s.audit.LogChange(ctx, "stock_status", batchID, domain.AuditDelete, batch, nil); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		return s.events.Publish(ctx, domain.Event{
			AggregateType: domain.AggregateStock,
			AggregateID:   batch.StockID,
			Type:          "stock.batch_deleted",
			Payload:       map[string]any{"batchId": batchID, "quantity": batch.Quantity},
		})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock batch deleted",
		"batch_id", batchID,
		"stock_id", batch.StockID,
		"quantity", batch.Quantity)
	return nil
}

// BatchChange is a partial edit of a batch; nil fields are left as they are.
type BatchChange struct {
	Quantity       *int64
	BuyingPrice    *types.Money
	SellingPrice   *types.Money
	ExpirationDate *time.Time
}

// UpdateBatch edits a StockStatus entry. A quantity change moves the stock
// by the same delta; editing the most recent batch's prices refreshes the
// stock prices.
func (s *Service) UpdateBatch(ctx context.Context, batchID id.ID, change BatchChange) (*Batch, error) {
	var batch *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.repo.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		before := *batch

		st, err := s.repo.GetForUpdate(ctx, batch.StockID)
		if err != nil {
			return err
		}

		if change.BuyingPrice != nil {
			batch.BuyingPrice = *change.BuyingPrice
		}
		if change.SellingPrice != nil {
			batch.SellingPrice = *change.SellingPrice
		}
		if change.ExpirationDate != nil {
			batch.ExpirationDate = change.ExpirationDate
		}
		if change.Quantity != nil {
			batch.Quantity = *change.Quantity
		}

		if batch.Quantity < 0 {
			return apperror.NewValidation("quantity must not be negative").
				WithDetail("quantity", batch.Quantity)
		}
		if err := validatePrices(batch.BuyingPrice, batch.SellingPrice); err != nil {
			return err
		}

		if change.BuyingPrice != nil || change.SellingPrice != nil {
			latest, err := s.isLatestBatch(ctx, batch)
			if err != nil {
				return err
			}
			if latest {
				st.BuyingPrice = batch.BuyingPrice
				st.SellingPrice = batch.SellingPrice
			}
		}

		if err := s.mutate(ctx, st, mutation{delta: batch.Quantity - before.Quantity}); err != nil {
			return err
		}
		if err := s.repo.UpdateBatch(ctx, batch); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		return s.audit.LogChange(ctx, "stock_status", batchID, domain.AuditUpdate, before, batch)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// ReturnToSupplier removes units of a batch that went back to the supplier.
// The batch and its stock shrink by the same amount.
func (s *Service) ReturnToSupplier(ctx context.Context, batchID id.ID, units int64) error {
	if units <= 0 {
		return nil
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.repo.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if units > batch.Quantity {
			return apperror.NewInsufficientStock(batch.StockID.String(), units, batch.Quantity).
				WithDetail("batch_id", batchID.String())
		}

		st, err := s.repo.GetForUpdate(ctx, batch.StockID)
		if err != nil {
			return err
		}
		if err := s.mutate(ctx, st, mutation{delta: -units}); err != nil {
			return err
		}

		batch.Quantity -= units
		if err := s.repo.UpdateBatch(ctx, batch); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		return nil
	})
}

// RecordLoss withdraws damaged or lost units. The per-sale limit does not apply.
func (s *Service) RecordLoss(ctx context.Context, stockID id.ID, qty int64, reason string) (*Stock, error) {
	if qty <= 0 {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	if reason == "" {
		return nil, apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}

	var st *Stock
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		if err := s.mutate(ctx, st, mutation{delta: -qty}); err != nil {
			return err
		}
		change := map[string]any{"quantity": qty, "reason": reason}
		if err := s.audit.LogChange(ctx, "stock", stockID, domain.AuditLoss, nil, change); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		return s.events.Publish(ctx, domain.Event{
			AggregateType: domain.AggregateStock,
			AggregateID:   stockID,
			Type:          "stock.loss_recorded",
			Payload:       change,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock loss recorded", "stock_id", stockID, "quantity", qty)
	return st, nil
}

// Settings is a partial edit of a stock's sale settings.
type Settings struct {
	QuantityLimit *int64
	BuyingMethod  *BuyingMethod
	SellingPrice  *types.Money
}

// UpdateSettings changes the sale settings of a stock.
func (s *Service) UpdateSettings(ctx context.Context, stockID id.ID, in Settings) (*Stock, error) {
	if in.QuantityLimit != nil && *in.QuantityLimit < 0 {
		return nil, apperror.NewValidation("quantity limit must not be negative")
	}
	if in.BuyingMethod != nil && !in.BuyingMethod.Valid() {
		return nil, apperror.NewValidation("unknown buying method").
			WithDetail("buyingMethod", string(*in.BuyingMethod))
	}

	var st *Stock
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		if in.SellingPrice != nil {
			if !in.SellingPrice.GreaterThan(st.BuyingPrice) {
				return apperror.NewValidation("selling price must exceed buying price").
					WithDetail("buyingPrice", st.BuyingPrice.String())
			}
			st.SellingPrice = *in.SellingPrice
		}
		if in.QuantityLimit != nil {
			st.QuantityLimit = *in.QuantityLimit
		}
		if in.BuyingMethod != nil {
			st.BuyingMethod = *in.BuyingMethod
		}
		return s.mutate(ctx, st, mutation{})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Get returns a stock.
func (s *Service) Get(ctx context.Context, stockID id.ID) (*Stock, error) {
	return s.repo.GetByID(ctx, stockID)
}

// List returns the stocks of a store.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Stock, error) {
	if id.IsNil(filter.StoreID) {
		return nil, apperror.NewValidation("store is required").WithDetail("field", "storeId")
	}
	return s.repo.List(ctx, filter)
}

// ListBatches returns the StockStatus log of a stock.
func (s *Service) ListBatches(ctx context.Context, stockID id.ID) ([]*Batch, error) {
	if _, err := s.repo.GetByID(ctx, stockID); err != nil {
		return nil, err
	}
	return s.repo.ListBatches(ctx, stockID)
}

// GetForUpdate locks a stock of storeID inside the caller's transaction.
// Stocks of other stores are reported as missing.
func (s *Service) GetForUpdate(ctx context.Context, storeID, stockID id.ID) (*Stock, error) {
	return s.lockInStore(ctx, storeID, stockID)
}

// CountBatches returns how many of batchIDs still exist.
func (s *Service) CountBatches(ctx context.Context, batchIDs []id.ID) (int, error) {
	if len(batchIDs) == 0 {
		return 0, nil
	}
	return s.repo.CountBatches(ctx, batchIDs)
}

func (s *Service) lockInStore(ctx context.Context, storeID, stockID id.ID) (*Stock, error) {
	st, err := s.repo.GetForUpdate(ctx, stockID)
	if err != nil {
		return nil, err
	}
	if st.StoreID != storeID {
		return nil, apperror.NewNotFound("stock", stockID.String()).
			WithDetail("store_id", storeID.String())
	}
	return st, nil
}

// mutate applies m to a locked stock and persists it with a version check.
func (s *Service) mutate(ctx context.Context, st *Stock, m mutation) error {
	if err := st.apply(m); err != nil {
		return err
	}
	st.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, st)
}

func (s *Service) isLatestBatch(ctx context.Context, b *Batch) (bool, error) {
	batches, err := s.repo.ListBatches(ctx, b.StockID)
	if err != nil {
		return false, fmt.Errorf("list batches: %w", err)
	}
	if len(batches) == 0 {
		return false, nil
	}
	return batches[len(batches)-1].ID == b.ID, nil
}
