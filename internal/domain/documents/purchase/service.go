package purchase

import (
	"context"
	"fmt"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/numerator"
	"storeledger/internal/core/tx"
	"storeledger/internal/core/types"
	"storeledger/internal/domain"
	"storeledger/internal/domain/audit"
	"storeledger/internal/domain/catalogs"
	"storeledger/internal/domain/ledger"
	"storeledger/internal/domain/registers/stock"
	"storeledger/pkg/logger"
)

// Service provides business operations for purchases.
type Service struct {
	repo      Repository
	stocks    *stock.Service
	catalogs  catalogs.Lookup
	numerator numerator.Generator
	txManager tx.Manager
	events    domain.EventPublisher
	audit     domain.Auditor
	clock     clock.Clock
	hooks     *domain.HookRegistry[*Purchase]
}

// NewService creates a new purchase service.
func NewService(
	repo Repository,
	stocks *stock.Service,
	lookup catalogs.Lookup,
	numerator numerator.Generator,
	txManager tx.Manager,
	events domain.EventPublisher,
	auditor domain.Auditor,
	clk clock.Clock,
) *Service {
	return &Service{
		repo:      repo,
		stocks:    stocks,
		catalogs:  lookup,
		numerator: numerator,
		txManager: txManager,
		events:    events,
		audit:     auditor,
		clock:     clk,
		hooks:     domain.NewHookRegistry[*Purchase](),
	}
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*Purchase] {
	return s.hooks
}

// Create records a supplier purchase: every line becomes a StockStatus batch
// of Boxes*boxItems units on the store's stock, and the purchase starts its
// snapshot chain with those batches.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Purchase, error) {
	if len(in.Lines) == 0 {
		return nil, apperror.NewValidation("purchase needs at least one line").
			WithDetail("field", "lines")
	}
	if !types.ValidPercent(in.Discount) {
		return nil, apperror.NewValidation("discount must be between 0 and 100").
			WithDetail("discount", in.Discount.String())
	}

	supplier, err := s.catalogs.Supplier(ctx, in.SupplierID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalogs.Store(ctx, in.StoreID); err != nil {
		return nil, err
	}
	if supplier.StoreID != in.StoreID {
		return nil, apperror.NewValidation("supplier does not deliver to this store").
			WithDetail("supplier_id", in.SupplierID.String()).
			WithDetail("store_id", in.StoreID.String())
	}

	batches := make([]stock.BatchInput, len(in.Lines))
	computed := types.Zero()
	for i, line := range in.Lines {
		if line.Boxes <= 0 {
			return nil, apperror.NewValidation("quantity must be positive").
				WithDetail("line", i)
		}
		product, err := s.catalogs.Product(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		batches[i] = stock.BatchInput{
			Quantity:       line.Boxes * product.UnitsPerBox(),
			BuyingPrice:    line.BuyingPrice,
			SellingPrice:   line.SellingPrice,
			ExpirationDate: line.ExpirationDate,
		}
		if err := batches[i].Validate(); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("line", i)
			}
			return nil, err
		}
		computed = computed.Add(types.LineAmount(line.BuyingPrice, batches[i].Quantity))
	}
	if !computed.Equal(in.Amount) {
		return nil, apperror.NewAmountMismatch(in.Amount, computed)
	}

	now := s.clock.Now()
	p := &Purchase{
		Document:    entity.NewDocument(in.StoreID, now),
		SupplierID:  in.SupplierID,
		TotalAmount: types.ApplyDiscount(computed, in.Discount),
		Discount:    in.Discount,
		Settlement:  ledger.NewSettlement(),
	}
	p.Comment = in.Comment
	audit.EnrichCreatedBy(ctx, p)

	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(NumberPrefix),
		&numerator.Options{Strategy: NumeratorStrategy}, now)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	p.Number = number

	if err := p.Validate(ctx); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		first := &Snapshot{ID: id.New(), PurchaseID: p.ID, Seq: 1, Date: now}
		for i, line := range in.Lines {
			placed, err := s.stocks.CreateOrAugment(ctx, in.StoreID, line.ProductID, batches[i])
			if err != nil {
				return err
			}
			first.Lines = append(first.Lines, Line{
				BatchID:  placed.Batch.ID,
				StockID:  placed.Stock.ID,
				Quantity: placed.Batch.Quantity,
				Price:    placed.Batch.BuyingPrice,
			})
		}

		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create purchase: %w", err)
		}
		if err := s.repo.AppendSnapshot(ctx, first); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
		p.Snapshots = []*Snapshot{first}

		return s.publish(ctx, p, "purchase.created", map[string]any{
			"number":      p.Number,
			"totalAmount": p.TotalAmount,
			"batches":     p.BatchIDs(),
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.Run(ctx, domain.AfterCreate, p); err != nil {
		logger.Warn(ctx, "after-create hook failed", "error", err)
	}

	logger.Info(ctx, "purchase created",
		"id", p.ID,
		"number", p.Number,
		"total_amount", p.TotalAmount.String())

	return p, nil
}

// AppendSnapshot derives a new SousPurchase from the latest one by
// subtracting adjustments, shrinks the total and the payments accordingly
// and takes the returned units out of their batches and stocks.
func (s *Service) AppendSnapshot(ctx context.Context, purchaseID id.ID, adjustments []Adjustment) (*Purchase, error) {
	var p *Purchase
	var refunded types.Money
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.loadForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		latest := p.Latest()
		if latest == nil {
			return apperror.NewInternal(fmt.Errorf("purchase %s has no snapshot", purchaseID))
		}

		prev := make([]ledger.Line[id.ID], len(latest.Lines))
		stockOf := make(map[id.ID]id.ID, len(latest.Lines))
		for i, l := range latest.Lines {
			prev[i] = ledger.Line[id.ID]{Key: l.BatchID, Quantity: l.Quantity, Price: l.Price}
			stockOf[l.BatchID] = l.StockID
		}
		adj := make([]ledger.Adjustment[id.ID], len(adjustments))
		for i, a := range adjustments {
			adj[i] = ledger.Adjustment[id.ID]{Key: a.BatchID, Quantity: a.Quantity}
		}

		next, err := ledger.Reconcile(prev, adj)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("purchase_id", purchaseID.String())
			}
			return err
		}

		now := s.clock.Now()
		snap := &Snapshot{ID: id.New(), PurchaseID: p.ID, Seq: latest.Seq + 1, Date: now}
		for _, l := range next.Lines {
			snap.Lines = append(snap.Lines, Line{BatchID: l.Key, StockID: stockOf[l.Key], Quantity: l.Quantity, Price: l.Price})
		}

		p.TotalAmount = types.ApplyDiscount(next.Total(), p.Discount)
		refunded = p.Settlement.Rebalance(p.TotalAmount)
		p.Touch(now)
		audit.EnrichUpdatedBy(ctx, p)

		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		if err := s.repo.AppendSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
		p.Snapshots = append(p.Snapshots, snap)

		for _, ch := range next.Changes {
			if err := s.stocks.ReturnToSupplier(ctx, ch.Key, ch.Decrease()); err != nil {
				return err
			}
		}

		return s.publish(ctx, p, "purchase.snapshot_appended", map[string]any{
			"seq":         snap.Seq,
			"totalAmount": p.TotalAmount,
			"refunded":    refunded,
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterUpdate(ctx, p)
	logger.Info(ctx, "purchase snapshot appended",
		"id", p.ID,
		"total_amount", p.TotalAmount.String(),
		"refunded", refunded.String())

	return p, nil
}

// AddPayment records a partial payment on a credited purchase.
func (s *Service) AddPayment(ctx context.Context, purchaseID id.ID, amount types.Money) (*Purchase, error) {
	return s.settle(ctx, purchaseID, "purchase.payment_added", func(p *Purchase, now time.Time) error {
		return p.Settlement.AddPayment(amount, p.TotalAmount, now)
	})
}

// SetCredit switches the purchase to or from credit. Either way the payment list is cleared.
func (s *Service) SetCredit(ctx context.Context, purchaseID id.ID, on bool) (*Purchase, error) {
	return s.settle(ctx, purchaseID, "purchase.credit_changed", func(p *Purchase, _ time.Time) error {
		return p.Settlement.SetCredit(on)
	})
}

// SetDeposit sets the down-payment marker.
func (s *Service) SetDeposit(ctx context.Context, purchaseID id.ID, on bool) (*Purchase, error) {
	return s.settle(ctx, purchaseID, "purchase.deposit_changed", func(p *Purchase, _ time.Time) error {
		return p.Settlement.SetDeposit(on)
	})
}

// PayInFull settles the whole purchase with one payment.
func (s *Service) PayInFull(ctx context.Context, purchaseID id.ID) (*Purchase, error) {
	return s.settle(ctx, purchaseID, "purchase.paid_in_full", func(p *Purchase, now time.Time) error {
		return p.Settlement.PayInFull(p.TotalAmount, now)
	})
}

// Delete removes an open purchase whose batches were all deleted.
func (s *Service) Delete(ctx context.Context, purchaseID id.ID) error {
	var p *Purchase
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.loadForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.Closed() {
			return apperror.NewStateConflict("closed purchases cannot be deleted").
				WithDetail("purchase_id", purchaseID.String())
		}
		live, err := s.stocks.CountBatches(ctx, p.BatchIDs())
		if err != nil {
			return fmt.Errorf("count batches: %w", err)
		}
		if live > 0 {
			return apperror.NewStateConflict("purchase still has stock batches; delete them first").
				WithDetail("purchase_id", purchaseID.String()).
				WithDetail("live_batches", live)
		}

		if err := s.repo.Delete(ctx, purchaseID); err != nil {
			return fmt.Errorf("delete purchase: %w", err)
		}
		if err := s.audit.LogChange(ctx, domain.AggregatePurchase, purchaseID, domain.AuditDelete, p, nil); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		return s.publish(ctx, p, "purchase.deleted", map[string]any{"number": p.Number})
	})
	if err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, domain.AfterDelete, p); err != nil {
		logger.Warn(ctx, "after-delete hook failed", "error", err)
	}
	logger.Info(ctx, "purchase deleted", "id", purchaseID)
	return nil
}

// Get returns a purchase with its snapshot chain.
func (s *Service) Get(ctx context.Context, purchaseID id.ID) (*Purchase, error) {
	p, err := s.repo.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Snapshots, err = s.repo.GetSnapshots(ctx, purchaseID); err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	return p, nil
}

// List returns the purchases of a store (headers only).
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Purchase], error) {
	if id.IsNil(filter.StoreID) {
		return domain.ListResult[*Purchase]{}, apperror.NewValidation("store is required").
			WithDetail("field", "storeId")
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) loadForUpdate(ctx context.Context, purchaseID id.ID) (*Purchase, error) {
	p, err := s.repo.GetForUpdate(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Snapshots, err = s.repo.GetSnapshots(ctx, purchaseID); err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	return p, nil
}

// settle runs one payment state transition and persists it.
func (s *Service) settle(ctx context.Context, purchaseID id.ID, eventType string, fn func(p *Purchase, now time.Time) error) (*Purchase, error) {
	var p *Purchase
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.loadForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		wasClosed := p.Closed()

		now := s.clock.Now()
		if err := fn(p, now); err != nil {
			return err
		}
		p.Touch(now)
		audit.EnrichUpdatedBy(ctx, p)

		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		if err := s.publish(ctx, p, eventType, map[string]any{
			"state": p.State,
			"paid":  p.Paid(),
		}); err != nil {
			return err
		}
		if !wasClosed && p.Closed() {
			return s.publish(ctx, p, "purchase.closed", map[string]any{"totalAmount": p.TotalAmount})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterUpdate(ctx, p)
	logger.Info(ctx, "purchase settlement changed",
		"id", p.ID,
		"event", eventType,
		"state", p.State,
		"paid", p.Paid().String())

	return p, nil
}

func (s *Service) publish(ctx context.Context, p *Purchase, eventType string, payload map[string]any) error {
	payload["storeId"] = p.StoreID
	return s.events.Publish(ctx, domain.Event{
		AggregateType: domain.AggregatePurchase,
		AggregateID:   p.ID,
		Type:          eventType,
		Payload:       payload,
	})
}

func (s *Service) afterUpdate(ctx context.Context, p *Purchase) {
	if err := s.hooks.Run(ctx, domain.AfterUpdate, p); err != nil {
		logger.Warn(ctx, "after-update hook failed", "error", err)
	}
}
