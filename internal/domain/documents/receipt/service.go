package receipt

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

// Service provides business operations for receipts.
type Service struct {
	repo         Repository
	stocks       *stock.Service
	catalogs     catalogs.Lookup
	numerator    numerator.Generator
	txManager    tx.Manager
	events       domain.EventPublisher
	audit        domain.Auditor
	clock        clock.Clock
	hooks        *domain.HookRegistry[*Receipt]
	codeAttempts int
}

// NewService creates a new receipt service.
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
		repo:         repo,
		stocks:       stocks,
		catalogs:     lookup,
		numerator:    numerator,
		txManager:    txManager,
		events:       events,
		audit:        auditor,
		clock:        clk,
		hooks:        domain.NewHookRegistry[*Receipt](),
		codeAttempts: DefaultCodeAttempts,
	}
}

// WithCodeAttempts sets how many codes are tried before giving up on a collision.
func (s *Service) WithCodeAttempts(n int) *Service {
	if n > 0 {
		s.codeAttempts = n
	}
	return s
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*Receipt] {
	return s.hooks
}

// Create places a client order: the ordered units leave their stocks and the
// receipt starts its status chain with the ordered lines.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Receipt, error) {
	if len(in.Lines) == 0 {
		return nil, apperror.NewValidation("receipt needs at least one line").
			WithDetail("field", "lines")
	}
	seen := make(map[id.ID]bool, len(in.Lines))
	for i, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, apperror.NewValidation("quantity must be positive").WithDetail("line", i)
		}
		if line.Price.IsNegative() {
			return nil, apperror.NewValidation("price must not be negative").WithDetail("line", i)
		}
		if seen[line.StockID] {
			return nil, apperror.NewValidation("stock ordered twice").
				WithDetail("stock_id", line.StockID.String())
		}
		seen[line.StockID] = true
	}

	client, err := s.catalogs.Client(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalogs.Store(ctx, in.StoreID); err != nil {
		return nil, err
	}
	approved, err := s.catalogs.IsApprovedMember(ctx, in.ClientID, in.StoreID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !approved {
		return nil, apperror.NewForbidden("client is not an approved member of the store").
			WithDetail("client_id", in.ClientID.String()).
			WithDetail("store_id", in.StoreID.String())
	}

	now := s.clock.Now()
	r := &Receipt{
		Document:             entity.NewDocument(in.StoreID, now),
		ClientID:             in.ClientID,
		DeliveryCost:         in.DeliveryCost,
		Type:                 in.Type,
		DeliveredLocation:    in.DeliveredLocation,
		ExpectedDeliveryDate: in.ExpectedDeliveryDate,
		Status:               StatusPending,
		Settlement:           ledger.NewSettlement(),
	}
	r.Comment = in.Comment
	audit.EnrichCreatedBy(ctx, r)
	if err := r.Validate(ctx); err != nil {
		return nil, err
	}

	if r.Number, err = s.nextCode(ctx, client.Code, now); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		first := &StatusSnapshot{ID: id.New(), ReceiptID: r.ID, Seq: 1, Date: now}
		profit := types.Zero()
		for _, line := range in.Lines {
			st, err := s.stocks.GetForUpdate(ctx, in.StoreID, line.StockID)
			if err != nil {
				return err
			}
			first.Lines = append(first.Lines, Line{
				LineKey:  LineKey{ProductID: st.ProductID, StockID: st.ID},
				Quantity: line.Quantity,
				Price:    line.Price,
			})
			if err := st.CanSell(line.Quantity); err != nil {
				return err
			}
			profit = profit.Add(types.LineAmount(line.Price.Sub(st.BuyingPrice), line.Quantity))
		}

		// Quantity and limit failures are reported before pricing failures.
		if profit.IsNegative() {
			return apperror.NewNegativeProfit(profit)
		}
		total := first.Lines.Total()
		if !total.Equal(in.Total) {
			return apperror.NewAmountMismatch(in.Total, total)
		}
		for _, line := range in.Lines {
			if _, err := s.stocks.Consume(ctx, in.StoreID, line.StockID, line.Quantity); err != nil {
				return err
			}
		}
		r.Total = total
		r.Profit = profit

		if err := s.repo.Create(ctx, r); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		if err := s.repo.AppendSnapshot(ctx, first); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
		r.Snapshots = []*StatusSnapshot{first}

		return s.publish(ctx, r, "receipt.created", map[string]any{
			"code":     r.Number,
			"clientId": r.ClientID,
			"total":    r.Total,
			"profit":   r.Profit,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.Run(ctx, domain.AfterCreate, r); err != nil {
		logger.Warn(ctx, "after-create hook failed", "error", err)
	}

	logger.Info(ctx, "receipt created",
		"id", r.ID,
		"code", r.Number,
		"total", r.Total.String(),
		"profit", r.Profit.String())

	return r, nil
}

// AppendStatusSnapshot derives a new ReceiptStatus from the latest one by
// subtracting adjustments. Total is recomputed from the new lines and profit
// is rescaled so the margin ratio is preserved.
func (s *Service) AppendStatusSnapshot(ctx context.Context, receiptID id.ID, adjustments []Adjustment) (*Receipt, error) {
	var r *Receipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.loadForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if r.Status == StatusReturned {
			return apperror.NewStateConflict("receipt was returned").
				WithDetail("receipt_id", receiptID.String())
		}
		latest := r.Latest()
		if latest == nil {
			return apperror.NewInternal(fmt.Errorf("receipt %s has no status", receiptID))
		}

		prev := make([]ledger.Line[LineKey], len(latest.Lines))
		for i, l := range latest.Lines {
			prev[i] = ledger.Line[LineKey]{Key: l.LineKey, Quantity: l.Quantity, Price: l.Price}
		}
		adj := make([]ledger.Adjustment[LineKey], len(adjustments))
		for i, a := range adjustments {
			adj[i] = ledger.Adjustment[LineKey]{Key: a.LineKey, Quantity: a.Quantity}
		}

		next, err := ledger.Reconcile(prev, adj)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("receipt_id", receiptID.String())
			}
			return err
		}

		now := s.clock.Now()
		snap := &StatusSnapshot{ID: id.New(), ReceiptID: r.ID, Seq: latest.Seq + 1, Date: now}
		for _, l := range next.Lines {
			snap.Lines = append(snap.Lines, Line{LineKey: l.Key, Quantity: l.Quantity, Price: l.Price})
		}

		oldTotal := r.Total
		r.Total = snap.Lines.Total()
		if oldTotal.IsZero() {
			// No ratio to preserve; derive the margin from current costs.
			if r.Profit, err = s.profitAtCost(ctx, snap.Lines); err != nil {
				return err
			}
		} else {
			r.Profit = r.Total.Mul(r.Profit).Div(oldTotal).Round(2)
		}
		r.Settlement.Rebalance(r.Total)
		r.Touch(now)
		audit.EnrichUpdatedBy(ctx, r)

		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if err := s.repo.AppendSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
		r.Snapshots = append(r.Snapshots, snap)

		return s.publish(ctx, r, "receipt.snapshot_appended", map[string]any{
			"seq":    snap.Seq,
			"total":  r.Total,
			"profit": r.Profit,
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterUpdate(ctx, r)
	logger.Info(ctx, "receipt status appended",
		"id", r.ID,
		"total", r.Total.String(),
		"profit", r.Profit.String())

	return r, nil
}

// ValidateDelivery marks the order delivered.
func (s *Service) ValidateDelivery(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return s.mutate(ctx, receiptID, "receipt.delivered", func(ctx context.Context, r *Receipt) error {
		if r.Status.Terminal() {
			return statusConflict(r)
		}
		r.Delivered = true
		r.Status = StatusDelivered
		return nil
	})
}

// UpdateExpectedDeliveryDate reschedules an undelivered order.
func (s *Service) UpdateExpectedDeliveryDate(ctx context.Context, receiptID id.ID, date time.Time) (*Receipt, error) {
	if date.IsZero() {
		return nil, apperror.NewValidation("expected delivery date is required").
			WithDetail("field", "expectedDeliveryDate")
	}
	return s.mutate(ctx, receiptID, "receipt.delivery_rescheduled", func(ctx context.Context, r *Receipt) error {
		if r.Status.Terminal() {
			return statusConflict(r)
		}
		r.ExpectedDeliveryDate = &date
		return nil
	})
}

// UpdateLineItemPrice corrects the price of one line of the latest status.
// Total and profit are recomputed from the lines and current stock costs.
func (s *Service) UpdateLineItemPrice(ctx context.Context, receiptID id.ID, key LineKey, price types.Money) (*Receipt, error) {
	if price.IsNegative() {
		return nil, apperror.NewValidation("price must not be negative").
			WithDetail("price", price.String())
	}
	return s.mutate(ctx, receiptID, "receipt.price_corrected", func(ctx context.Context, r *Receipt) error {
		if r.Closed() {
			return apperror.NewStateConflict("receipt is closed").
				WithDetail("receipt_id", r.ID.String())
		}
		latest := r.Latest()
		if latest == nil {
			return apperror.NewInternal(fmt.Errorf("receipt %s has no status", r.ID))
		}

		before := latest.Lines
		lines := append(Lines(nil), latest.Lines...)
		found := false
		for i := range lines {
			if lines[i].LineKey == key {
				lines[i].Price = price
				found = true
			}
		}
		if !found {
			return apperror.NewNotFound("receipt line", key.StockID.String()).
				WithDetail("product_id", key.ProductID.String())
		}

		profit, err := s.profitAtCost(ctx, lines)
		if err != nil {
			return err
		}
		if profit.IsNegative() {
			return apperror.NewNegativeProfit(profit)
		}

		latest.Lines = lines
		if err := s.repo.UpdateSnapshotLines(ctx, latest); err != nil {
			return fmt.Errorf("update snapshot: %w", err)
		}
		r.Total = lines.Total()
		r.Profit = profit
		r.Settlement.Rebalance(r.Total)

		return s.audit.LogChange(ctx, domain.AggregateReceipt, r.ID, domain.AuditUpdate, before, lines)
	})
}

// UpdateStatus moves the order to a later non-terminal status code.
func (s *Service) UpdateStatus(ctx context.Context, receiptID id.ID, status Status) (*Receipt, error) {
	if status != StatusAccepted && status != StatusInDelivery {
		return nil, apperror.NewValidation("status must be 1 (accepted) or 2 (in delivery)").
			WithDetail("status", int(status))
	}
	return s.mutate(ctx, receiptID, "receipt.status_changed", func(ctx context.Context, r *Receipt) error {
		if r.Status.Terminal() || status <= r.Status {
			return statusConflict(r).WithDetail("requested", int(status))
		}
		r.Status = status
		return nil
	})
}

// Return records a returned order and puts the latest lines back in stock.
func (s *Service) Return(ctx context.Context, receiptID id.ID, reason string) (*Receipt, error) {
	if reason == "" {
		return nil, apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}
	return s.mutate(ctx, receiptID, "receipt.returned", func(ctx context.Context, r *Receipt) error {
		if r.Status == StatusReturned {
			return statusConflict(r)
		}
		if latest := r.Latest(); latest != nil {
			for _, l := range latest.Lines {
				if err := s.stocks.Restock(ctx, l.StockID, l.Quantity); err != nil {
					return err
				}
			}
		}
		r.Status = StatusReturned
		r.ReturnedReason = reason
		return nil
	})
}

// AddPayment records a partial payment on a credited receipt.
func (s *Service) AddPayment(ctx context.Context, receiptID id.ID, amount types.Money) (*Receipt, error) {
	return s.mutate(ctx, receiptID, "receipt.payment_added", func(_ context.Context, r *Receipt) error {
		return r.Settlement.AddPayment(amount, r.Total, s.clock.Now())
	})
}

// SetCredit switches the receipt to or from credit. Either way the payment list is cleared.
func (s *Service) SetCredit(ctx context.Context, receiptID id.ID, on bool) (*Receipt, error) {
	return s.mutate(ctx, receiptID, "receipt.credit_changed", func(_ context.Context, r *Receipt) error {
		return r.Settlement.SetCredit(on)
	})
}

// SetDeposit sets the down-payment marker.
func (s *Service) SetDeposit(ctx context.Context, receiptID id.ID, on bool) (*Receipt, error) {
	return s.mutate(ctx, receiptID, "receipt.deposit_changed", func(_ context.Context, r *Receipt) error {
		return r.Settlement.SetDeposit(on)
	})
}

// PayInFull settles the whole receipt with one payment.
func (s *Service) PayInFull(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return s.mutate(ctx, receiptID, "receipt.paid_in_full", func(_ context.Context, r *Receipt) error {
		return r.Settlement.PayInFull(r.Total, s.clock.Now())
	})
}

// Delete soft-deletes a receipt. Closed receipts can be deleted and no
// units go back to stock.
func (s *Service) Delete(ctx context.Context, receiptID id.ID) error {
	var r *Receipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.loadForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, receiptID); err != nil {
			return fmt.Errorf("delete receipt: %w", err)
		}
		if err := s.audit.LogChange(ctx, domain.AggregateReceipt, receiptID, domain.AuditDelete, r, nil); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		return s.publish(ctx, r, "receipt.deleted", map[string]any{"code": r.Number})
	})
	if err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, domain.AfterDelete, r); err != nil {
		logger.Warn(ctx, "after-delete hook failed", "error", err)
	}
	logger.Info(ctx, "receipt deleted", "id", receiptID)
	return nil
}

// Get returns a receipt with its status chain.
func (s *Service) Get(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	r, err := s.repo.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if r.Snapshots, err = s.repo.GetSnapshots(ctx, receiptID); err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	return r, nil
}

// List returns the receipts of a store (headers only).
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Receipt], error) {
	if id.IsNil(filter.StoreID) {
		return domain.ListResult[*Receipt]{}, apperror.NewValidation("store is required").
			WithDetail("field", "storeId")
	}
	return s.repo.List(ctx, filter)
}

// nextCode generates a receipt code from the client code, skipping codes
// that are already taken.
func (s *Service) nextCode(ctx context.Context, clientCode string, now time.Time) (string, error) {
	cfg := numerator.ReceiptCodeConfig(clientCode)
	opts := &numerator.Options{Strategy: NumeratorStrategy}

	var code string
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		var err error
		code, err = s.numerator.GetNextNumber(ctx, cfg, opts, now)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		taken, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
		logger.Warn(ctx, "receipt code collision", "code", code, "attempt", attempt+1)
	}
	return "", apperror.NewDuplicate("receipt", "code", code)
}

// profitAtCost returns sum((price - stock buying price) * quantity).
func (s *Service) profitAtCost(ctx context.Context, lines Lines) (types.Money, error) {
	profit := types.Zero()
	for _, l := range lines {
		st, err := s.stocks.Get(ctx, l.StockID)
		if err != nil {
			return types.Zero(), err
		}
		profit = profit.Add(types.LineAmount(l.Price.Sub(st.BuyingPrice), l.Quantity))
	}
	return profit, nil
}

func (s *Service) loadForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	r, err := s.repo.GetForUpdate(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if r.Snapshots, err = s.repo.GetSnapshots(ctx, receiptID); err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	return r, nil
}

// mutate runs one narrow receipt change under lock and persists it.
func (s *Service) mutate(ctx context.Context, receiptID id.ID, eventType string, fn func(ctx context.Context, r *Receipt) error) (*Receipt, error) {
	var r *Receipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.loadForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		wasClosed := r.Closed()

		if err := fn(ctx, r); err != nil {
			return err
		}
		r.Touch(s.clock.Now())
		audit.EnrichUpdatedBy(ctx, r)

		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if err := s.publish(ctx, r, eventType, map[string]any{
			"status": r.Status,
			"state":  r.State,
			"paid":   r.Paid(),
		}); err != nil {
			return err
		}
		if !wasClosed && r.Closed() {
			return s.publish(ctx, r, "receipt.closed", map[string]any{"total": r.Total})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterUpdate(ctx, r)
	logger.Info(ctx, "receipt updated",
		"id", r.ID,
		"event", eventType,
		"status", int(r.Status),
		"state", r.State)

	return r, nil
}

func (s *Service) publish(ctx context.Context, r *Receipt, eventType string, payload map[string]any) error {
	payload["storeId"] = r.StoreID
	return s.events.Publish(ctx, domain.Event{
		AggregateType: domain.AggregateReceipt,
		AggregateID:   r.ID,
		Type:          eventType,
		Payload:       payload,
	})
}

func (s *Service) afterUpdate(ctx context.Context, r *Receipt) {
	if err := s.hooks.Run(ctx, domain.AfterUpdate, r); err != nil {
		logger.Warn(ctx, "after-update hook failed", "error", err)
	}
}

func statusConflict(r *Receipt) *apperror.AppError {
	return apperror.NewStateConflict("operation not allowed in the receipt's current status").
		WithDetail("receipt_id", r.ID.String()).
		WithDetail("status", int(r.Status))
}
