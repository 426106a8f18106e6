package receipt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/id"
	"storeledger/internal/core/numerator"
	"storeledger/internal/core/tx"
	"storeledger/internal/core/types"
	"storeledger/internal/domain"
	"storeledger/internal/domain/catalogs"
	"storeledger/internal/domain/ledger"
	"storeledger/internal/domain/registers/stock"
)

type recordingPublisher struct{ types []string }

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.types = append(p.types, e.Type)
	return nil
}

type recordingAuditor struct{ actions []string }

func (a *recordingAuditor) LogChange(_ context.Context, _ string, _ id.ID, action string, _, _ any) error {
	a.actions = append(a.actions, action)
	return nil
}

type fixture struct {
	svc      *Service
	stocks   *stock.Service
	repo     *MemoryRepository
	lookup   *catalogs.MemoryLookup
	events   *recordingPublisher
	audit    *recordingAuditor
	storeID  id.ID
	clientID id.ID
	stockID  id.ID
}

// newFixture stocks 120 units bought at 100 and sold at 150 (Scenario A).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     NewMemoryRepository(),
		events:   &recordingPublisher{},
		audit:    &recordingAuditor{},
		storeID:  id.New(),
		clientID: id.New(),
	}
	productID := id.New()
	f.lookup = catalogs.NewMemoryLookup().
		AddStore(&catalogs.Store{ID: f.storeID, Name: "Main street", IsActive: true}).
		AddProduct(&catalogs.Product{ID: productID, Name: "Olive oil 1L", BoxItems: 12}).
		AddClient(&catalogs.Client{ID: f.clientID, Code: "CL042", Name: "Corner cafe"}).
		Approve(f.clientID, f.storeID)
	now := clock.Fixed(time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC))
	txm := &tx.MockManager{}

	f.stocks = stock.NewService(stock.NewMemoryRepository(), f.lookup, txm, domain.NopPublisher{}, domain.NopAuditor{}, now)
	f.svc = NewService(f.repo, f.stocks, f.lookup, &numerator.MockGenerator{}, txm, f.events, f.audit, now)

	placed, err := f.stocks.CreateOrAugment(context.Background(), f.storeID, productID, stock.BatchInput{
		Quantity:     120,
		BuyingPrice:  types.MustMoney("100"),
		SellingPrice: types.MustMoney("150"),
	})
	require.NoError(t, err)
	f.stockID = placed.Stock.ID
	return f
}

// fiveUnits is Scenario B: 5 units at 150.
func (f *fixture) fiveUnits() CreateInput {
	return CreateInput{
		StoreID:  f.storeID,
		ClientID: f.clientID,
		Lines:    []LineItem{{StockID: f.stockID, Quantity: 5, Price: types.MustMoney("150")}},
		Total:    types.MustMoney("750"),
		Type:     TypePickup,
	}
}

func (f *fixture) stockQuantity(t *testing.T) int64 {
	t.Helper()
	st, err := f.stocks.Get(context.Background(), f.stockID)
	require.NoError(t, err)
	return st.Quantity
}

func TestCreate_ConsumesStock(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), f.fiveUnits())
	require.NoError(t, err)

	assert.Equal(t, "CL042-000001", r.Number)
	assert.Equal(t, int64(115), f.stockQuantity(t))
	assert.True(t, r.Profit.Equal(types.MustMoney("250")), r.Profit.String())
	assert.True(t, r.Total.Equal(types.MustMoney("750")))
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, ledger.StateNew, r.State)
	require.Len(t, r.Snapshots, 1)
	assert.Equal(t, f.stockID, r.Snapshots[0].Lines[0].StockID)
	assert.Equal(t, []string{"receipt.created"}, f.events.types)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		modify func(f *fixture, in *CreateInput)
		code   string
	}{
		{
			name:   "below cost",
			modify: func(_ *fixture, in *CreateInput) { in.Lines[0].Price = types.MustMoney("90"); in.Total = types.MustMoney("450") },
			code:   apperror.CodeNegativeProfit,
		},
		{
			name:   "declared total differs",
			modify: func(_ *fixture, in *CreateInput) { in.Total = types.MustMoney("749") },
			code:   apperror.CodeAmountMismatch,
		},
		{
			name: "more than on hand",
			modify: func(_ *fixture, in *CreateInput) {
				in.Lines[0].Quantity = 121
				in.Total = types.LineAmount(in.Lines[0].Price, 121)
			},
			code: apperror.CodeInsufficientStock,
		},
		{
			name: "short stock reported before a wrong total",
			modify: func(_ *fixture, in *CreateInput) {
				in.Lines[0].Quantity = 121
				in.Total = types.MustMoney("1")
			},
			code: apperror.CodeInsufficientStock,
		},
		{
			name: "short stock reported before selling below cost",
			modify: func(_ *fixture, in *CreateInput) {
				in.Lines[0].Quantity = 121
				in.Lines[0].Price = types.MustMoney("90")
				in.Total = types.LineAmount(in.Lines[0].Price, 121)
			},
			code: apperror.CodeInsufficientStock,
		},
		{
			name:   "pickup with a delivery location",
			modify: func(_ *fixture, in *CreateInput) { in.DeliveredLocation = "12 Harbour road" },
			code:   apperror.CodeValidation,
		},
		{
			name:   "unknown stock",
			modify: func(_ *fixture, in *CreateInput) { in.Lines[0].StockID = id.New() },
			code:   apperror.CodeNotFound,
		},
		{
			name:   "stock of another store",
			modify: func(_ *fixture, in *CreateInput) { in.StoreID = id.New() },
			code:   apperror.CodeNotFound,
		},
		{
			name:   "delivery without location",
			modify: func(_ *fixture, in *CreateInput) { in.Type = TypeDelivery },
			code:   apperror.CodeValidation,
		},
		{
			name:   "negative delivery cost",
			modify: func(_ *fixture, in *CreateInput) { in.DeliveryCost = types.MustMoney("-1") },
			code:   apperror.CodeValidation,
		},
		{
			name:   "no lines",
			modify: func(_ *fixture, in *CreateInput) { in.Lines = nil },
			code:   apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := f.fiveUnits()
			tt.modify(f, &in)

			_, err := f.svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), err.Error())
			assert.Equal(t, int64(120), f.stockQuantity(t))
		})
	}
}

func TestCreate_QuantityLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limit := int64(3)
	_, err := f.stocks.UpdateSettings(ctx, f.stockID, stock.Settings{QuantityLimit: &limit})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.fiveUnits())
	assert.True(t, apperror.HasCode(err, apperror.CodeQuantityLimitExceeded))

	in := f.fiveUnits()
	in.Total = types.MustMoney("1")
	_, err = f.svc.Create(ctx, in)
	assert.True(t, apperror.HasCode(err, apperror.CodeQuantityLimitExceeded), "limit is checked before the total")
	assert.Equal(t, int64(120), f.stockQuantity(t))
}

func TestCreate_RequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.fiveUnits()
	in.ClientID = id.New()
	_, err := f.svc.Create(ctx, in)
	assert.True(t, apperror.IsNotFound(err))

	stranger := &catalogs.Client{ID: id.New(), Code: "CL007", Name: "Walk-in"}
	f.lookup.AddClient(stranger)
	in.ClientID = stranger.ID
	_, err = f.svc.Create(ctx, in)
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
	assert.Equal(t, int64(120), f.stockQuantity(t))
}

func TestCreate_CodeCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.ReserveCode("CL042-000001")

	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	assert.Equal(t, "CL042-000002", r.Number)

	f.repo.ReserveCode("CL042-000003")
	f.svc.WithCodeAttempts(1)
	_, err = f.svc.Create(ctx, f.fiveUnits())
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
}

// Scenario C: the 5-unit line shrinks to 2.
func TestAppendStatusSnapshot_RescalesProfit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	key := r.Latest().Lines[0].LineKey

	r, err = f.svc.AppendStatusSnapshot(ctx, r.ID, []Adjustment{{LineKey: key, Quantity: 3}})
	require.NoError(t, err)

	require.Len(t, r.Snapshots, 2)
	assert.Equal(t, int64(2), r.Latest().Lines[0].Quantity)
	assert.True(t, r.Total.Equal(types.MustMoney("300")), r.Total.String())
	assert.True(t, r.Profit.Equal(types.MustMoney("100")), r.Profit.String())
	assert.Equal(t, int64(115), f.stockQuantity(t), "status snapshots do not restock")
}

func TestAppendStatusSnapshot_NoChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)

	_, err = f.svc.AppendStatusSnapshot(ctx, r.ID, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeNoChange))

	got, err := f.svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, got.Snapshots, 1)
	assert.Equal(t, r.Version, got.Version)
}

func TestAppendStatusSnapshot_ZeroAdjustmentDropsLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)

	r, err = f.svc.AppendStatusSnapshot(ctx, r.ID, []Adjustment{{LineKey: r.Latest().Lines[0].LineKey}})
	require.NoError(t, err)

	require.Len(t, r.Snapshots, 2)
	assert.Empty(t, r.Latest().Lines)
	assert.True(t, r.Total.IsZero(), r.Total.String())
	assert.True(t, r.Profit.IsZero(), r.Profit.String())
}

func TestAppendStatusSnapshot_RebalancesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	_, err = f.svc.SetCredit(ctx, r.ID, true)
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx, r.ID, types.MustMoney("600"))
	require.NoError(t, err)

	r, err = f.svc.AppendStatusSnapshot(ctx, r.ID, []Adjustment{{LineKey: r.Latest().Lines[0].LineKey, Quantity: 3}})
	require.NoError(t, err)

	assert.True(t, r.Paid().Equal(types.MustMoney("300")))
	assert.Equal(t, ledger.StateClosedOnCredit, r.State)
	assert.NoError(t, r.Check(r.Total))
}

// Scenario D.
func TestAddPayment_RequiresCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)

	_, err = f.svc.AddPayment(ctx, r.ID, types.MustMoney("750"))
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))

	r, err = f.svc.PayInFull(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, r.Closed())
	assert.True(t, r.Paid().Equal(types.MustMoney("750")))
	assert.Contains(t, f.events.types, "receipt.closed")
}

func TestStatusFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.fiveUnits()
	in.Type = TypeDelivery
	in.DeliveredLocation = "12 Harbour road"
	r, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	r, err = f.svc.UpdateStatus(ctx, r.ID, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, r.Status)

	_, err = f.svc.UpdateStatus(ctx, r.ID, StatusAccepted)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict), "codes only move forward")

	_, err = f.svc.UpdateStatus(ctx, r.ID, StatusDelivered)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	when := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)
	r, err = f.svc.UpdateExpectedDeliveryDate(ctx, r.ID, when)
	require.NoError(t, err)
	require.NotNil(t, r.ExpectedDeliveryDate)
	assert.True(t, r.ExpectedDeliveryDate.Equal(when))

	r, err = f.svc.ValidateDelivery(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, r.Delivered)
	assert.Equal(t, StatusDelivered, r.Status)

	_, err = f.svc.UpdateStatus(ctx, r.ID, StatusInDelivery)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
	_, err = f.svc.UpdateExpectedDeliveryDate(ctx, r.ID, when)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
}

func TestReturn_Restocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	require.Equal(t, int64(115), f.stockQuantity(t))

	_, err = f.svc.Return(ctx, r.ID, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	r, err = f.svc.Return(ctx, r.ID, "damaged on arrival")
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, r.Status)
	assert.Equal(t, "damaged on arrival", r.ReturnedReason)
	assert.Equal(t, int64(120), f.stockQuantity(t))

	_, err = f.svc.Return(ctx, r.ID, "again")
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
	assert.Equal(t, int64(120), f.stockQuantity(t))
}

func TestUpdateLineItemPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	key := r.Latest().Lines[0].LineKey

	r, err = f.svc.UpdateLineItemPrice(ctx, r.ID, key, types.MustMoney("160"))
	require.NoError(t, err)
	assert.True(t, r.Total.Equal(types.MustMoney("800")))
	assert.True(t, r.Profit.Equal(types.MustMoney("300")))
	assert.Len(t, r.Snapshots, 1, "corrections stay on the latest status")
	assert.Equal(t, []string{domain.AuditUpdate}, f.audit.actions)

	_, err = f.svc.UpdateLineItemPrice(ctx, r.ID, key, types.MustMoney("90"))
	assert.True(t, apperror.HasCode(err, apperror.CodeNegativeProfit))

	_, err = f.svc.UpdateLineItemPrice(ctx, r.ID, LineKey{ProductID: key.ProductID, StockID: id.New()}, types.MustMoney("160"))
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.PayInFull(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateLineItemPrice(ctx, r.ID, key, types.MustMoney("170"))
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
}

func TestDelete_ClosedReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	_, err = f.svc.PayInFull(ctx, r.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, r.ID))

	_, err = f.svc.Get(ctx, r.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, int64(115), f.stockQuantity(t), "deletion does not restock")
	assert.Contains(t, f.audit.actions, domain.AuditDelete)
}

func TestHooksRunAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var seen []domain.HookEvent
	for _, event := range []domain.HookEvent{domain.AfterCreate, domain.AfterUpdate, domain.AfterDelete} {
		event := event
		f.svc.Hooks().On(event, func(_ context.Context, r *Receipt) error {
			seen = append(seen, event)
			return nil
		})
	}
	f.svc.Hooks().OnAfterDelete(func(context.Context, *Receipt) error {
		return apperror.NewInternal(errors.New("metrics sink down"))
	})

	r, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, r.ID, StatusAccepted)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, r.ID), "a failing hook does not fail the committed delete")

	assert.Equal(t, []domain.HookEvent{domain.AfterCreate, domain.AfterUpdate, domain.AfterDelete}, seen)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.fiveUnits())
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, first.ID, StatusAccepted)
	require.NoError(t, err)

	filter := domain.DefaultListFilter()
	filter.StoreID = f.storeID
	res, err := f.svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalCount)

	filter.State = "1"
	res, err = f.svc.List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, first.ID, res.Items[0].ID)
}
