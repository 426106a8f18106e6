package purchase

import (
	"context"
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

type fixture struct {
	svc        *Service
	stocks     *stock.Service
	repo       *MemoryRepository
	events     *recordingPublisher
	storeID    id.ID
	supplierID id.ID
	productID  id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       NewMemoryRepository(),
		events:     &recordingPublisher{},
		storeID:    id.New(),
		supplierID: id.New(),
		productID:  id.New(),
	}
	lookup := catalogs.NewMemoryLookup().
		AddStore(&catalogs.Store{ID: f.storeID, Name: "Main street", IsActive: true}).
		AddSupplier(&catalogs.Supplier{ID: f.supplierID, StoreID: f.storeID, Name: "Olive Co"}).
		AddProduct(&catalogs.Product{ID: f.productID, Name: "Olive oil 1L", BoxItems: 12})
	now := clock.Fixed(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	txm := &tx.MockManager{}

	f.stocks = stock.NewService(stock.NewMemoryRepository(), lookup, txm, f.events, domain.NopAuditor{}, now)
	f.svc = NewService(f.repo, f.stocks, lookup, &numerator.MockGenerator{}, txm, f.events, domain.NopAuditor{}, now)
	return f
}

// tenBoxes is Scenario A: 10 boxes of 12 units at buying 100, selling 150.
func (f *fixture) tenBoxes() CreateInput {
	return CreateInput{
		StoreID:    f.storeID,
		SupplierID: f.supplierID,
		Lines: []LineItem{{
			ProductID:    f.productID,
			Boxes:        10,
			BuyingPrice:  types.MustMoney("100"),
			SellingPrice: types.MustMoney("150"),
		}},
		Amount:   types.MustMoney("12000"),
		Discount: types.Zero(),
	}
}

func TestCreate_ReceivesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)

	assert.Equal(t, "PU-000001", p.Number)
	assert.True(t, p.TotalAmount.Equal(types.MustMoney("12000")))
	assert.Equal(t, ledger.StateNew, p.State)
	require.Len(t, p.Snapshots, 1)
	require.Len(t, p.Snapshots[0].Lines, 1)

	line := p.Snapshots[0].Lines[0]
	assert.Equal(t, int64(120), line.Quantity)

	st, err := f.stocks.Get(ctx, line.StockID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), st.Quantity)
	assert.True(t, st.BuyingPrice.Equal(types.MustMoney("100")))
	assert.True(t, st.SellingPrice.Equal(types.MustMoney("150")))

	batches, err := f.stocks.ListBatches(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, line.BatchID, batches[0].ID)
	assert.Equal(t, int64(120), batches[0].Quantity)

	assert.Contains(t, f.events.types, "purchase.created")
}

func TestCreate_AppliesDiscount(t *testing.T) {
	f := newFixture(t)
	in := f.tenBoxes()
	in.Discount = types.MustMoney("10")

	p, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, p.TotalAmount.Equal(types.MustMoney("10800")), p.TotalAmount.String())
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.tenBoxes()
	in.Amount = types.MustMoney("11999")
	_, err := f.svc.Create(ctx, in)
	assert.True(t, apperror.HasCode(err, apperror.CodeAmountMismatch))

	in = f.tenBoxes()
	in.Lines = nil
	_, err = f.svc.Create(ctx, in)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	in = f.tenBoxes()
	in.Lines[0].SellingPrice = types.MustMoney("90")
	_, err = f.svc.Create(ctx, in)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	in = f.tenBoxes()
	in.SupplierID = id.New()
	_, err = f.svc.Create(ctx, in)
	assert.True(t, apperror.IsNotFound(err))

	list, err := f.stocks.List(ctx, stock.Filter{StoreID: f.storeID})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected purchases receive nothing")
}

func TestAppendSnapshot_ReturnsUnitsToSupplier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)
	line := p.Snapshots[0].Lines[0]

	p, err = f.svc.AppendSnapshot(ctx, p.ID, []Adjustment{{BatchID: line.BatchID, Quantity: 20}})
	require.NoError(t, err)

	require.Len(t, p.Snapshots, 2)
	assert.Equal(t, 2, p.Latest().Seq)
	assert.Equal(t, int64(100), p.Latest().Lines[0].Quantity)
	assert.Equal(t, int64(120), p.Snapshots[0].Lines[0].Quantity, "earlier snapshots are immutable")
	assert.True(t, p.TotalAmount.Equal(types.MustMoney("10000")))

	st, err := f.stocks.Get(ctx, line.StockID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.Quantity)
}

func TestAppendSnapshot_NoChangeLeavesPurchaseUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)

	_, err = f.svc.AppendSnapshot(ctx, p.ID, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeNoChange))

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Snapshots, 1)
	assert.True(t, got.TotalAmount.Equal(p.TotalAmount))
	assert.Equal(t, p.Version, got.Version)
}

func TestAppendSnapshot_ZeroAdjustmentReturnsWholeBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)
	line := p.Snapshots[0].Lines[0]

	p, err = f.svc.AppendSnapshot(ctx, p.ID, []Adjustment{{BatchID: line.BatchID, Quantity: 0}})
	require.NoError(t, err)

	require.Len(t, p.Snapshots, 2)
	assert.Empty(t, p.Latest().Lines)
	assert.True(t, p.TotalAmount.IsZero(), p.TotalAmount.String())

	st, err := f.stocks.Get(ctx, line.StockID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Quantity, "the dropped line goes back to the supplier")
}

// Scenario E: 10000 owed, 6000 paid on credit, goods returned down to 4000.
func TestAppendSnapshot_RebalancesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)
	p, err = f.svc.AppendSnapshot(ctx, p.ID, []Adjustment{{BatchID: p.BatchIDs()[0], Quantity: 20}})
	require.NoError(t, err)
	require.True(t, p.TotalAmount.Equal(types.MustMoney("10000")))

	_, err = f.svc.SetCredit(ctx, p.ID, true)
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx, p.ID, types.MustMoney("3000"))
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx, p.ID, types.MustMoney("3000"))
	require.NoError(t, err)

	p, err = f.svc.AppendSnapshot(ctx, p.ID, []Adjustment{{BatchID: p.BatchIDs()[0], Quantity: 60}})
	require.NoError(t, err)

	assert.True(t, p.TotalAmount.Equal(types.MustMoney("4000")))
	assert.True(t, p.Paid().Equal(types.MustMoney("4000")))
	assert.True(t, p.Payments[0].Amount.Equal(types.MustMoney("3000")))
	assert.True(t, p.Payments[1].Amount.Equal(types.MustMoney("1000")))
	assert.Equal(t, ledger.StateClosedOnCredit, p.State)
	assert.NoError(t, p.Check(p.TotalAmount))
}

func TestSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)

	_, err = f.svc.AddPayment(ctx, p.ID, types.MustMoney("100"))
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict), "payments need credit")

	_, err = f.svc.SetCredit(ctx, p.ID, true)
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx, p.ID, types.MustMoney("12000.01"))
	assert.True(t, apperror.HasCode(err, apperror.CodeExceedsTotal))

	p, err = f.svc.AddPayment(ctx, p.ID, types.MustMoney("12000"))
	require.NoError(t, err)
	assert.True(t, p.Closed())
	assert.Contains(t, f.events.types, "purchase.closed")

	_, err = f.svc.SetDeposit(ctx, p.ID, true)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
}

func TestPayInFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)
	_, err = f.svc.SetDeposit(ctx, p.ID, true)
	require.NoError(t, err)

	p, err = f.svc.PayInFull(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatePaid, p.State)
	assert.False(t, p.Deposit)
	assert.True(t, p.Paid().Equal(p.TotalAmount))

	_, err = f.svc.PayInFull(ctx, p.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)

	err = f.svc.Delete(ctx, p.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict), "batches still exist")

	require.NoError(t, f.stocks.DeleteBatch(ctx, p.BatchIDs()[0]))
	require.NoError(t, f.svc.Delete(ctx, p.ID))

	_, err = f.svc.Get(ctx, p.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Contains(t, f.events.types, "purchase.deleted")
}

func TestHooksRunAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var seen []string
	record := func(event domain.HookEvent) domain.Hook[*Purchase] {
		return func(_ context.Context, p *Purchase) error {
			seen = append(seen, string(event)+":"+p.Number)
			return nil
		}
	}
	f.svc.Hooks().OnAfterCreate(record(domain.AfterCreate))
	f.svc.Hooks().OnAfterUpdate(record(domain.AfterUpdate))
	f.svc.Hooks().OnAfterDelete(record(domain.AfterDelete))

	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)
	_, err = f.svc.AppendSnapshot(ctx, p.ID, []Adjustment{{BatchID: p.BatchIDs()[0], Quantity: 20}})
	require.NoError(t, err)
	require.NoError(t, f.stocks.DeleteBatch(ctx, p.BatchIDs()[0]))
	require.NoError(t, f.svc.Delete(ctx, p.ID))

	assert.Equal(t, []string{
		"after_create:" + p.Number,
		"after_update:" + p.Number,
		"after_delete:" + p.Number,
	}, seen)
}

func TestHooks_FailedDeleteRunsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	calls := 0
	f.svc.Hooks().OnAfterDelete(func(context.Context, *Purchase) error {
		calls++
		return nil
	})

	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)
	assert.Error(t, f.svc.Delete(ctx, p.ID))
	assert.Zero(t, calls)
}

func TestDelete_ClosedPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.tenBoxes())
	require.NoError(t, err)
	_, err = f.svc.PayInFull(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, f.stocks.DeleteBatch(ctx, p.BatchIDs()[0]))

	err = f.svc.Delete(ctx, p.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, f.tenBoxes())
		require.NoError(t, err)
	}

	filter := domain.DefaultListFilter()
	filter.StoreID = f.storeID
	filter.Limit = 2
	res, err := f.svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TotalCount)
	assert.Len(t, res.Items, 2)

	_, err = f.svc.List(ctx, domain.DefaultListFilter())
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
