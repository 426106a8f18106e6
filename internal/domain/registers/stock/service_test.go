package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/id"
	"storeledger/internal/core/tx"
	"storeledger/internal/core/types"
	"storeledger/internal/domain"
	"storeledger/internal/domain/catalogs"
)

type recordingPublisher struct{ events []domain.Event }

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.events = append(p.events, e)
	return nil
}

type recordingAuditor struct{ actions []string }

func (a *recordingAuditor) LogChange(_ context.Context, _ string, _ id.ID, action string, _, _ any) error {
	a.actions = append(a.actions, action)
	return nil
}

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	events    *recordingPublisher
	audit     *recordingAuditor
	storeID   id.ID
	productID id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      NewMemoryRepository(),
		events:    &recordingPublisher{},
		audit:     &recordingAuditor{},
		storeID:   id.New(),
		productID: id.New(),
	}
	lookup := catalogs.NewMemoryLookup().
		AddStore(&catalogs.Store{ID: f.storeID, Name: "Main street", IsActive: true}).
		AddProduct(&catalogs.Product{ID: f.productID, Name: "Olive oil 1L", BoxItems: 12})
	now := clock.Fixed(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	f.svc = NewService(f.repo, lookup, &tx.MockManager{}, f.events, f.audit, now)
	return f
}

func batchOf(qty int64, buying, selling string) BatchInput {
	return BatchInput{
		Quantity:     qty,
		BuyingPrice:  types.MustMoney(buying),
		SellingPrice: types.MustMoney(selling),
	}
}

// sumBatches returns the quantity the batch log accounts for.
func (f *fixture) sumBatches(t *testing.T, stockID id.ID) int64 {
	t.Helper()
	batches, err := f.repo.ListBatches(context.Background(), stockID)
	require.NoError(t, err)
	var sum int64
	for _, b := range batches {
		sum += b.Quantity
	}
	return sum
}

func TestCreateOrAugment_NewStock(t *testing.T) {
	f := newFixture(t)

	placed, err := f.svc.CreateOrAugment(context.Background(), f.storeID, f.productID, batchOf(120, "100", "150"))
	require.NoError(t, err)

	assert.True(t, placed.Created)
	assert.Equal(t, int64(120), placed.Stock.Quantity)
	assert.True(t, placed.Stock.BuyingPrice.Equal(types.MustMoney("100")))
	assert.Equal(t, int64(120), placed.Batch.Quantity)
	assert.Equal(t, BuyByUnit, placed.Stock.BuyingMethod)
}

func TestCreateOrAugment_AugmentsAndRefreshesPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(120, "100", "150"))
	require.NoError(t, err)
	second, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(24, "110", "160"))
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Stock.ID, second.Stock.ID)
	assert.Equal(t, int64(144), second.Stock.Quantity)
	assert.True(t, second.Stock.BuyingPrice.Equal(types.MustMoney("110")))
	assert.True(t, second.Stock.SellingPrice.Equal(types.MustMoney("160")))
	assert.Equal(t, second.Stock.Quantity, f.sumBatches(t, second.Stock.ID))
}

func TestCreateOrAugment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "150", "150"))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(0, "1", "2"))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.CreateOrAugment(ctx, id.New(), f.productID, batchOf(1, "1", "2"))
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.CreateOrAugment(ctx, f.storeID, id.New(), batchOf(1, "1", "2"))
	assert.True(t, apperror.IsNotFound(err))
}

func TestConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)
	stockID := placed.Stock.ID

	st, err := f.svc.Consume(ctx, f.storeID, stockID, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), st.Quantity)

	_, err = f.svc.Consume(ctx, f.storeID, stockID, 7)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	_, err = f.svc.Consume(ctx, id.New(), stockID, 1)
	assert.True(t, apperror.IsNotFound(err), "stock of another store")

	limit := int64(2)
	_, err = f.svc.UpdateSettings(ctx, stockID, Settings{QuantityLimit: &limit})
	require.NoError(t, err)
	_, err = f.svc.Consume(ctx, f.storeID, stockID, 3)
	assert.True(t, apperror.HasCode(err, apperror.CodeQuantityLimitExceeded))

	got, err := f.svc.Get(ctx, stockID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Quantity, "rejected consumption leaves stock untouched")
}

func TestDeleteBatch_RefusedWhenStockLacksUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)
	_, err = f.svc.Consume(ctx, f.storeID, placed.Stock.ID, 5)
	require.NoError(t, err)

	err = f.svc.DeleteBatch(ctx, placed.Batch.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	got, err := f.svc.Get(ctx, placed.Stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Quantity)
	_, err = f.repo.GetBatch(ctx, placed.Batch.ID)
	assert.NoError(t, err, "batch survives")
}

func TestDeleteBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)
	_, err = f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(5, "1", "2"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteBatch(ctx, first.Batch.ID))

	got, err := f.svc.Get(ctx, first.Stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Quantity)
	assert.Equal(t, got.Quantity, f.sumBatches(t, got.ID))
	assert.Equal(t, []string{domain.AuditDelete}, f.audit.actions)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, "stock.batch_deleted", f.events.events[0].Type)
}

func TestUpdateBatch_QuantityMovesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)

	qty := int64(14)
	buying := types.MustMoney("1.5")
	b, err := f.svc.UpdateBatch(ctx, placed.Batch.ID, BatchChange{Quantity: &qty, BuyingPrice: &buying})
	require.NoError(t, err)
	assert.Equal(t, int64(14), b.Quantity)

	got, err := f.svc.Get(ctx, placed.Stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(14), got.Quantity)
	assert.True(t, got.BuyingPrice.Equal(buying), "latest batch drives stock cost")

	_, err = f.svc.Consume(ctx, f.storeID, placed.Stock.ID, 10)
	require.NoError(t, err)
	qty = 0
	_, err = f.svc.UpdateBatch(ctx, placed.Batch.ID, BatchChange{Quantity: &qty})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
}

func TestReturnToSupplier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)

	require.NoError(t, f.svc.ReturnToSupplier(ctx, placed.Batch.ID, 4))

	got, err := f.svc.Get(ctx, placed.Stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Quantity)
	assert.Equal(t, int64(6), f.sumBatches(t, got.ID))

	err = f.svc.ReturnToSupplier(ctx, placed.Batch.ID, 7)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
}

func TestBatchEditsLockTheBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)
	batchID := placed.Batch.ID

	qty := int64(8)
	_, err = f.svc.UpdateBatch(ctx, batchID, BatchChange{Quantity: &qty})
	require.NoError(t, err)
	require.NoError(t, f.svc.ReturnToSupplier(ctx, batchID, 3))
	require.NoError(t, f.svc.DeleteBatch(ctx, batchID))

	assert.Equal(t, []id.ID{batchID, batchID, batchID}, f.repo.BatchLocks)

	got, err := f.svc.Get(ctx, placed.Stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Quantity)
}

func TestRecordLossIgnoresSaleLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)
	limit := int64(1)
	_, err = f.svc.UpdateSettings(ctx, placed.Stock.ID, Settings{QuantityLimit: &limit})
	require.NoError(t, err)

	st, err := f.svc.RecordLoss(ctx, placed.Stock.ID, 3, "broken bottles")
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Quantity)
	assert.Equal(t, []string{domain.AuditLoss}, f.audit.actions)

	_, err = f.svc.RecordLoss(ctx, placed.Stock.ID, 1, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "100", "150"))
	require.NoError(t, err)

	method := BuyByBox
	price := types.MustMoney("175")
	st, err := f.svc.UpdateSettings(ctx, placed.Stock.ID, Settings{BuyingMethod: &method, SellingPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, BuyByBox, st.BuyingMethod)
	assert.True(t, st.SellingPrice.Equal(price))

	low := types.MustMoney("90")
	_, err = f.svc.UpdateSettings(ctx, placed.Stock.ID, Settings{SellingPrice: &low})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	bad := BuyingMethod("crate")
	_, err = f.svc.UpdateSettings(ctx, placed.Stock.ID, Settings{BuyingMethod: &bad})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestStaleVersionIsConcurrentModification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, err := f.svc.CreateOrAugment(ctx, f.storeID, f.productID, batchOf(10, "1", "2"))
	require.NoError(t, err)

	stale, err := f.repo.GetForUpdate(ctx, placed.Stock.ID)
	require.NoError(t, err)
	_, err = f.svc.Consume(ctx, f.storeID, placed.Stock.ID, 1)
	require.NoError(t, err)

	stale.Quantity--
	err = f.repo.Update(ctx, stale)
	assert.True(t, apperror.IsConcurrentModification(err))
}
