package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/id"
	"storeledger/internal/core/numerator"
	"storeledger/internal/core/tx"
	"storeledger/internal/domain"
	"storeledger/internal/domain/auth"
	"storeledger/internal/domain/catalogs"
	"storeledger/internal/domain/documents/purchase"
	"storeledger/internal/domain/documents/receipt"
	"storeledger/internal/domain/registers/stock"
	"storeledger/internal/domain/reports"
	"storeledger/internal/infrastructure/http/v1/middleware"
	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/pkg/logger"
)

type memoryIdempotency struct {
	pending   map[string]bool
	completed map[string]*postgres.IdempotencyReplay
	released  []string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{
		pending:   map[string]bool{},
		completed: map[string]*postgres.IdempotencyReplay{},
	}
}

func (m *memoryIdempotency) AcquireKey(_ context.Context, key, _, _, _ string) (*postgres.IdempotencyReplay, error) {
	if r, ok := m.completed[key]; ok {
		return r, nil
	}
	if m.pending[key] {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	m.pending[key] = true
	return nil, nil
}

func (m *memoryIdempotency) CompleteKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	delete(m.pending, key)
	m.completed[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: append([]byte(nil), body...)}
	return nil
}

func (m *memoryIdempotency) FailKey(ctx context.Context, key string, status int, contentType string, body []byte) error {
	return m.CompleteKey(ctx, key, status, contentType, body)
}

func (m *memoryIdempotency) ReleaseKey(_ context.Context, key string) error {
	delete(m.pending, key)
	m.released = append(m.released, key)
	return nil
}

type stubReports struct{}

func (stubReports) StockValuation(context.Context, reports.StockValuationFilter) ([]reports.StockValuationItem, error) {
	return []reports.StockValuationItem{{StockID: id.New(), Quantity: 3, Batches: 1}}, nil
}

func (stubReports) PurchaseSettlement(context.Context, reports.SettlementFilter) ([]reports.SettlementRow, error) {
	return nil, nil
}

func (stubReports) ReceiptSettlement(context.Context, reports.SettlementFilter) ([]reports.SettlementRow, error) {
	return nil, nil
}

type apiFixture struct {
	cfg       RouterConfig
	storeID   id.ID
	productID id.ID
	clientID  id.ID
}

func newAPIFixture() *apiFixture {
	f := &apiFixture{storeID: id.New(), productID: id.New(), clientID: id.New()}
	lookup := catalogs.NewMemoryLookup().
		AddStore(&catalogs.Store{ID: f.storeID, Name: "Main street", IsActive: true}).
		AddProduct(&catalogs.Product{ID: f.productID, Name: "Olive oil 1L", BoxItems: 12}).
		AddClient(&catalogs.Client{ID: f.clientID, Code: "CL042", Name: "Corner cafe"}).
		Approve(f.clientID, f.storeID)
	now := clock.Fixed(time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC))
	txm := &tx.MockManager{}

	stockRepo := stock.NewMemoryRepository()
	stocks := stock.NewService(stockRepo, lookup, txm, domain.NopPublisher{}, domain.NopAuditor{}, now)
	f.cfg = RouterConfig{
		Logger:    logger.Default(),
		Stocks:    stocks,
		StockRepo: stockRepo,
		Purchases: purchase.NewService(purchase.NewMemoryRepository(), stocks, lookup, &numerator.MockGenerator{},
			txm, domain.NopPublisher{}, domain.NopAuditor{}, now),
		Receipts: receipt.NewService(receipt.NewMemoryRepository(), stocks, lookup, &numerator.MockGenerator{},
			txm, domain.NopPublisher{}, domain.NopAuditor{}, now),
		Reports: reports.NewService(stubReports{}, now),
	}
	return f
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func (f *apiFixture) addBatch(quantity int64) map[string]any {
	return map[string]any{
		"productId":    f.productID.String(),
		"quantity":     quantity,
		"buyingPrice":  "100",
		"sellingPrice": "150",
	}
}

func TestRouter_Health(t *testing.T) {
	router := NewRouter(newAPIFixture().cfg)

	w := do(t, router, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestRouter_AddBatchAndGetStock(t *testing.T) {
	f := newAPIFixture()
	router := NewRouter(f.cfg)

	w := do(t, router, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/stocks", f.addBatch(120), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var placed struct {
		Stock   stock.Stock `json:"stock"`
		Created bool        `json:"created"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &placed))
	assert.True(t, placed.Created)
	assert.Equal(t, int64(120), placed.Stock.Quantity)

	w = do(t, router, http.MethodGet, "/api/v1/stocks/"+placed.Stock.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/stocks/"+placed.Stock.ID.String()+"/batches", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var batches struct {
		Items []stock.Batch `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batches))
	assert.Len(t, batches.Items, 1)
}

func TestRouter_ValidationError(t *testing.T) {
	f := newAPIFixture()
	router := NewRouter(f.cfg)

	body := f.addBatch(10)
	body["buyingPrice"] = "-1"
	w := do(t, router, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/stocks", body, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, w))
}

func TestRouter_InvalidPathID(t *testing.T) {
	router := NewRouter(newAPIFixture().cfg)

	w := do(t, router, http.MethodGet, "/api/v1/stocks/not-a-uuid", nil, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, w))
}

func TestRouter_ReceiptInsufficientStock(t *testing.T) {
	f := newAPIFixture()
	router := NewRouter(f.cfg)

	w := do(t, router, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/stocks", f.addBatch(10), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var placed struct {
		Stock stock.Stock `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &placed))

	order := map[string]any{
		"clientId": f.clientID.String(),
		"lines": []map[string]any{
			{"stockId": placed.Stock.ID.String(), "quantity": 11, "price": "150"},
		},
		"total":        "1650",
		"type":         "pickup",
		"deliveryCost": "0",
	}
	w = do(t, router, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/receipts", order, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInsufficientStock, errorCode(t, w))
}

func TestRouter_PurchaseNotFound(t *testing.T) {
	router := NewRouter(newAPIFixture().cfg)

	w := do(t, router, http.MethodGet, "/api/v1/purchases/"+id.New().String(), nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, errorCode(t, w))
}

func TestRouter_Auth(t *testing.T) {
	f := newAPIFixture()
	jwt := auth.NewJWTService(auth.DefaultJWTConfig("secret"))
	f.cfg.JWTValidator = jwt
	router := NewRouter(f.cfg)
	path := "/api/v1/stores/" + f.storeID.String() + "/stocks"

	w := do(t, router, http.MethodPost, path, f.addBatch(5), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, errorCode(t, w))

	other, _, err := jwt.GenerateAccessToken(appctx.UserContext{
		UserID: "u2", Role: appctx.RoleStore, StoreIDs: []string{id.New().String()},
	})
	require.NoError(t, err)
	w = do(t, router, http.MethodPost, path, f.addBatch(5), map[string]string{"Authorization": "Bearer " + other})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, errorCode(t, w))

	owner, _, err := jwt.GenerateAccessToken(appctx.UserContext{
		UserID: "u1", Role: appctx.RoleStore, StoreIDs: []string{f.storeID.String()},
	})
	require.NoError(t, err)
	w = do(t, router, http.MethodPost, path, f.addBatch(5), map[string]string{"Authorization": "Bearer " + owner})
	assert.Equal(t, http.StatusCreated, w.Code)

	client, _, err := jwt.GenerateAccessToken(appctx.UserContext{
		UserID: "u3", Role: appctx.RoleClient, ClientID: f.clientID.String(),
	})
	require.NoError(t, err)
	w = do(t, router, http.MethodGet, "/api/v1/stores/"+f.storeID.String()+"/purchases", nil,
		map[string]string{"Authorization": "Bearer " + client})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, errorCode(t, w))
}

func TestRouter_IdempotentReplay(t *testing.T) {
	f := newAPIFixture()
	store := newMemoryIdempotency()
	f.cfg.Idempotency = store
	router := NewRouter(f.cfg)
	path := "/api/v1/stores/" + f.storeID.String() + "/stocks"
	headers := map[string]string{middleware.HeaderIdempotencyKey: "k-1"}

	first := do(t, router, http.MethodPost, path, f.addBatch(5), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := do(t, router, http.MethodPost, path, f.addBatch(5), headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	// The replay did not add a second batch.
	var placed struct {
		Stock stock.Stock `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &placed))
	st, err := f.cfg.Stocks.Get(context.Background(), placed.Stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Quantity)
}

func TestRouter_IdempotentFailureIsReplayed(t *testing.T) {
	f := newAPIFixture()
	store := newMemoryIdempotency()
	f.cfg.Idempotency = store
	router := NewRouter(f.cfg)
	path := "/api/v1/stores/" + f.storeID.String() + "/stocks"
	headers := map[string]string{middleware.HeaderIdempotencyKey: "k-2"}

	body := f.addBatch(5)
	body["sellingPrice"] = "50"
	w := do(t, router, http.MethodPost, path, body, headers)
	require.Equal(t, http.StatusBadRequest, w.Code)

	replay, ok := store.completed["k-2"]
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
	assert.JSONEq(t, w.Body.String(), string(replay.Body))
}

func TestRouter_Reports(t *testing.T) {
	f := newAPIFixture()
	router := NewRouter(f.cfg)

	w := do(t, router, http.MethodGet, "/api/v1/stores/"+f.storeID.String()+"/reports/stock-valuation", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report reports.StockValuationReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, int64(3), report.TotalQuantity)
	assert.Equal(t, f.storeID, report.StoreID)

	w = do(t, router, http.MethodGet, "/api/v1/stores/"+f.storeID.String()+"/reports/settlement?from=2026-04-02&to=2026-04-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, w))
}
