package handlers

import (
	"github.com/gin-gonic/gin"

	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/id"
	"storeledger/internal/domain/registers/stock"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the stock ledger.
type StockHandler struct {
	*BaseHandler
	service *stock.Service
	repo    stock.Repository
}

// NewStockHandler creates a new stock ledger handler.
func NewStockHandler(base *BaseHandler, service *stock.Service, repo stock.Repository) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
		repo:        repo,
	}
}

// List handles GET /stores/:storeId/stocks
func (h *StockHandler) List(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok {
		return
	}
	var req dto.StockListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	stocks, err := h.service.List(c.Request.Context(), req.ToFilter(storeID))
	if err != nil {
		h.Error(c, err)
		return
	}
	if stocks == nil {
		stocks = []*stock.Stock{}
	}
	h.OK(c, gin.H{"items": stocks})
}

// Get handles GET /stocks/:id
func (h *StockHandler) Get(c *gin.Context) {
	st, ok := h.loadStock(c, false)
	if !ok {
		return
	}
	h.OK(c, st)
}

// ListBatches handles GET /stocks/:id/batches
func (h *StockHandler) ListBatches(c *gin.Context) {
	st, ok := h.loadStock(c, true)
	if !ok {
		return
	}
	batches, err := h.service.ListBatches(c.Request.Context(), st.ID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if batches == nil {
		batches = []*stock.Batch{}
	}
	h.OK(c, gin.H{"items": batches})
}

// AddBatch handles POST /stores/:storeId/stocks
func (h *StockHandler) AddBatch(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok || !h.AuthorizeStore(c, storeID) {
		return
	}
	var req dto.AddBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	placement, err := h.service.CreateOrAugment(c.Request.Context(), storeID, req.ProductRef(), req.ToInput())
	if h.Observe("stock.add_batch", err) != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromPlacement(placement))
}

// UpdateSettings handles PATCH /stocks/:id/settings
func (h *StockHandler) UpdateSettings(c *gin.Context) {
	st, ok := h.loadStock(c, true)
	if !ok {
		return
	}
	var req dto.UpdateSettingsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updated, err := h.service.UpdateSettings(c.Request.Context(), st.ID, req.ToSettings())
	if h.Observe("stock.update_settings", err) != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, updated)
}

// RecordLoss handles POST /stocks/:id/losses
func (h *StockHandler) RecordLoss(c *gin.Context) {
	st, ok := h.loadStock(c, true)
	if !ok {
		return
	}
	var req dto.RecordLossRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updated, err := h.service.RecordLoss(c.Request.Context(), st.ID, req.Quantity, req.Reason)
	if h.Observe("stock.record_loss", err) != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, updated)
}

// UpdateBatch handles PATCH /batches/:id
func (h *StockHandler) UpdateBatch(c *gin.Context) {
	batchID, ok := h.authorizeBatch(c)
	if !ok {
		return
	}
	var req dto.UpdateBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	batch, err := h.service.UpdateBatch(c.Request.Context(), batchID, req.ToChange())
	if h.Observe("stock.update_batch", err) != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, batch)
}

// DeleteBatch handles DELETE /batches/:id
func (h *StockHandler) DeleteBatch(c *gin.Context) {
	batchID, ok := h.authorizeBatch(c)
	if !ok {
		return
	}

	err := h.service.DeleteBatch(c.Request.Context(), batchID)
	if h.Observe("stock.delete_batch", err) != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// loadStock resolves the :id stock. Catalog reads are open to every actor;
// manage restricts the stock to actors managing its store.
func (h *StockHandler) loadStock(c *gin.Context, manage bool) (*stock.Stock, bool) {
	stockID, ok := h.PathID(c, "id")
	if !ok {
		return nil, false
	}
	st, err := h.service.Get(c.Request.Context(), stockID)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	if manage && !h.AuthorizeStore(c, st.StoreID) {
		return nil, false
	}
	return st, true
}

// authorizeBatch resolves the owning store of a batch only when an actor
// is present.
func (h *StockHandler) authorizeBatch(c *gin.Context) (id.ID, bool) {
	batchID, ok := h.PathID(c, "id")
	if !ok {
		return batchID, false
	}
	ctx := c.Request.Context()
	if appctx.GetUser(ctx) == nil {
		return batchID, true
	}
	batch, err := h.repo.GetBatch(ctx, batchID)
	if err != nil {
		h.Error(c, err)
		return batchID, false
	}
	st, err := h.repo.GetByID(ctx, batch.StockID)
	if err != nil {
		h.Error(c, err)
		return batchID, false
	}
	return batchID, h.AuthorizeStore(c, st.StoreID)
}
