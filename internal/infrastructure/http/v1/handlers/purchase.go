package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storeledger/internal/core/id"
	"storeledger/internal/domain/documents/purchase"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// PurchaseHandler handles HTTP requests for supplier purchases.
type PurchaseHandler struct {
	*BaseHandler
	service *purchase.Service
}

// NewPurchaseHandler creates a new purchase handler.
func NewPurchaseHandler(base *BaseHandler, service *purchase.Service) *PurchaseHandler {
	return &PurchaseHandler{BaseHandler: base, service: service}
}

// Create handles POST /stores/:storeId/purchases
func (h *PurchaseHandler) Create(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok || !h.AuthorizeStore(c, storeID) {
		return
	}
	var req dto.CreatePurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := h.service.Create(c.Request.Context(), req.ToInput(storeID))
	if h.Observe("purchase.create", err) != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p)
}

// Get handles GET /purchases/:id
func (h *PurchaseHandler) Get(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	h.OK(c, p)
}

// List handles GET /stores/:storeId/purchases
func (h *PurchaseHandler) List(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok || !h.AuthorizeStore(c, storeID) {
		return
	}
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	result, err := h.service.List(c.Request.Context(), req.ToFilter(storeID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// AppendSnapshot handles POST /purchases/:id/snapshots
func (h *PurchaseHandler) AppendSnapshot(c *gin.Context) {
	var req dto.PurchaseSnapshotRequest
	h.mutate(c, "purchase.append_snapshot", &req, func(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
		return h.service.AppendSnapshot(ctx, purchaseID, req.ToAdjustments())
	})
}

// AddPayment handles POST /purchases/:id/payments
func (h *PurchaseHandler) AddPayment(c *gin.Context) {
	var req dto.PaymentRequest
	h.mutate(c, "purchase.add_payment", &req, func(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
		return h.service.AddPayment(ctx, purchaseID, req.Amount)
	})
}

// PayInFull handles POST /purchases/:id/pay-in-full
func (h *PurchaseHandler) PayInFull(c *gin.Context) {
	h.mutate(c, "purchase.pay_in_full", nil, h.service.PayInFull)
}

// SetCredit handles PUT /purchases/:id/credit
func (h *PurchaseHandler) SetCredit(c *gin.Context) {
	var req dto.ToggleRequest
	h.mutate(c, "purchase.set_credit", &req, func(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
		return h.service.SetCredit(ctx, purchaseID, *req.Value)
	})
}

// SetDeposit handles PUT /purchases/:id/deposit
func (h *PurchaseHandler) SetDeposit(c *gin.Context) {
	var req dto.ToggleRequest
	h.mutate(c, "purchase.set_deposit", &req, func(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
		return h.service.SetDeposit(ctx, purchaseID, *req.Value)
	})
}

// Delete handles DELETE /purchases/:id
func (h *PurchaseHandler) Delete(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	err := h.service.Delete(c.Request.Context(), p.ID)
	if h.Observe("purchase.delete", err) != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// mutate authorizes the :id purchase, binds req when given and runs op.
func (h *PurchaseHandler) mutate(
	c *gin.Context,
	operation string,
	req any,
	op func(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error),
) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	if req != nil && !h.BindJSON(c, req) {
		return
	}

	updated, err := op(c.Request.Context(), p.ID)
	if h.Observe(operation, err) != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, updated)
}

func (h *PurchaseHandler) load(c *gin.Context) (*purchase.Purchase, bool) {
	purchaseID, ok := h.PathID(c, "id")
	if !ok {
		return nil, false
	}
	p, err := h.service.Get(c.Request.Context(), purchaseID)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	if !h.AuthorizeStore(c, p.StoreID) {
		return nil, false
	}
	return p, true
}
