package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storeledger/internal/core/apperror"
	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/id"
	"storeledger/internal/domain/documents/receipt"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// ReceiptHandler handles HTTP requests for client orders.
type ReceiptHandler struct {
	*BaseHandler
	service *receipt.Service
}

// NewReceiptHandler creates a new receipt handler.
func NewReceiptHandler(base *BaseHandler, service *receipt.Service) *ReceiptHandler {
	return &ReceiptHandler{BaseHandler: base, service: service}
}

// Create handles POST /stores/:storeId/receipts
// Store actors place orders for any client; a client only for itself.
func (h *ReceiptHandler) Create(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok {
		return
	}
	var req dto.CreateReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if !h.isClient(c, req.ClientRef()) && !h.AuthorizeStore(c, storeID) {
		return
	}

	r, err := h.service.Create(c.Request.Context(), req.ToInput(storeID))
	if h.Observe("receipt.create", err) != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, r)
}

// Get handles GET /receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	r, err := h.service.Get(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !h.isClient(c, r.ClientID) && !h.AuthorizeStore(c, r.StoreID) {
		return
	}
	h.OK(c, r)
}

// List handles GET /stores/:storeId/receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok {
		return
	}
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := req.ToFilter(storeID)

	// Clients see their own orders only.
	if user := appctx.GetUser(c.Request.Context()); user != nil && user.Role == appctx.RoleClient {
		clientID, err := id.Parse(user.ClientID)
		if err != nil {
			h.Error(c, apperror.NewForbidden("client identity missing"))
			return
		}
		filter.CounterpartyID = &clientID
	} else if !h.AuthorizeStore(c, storeID) {
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// AppendSnapshot handles POST /receipts/:id/snapshots
func (h *ReceiptHandler) AppendSnapshot(c *gin.Context) {
	var req dto.ReceiptSnapshotRequest
	h.mutate(c, "receipt.append_snapshot", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.AppendStatusSnapshot(ctx, receiptID, req.ToAdjustments())
	})
}

// ValidateDelivery handles POST /receipts/:id/deliver
func (h *ReceiptHandler) ValidateDelivery(c *gin.Context) {
	h.mutate(c, "receipt.validate_delivery", nil, h.service.ValidateDelivery)
}

// UpdateExpectedDelivery handles PUT /receipts/:id/expected-delivery
func (h *ReceiptHandler) UpdateExpectedDelivery(c *gin.Context) {
	var req dto.ExpectedDeliveryRequest
	h.mutate(c, "receipt.update_expected_delivery", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.UpdateExpectedDeliveryDate(ctx, receiptID, req.Date)
	})
}

// UpdateLinePrice handles PUT /receipts/:id/lines/price
func (h *ReceiptHandler) UpdateLinePrice(c *gin.Context) {
	var req dto.LinePriceRequest
	h.mutate(c, "receipt.update_line_price", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.UpdateLineItemPrice(ctx, receiptID, req.ToKey(), req.Price)
	})
}

// UpdateStatus handles PUT /receipts/:id/status
func (h *ReceiptHandler) UpdateStatus(c *gin.Context) {
	var req dto.StatusRequest
	h.mutate(c, "receipt.update_status", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.UpdateStatus(ctx, receiptID, receipt.Status(*req.Status))
	})
}

// Return handles POST /receipts/:id/return
func (h *ReceiptHandler) Return(c *gin.Context) {
	var req dto.ReturnRequest
	h.mutate(c, "receipt.return", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.Return(ctx, receiptID, req.Reason)
	})
}

// AddPayment handles POST /receipts/:id/payments
func (h *ReceiptHandler) AddPayment(c *gin.Context) {
	var req dto.PaymentRequest
	h.mutate(c, "receipt.add_payment", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.AddPayment(ctx, receiptID, req.Amount)
	})
}

// PayInFull handles POST /receipts/:id/pay-in-full
func (h *ReceiptHandler) PayInFull(c *gin.Context) {
	h.mutate(c, "receipt.pay_in_full", nil, h.service.PayInFull)
}

// SetCredit handles PUT /receipts/:id/credit
func (h *ReceiptHandler) SetCredit(c *gin.Context) {
	var req dto.ToggleRequest
	h.mutate(c, "receipt.set_credit", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.SetCredit(ctx, receiptID, *req.Value)
	})
}

// SetDeposit handles PUT /receipts/:id/deposit
func (h *ReceiptHandler) SetDeposit(c *gin.Context) {
	var req dto.ToggleRequest
	h.mutate(c, "receipt.set_deposit", &req, func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
		return h.service.SetDeposit(ctx, receiptID, *req.Value)
	})
}

// Delete handles DELETE /receipts/:id
func (h *ReceiptHandler) Delete(c *gin.Context) {
	r, ok := h.loadManaged(c)
	if !ok {
		return
	}
	err := h.service.Delete(c.Request.Context(), r.ID)
	if h.Observe("receipt.delete", err) != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// mutate authorizes the :id receipt for its store, binds req when given
// and runs op.
func (h *ReceiptHandler) mutate(
	c *gin.Context,
	operation string,
	req any,
	op func(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error),
) {
	r, ok := h.loadManaged(c)
	if !ok {
		return
	}
	if req != nil && !h.BindJSON(c, req) {
		return
	}

	updated, err := op(c.Request.Context(), r.ID)
	if h.Observe(operation, err) != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, updated)
}

func (h *ReceiptHandler) loadManaged(c *gin.Context) (*receipt.Receipt, bool) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return nil, false
	}
	r, err := h.service.Get(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	if !h.AuthorizeStore(c, r.StoreID) {
		return nil, false
	}
	return r, true
}

// isClient reports whether the actor is the client clientID.
func (h *ReceiptHandler) isClient(c *gin.Context, clientID id.ID) bool {
	user := appctx.GetUser(c.Request.Context())
	return user != nil && user.Role == appctx.RoleClient && user.ClientID == clientID.String()
}
