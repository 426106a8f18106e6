package handlers

import (
	"github.com/gin-gonic/gin"

	"storeledger/internal/domain/reports"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles HTTP requests for store reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// StockValuation handles GET /stores/:storeId/reports/stock-valuation
func (h *ReportsHandler) StockValuation(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok || !h.AuthorizeStore(c, storeID) {
		return
	}
	var req dto.StockValuationRequest
	if !h.BindQuery(c, &req) {
		return
	}

	report, err := h.service.GetStockValuation(c.Request.Context(), req.ToFilter(storeID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Settlement handles GET /stores/:storeId/reports/settlement
func (h *ReportsHandler) Settlement(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok || !h.AuthorizeStore(c, storeID) {
		return
	}
	var req dto.SettlementRequest
	if !h.BindQuery(c, &req) {
		return
	}

	report, err := h.service.GetSettlement(c.Request.Context(), req.ToFilter(storeID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
