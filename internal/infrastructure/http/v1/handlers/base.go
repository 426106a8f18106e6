package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storeledger/internal/core/apperror"
	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/id"
	"storeledger/internal/infrastructure/http/v1/middleware"
)

// OperationObserver records the outcome of ledger operations.
type OperationObserver interface {
	ObserveOperation(operation string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error) {}

// BaseHandler provides common handler utilities.
type BaseHandler struct {
	observer OperationObserver
}

// NewBaseHandler creates a new base handler. A nil observer disables
// operation metrics.
func NewBaseHandler(observer OperationObserver) *BaseHandler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &BaseHandler{observer: observer}
}

// Observe records the outcome of a ledger operation and returns err unchanged.
func (h *BaseHandler) Observe(operation string, err error) error {
	h.observer.ObserveOperation(operation, err)
	return err
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, middleware.ValidationError(err, "invalid request body"))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, middleware.ValidationError(err, "invalid query parameters"))
		return false
	}
	return true
}

// PathID parses a UUID path parameter.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	parsed, err := id.Parse(c.Param(name))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+name+" format").WithDetail("field", name))
		return id.Nil(), false
	}
	return parsed, true
}

// Error processes error and sends appropriate response.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	h.HandleError(c, err)
}

// HandleError registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler (single source of truth).
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery parses integer query parameter with default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// AuthorizeStore rejects actors that may not manage storeID. Requests
// without an actor pass: authentication is disabled for them.
func (h *BaseHandler) AuthorizeStore(c *gin.Context, storeID id.ID) bool {
	ctx := c.Request.Context()
	if appctx.GetUser(ctx) == nil || appctx.CanManageStore(ctx, storeID.String()) {
		return true
	}
	h.Error(c, apperror.NewForbidden("store access denied").WithDetail("store_id", storeID.String()))
	return false
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
