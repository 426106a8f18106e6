// Package apperror provides structured error handling for the ledger API.
// Every rejection raised by the ledger core is an AppError with a stable code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. The code is the stable "kind" a client can branch on.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Ledger rule violations (422)
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeQuantityLimitExceeded = "QUANTITY_LIMIT_EXCEEDED"
	CodeAmountMismatch        = "AMOUNT_MISMATCH"
	CodeNegativeProfit        = "NEGATIVE_PROFIT"
	CodeNoChange              = "NO_CHANGE"
	CodeExceedsTotal          = "EXCEEDS_TOTAL"

	// State errors (409)
	CodeStateConflict          = "STATE_CONFLICT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeIdempotency            = "IDEMPOTENCY_CONFLICT"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type of the service.
// It implements error and carries structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (ids, quantities, amounts)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a ledger rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(stockID string, requested, available int64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"stock_id":  stockID,
			"requested": requested,
			"available": available,
		},
	}
}

// NewQuantityLimitExceeded is returned when one sale asks for more units
// than the stock's per-sale limit.
func NewQuantityLimitExceeded(stockID string, requested, limit int64) *AppError {
	return &AppError{
		Code:       CodeQuantityLimitExceeded,
		Message:    "Requested quantity exceeds the per-sale limit",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"stock_id":  stockID,
			"requested": requested,
			"limit":     limit,
		},
	}
}

// NewAmountMismatch reports a declared total that differs from the computed one.
func NewAmountMismatch(declared, computed fmt.Stringer) *AppError {
	return &AppError{
		Code:       CodeAmountMismatch,
		Message:    "Declared amount does not match the computed amount",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"declared": declared.String(),
			"computed": computed.String(),
		},
	}
}

// NewNegativeProfit rejects a sale below cost.
func NewNegativeProfit(profit fmt.Stringer) *AppError {
	return &AppError{
		Code:       CodeNegativeProfit,
		Message:    "Sale would realize a loss",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"profit": profit.String()},
	}
}

// NewNoChange is returned when a snapshot append carries no real adjustment.
func NewNoChange(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNoChange,
		Message:    "Adjustments produce no change",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewExceedsTotal is returned when a payment would overpay the ledger.
func NewExceedsTotal(paid, amount, total fmt.Stringer) *AppError {
	return &AppError{
		Code:       CodeExceedsTotal,
		Message:    "Payment exceeds the outstanding total",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"paid":   paid.String(),
			"amount": amount.String(),
			"total":  total.String(),
		},
	}
}

// NewStateConflict creates an error for an operation invalid in the current state (409)
func NewStateConflict(message string) *AppError {
	return &AppError{
		Code:       CodeStateConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
