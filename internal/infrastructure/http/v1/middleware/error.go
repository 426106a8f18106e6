package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"storeledger/internal/core/apperror"
	"storeledger/pkg/logger"
)

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload carries the stable code of an AppError.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status, body := errorResponse(c, err)

		// Record the failure against the idempotency key so a retry replays it.
		if idem := idempotencyFrom(c); idem != nil {
			idem.fail(c, status, body)
		}

		c.JSON(status, body)
	}
}

func errorResponse(c *gin.Context, err error) (int, ErrorBody) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}
		details := appErr.Details
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			details = map[string]any{"request_id": c.GetString(ContextRequestID)}
		}
		return appErr.HTTPStatus, ErrorBody{Error: ErrorPayload{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		}}
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)
	return http.StatusInternalServerError, ErrorBody{Error: ErrorPayload{
		Code:    apperror.CodeInternal,
		Message: "Internal server error",
		Details: map[string]any{"request_id": c.GetString(ContextRequestID)},
	}}
}

func marshalBody(body any) []byte {
	b, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return b
}
