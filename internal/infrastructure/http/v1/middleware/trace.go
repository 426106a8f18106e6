package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "storeledger/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Gin context keys set by Trace.
const (
	ContextRequestID = "request_id"
	ContextTraceID   = "trace_id"
)

// Trace middleware adds request tracing context.
// The request id is taken from X-Request-ID or generated.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := appctx.NewTraceContext(c.Request.Context(), c.GetHeader(HeaderRequestID))

		ctx := appctx.WithTrace(c.Request.Context(), trace)
		c.Request = c.Request.WithContext(ctx)

		c.Set(ContextTraceID, trace.TraceID)
		c.Set(ContextRequestID, trace.RequestID)

		c.Header(HeaderRequestID, trace.RequestID)
		c.Header(HeaderTraceID, trace.TraceID)

		c.Next()
	}
}
