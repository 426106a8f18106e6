// Package middleware provides HTTP middleware components.
package middleware

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	"storeledger/internal/core/apperror"
	appctx "storeledger/internal/core/context"
	"storeledger/pkg/logger"
)

// PanicObserver counts recovered panics per route.
type PanicObserver interface {
	ObservePanic(route string)
}

// Recovery turns a panicking handler into a 500 carrying only the request id.
// The ledger transaction of the request has already rolled back by the time
// the panic reaches here. A panic caused by the client hanging up is logged
// without a response. obs may be nil.
func Recovery(obs PanicObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			ctx := c.Request.Context()
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}

			if clientGone(rec) {
				logger.Warn(ctx, "client disconnected mid-response",
					"route", route,
					"error", rec)
				c.Abort()
				return
			}

			if obs != nil {
				obs.ObservePanic(route)
			}
			logger.Error(ctx, "handler panicked",
				"route", route,
				"method", c.Request.Method,
				"user_id", appctx.GetUserID(ctx),
				"panic", rec,
				"stack", string(debug.Stack()))

			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic in %s %s: %v", c.Request.Method, route, rec)))
			c.Abort()
		}()
		c.Next()
	}
}

func clientGone(rec any) bool {
	err, ok := rec.(error)
	if !ok {
		return false
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if errors.As(opErr, &sysErr) {
		return errors.Is(sysErr.Err, syscall.EPIPE) || errors.Is(sysErr.Err, syscall.ECONNRESET)
	}
	return false
}
