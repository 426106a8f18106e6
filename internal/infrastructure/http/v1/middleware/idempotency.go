package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storeledger/internal/core/apperror"
	appctx "storeledger/internal/core/context"
	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const contextIdempotency = "idempotency"

// IdempotencyStore persists the outcome of keyed requests.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

type idempotencyState struct {
	store IdempotencyStore
	key   string
	done  bool
}

// fail records a rejected request. Server errors release the key so the
// client may retry with the same key.
func (s *idempotencyState) fail(c *gin.Context, status int, body any) {
	if s.done {
		return
	}
	s.done = true
	ctx := context.WithoutCancel(c.Request.Context())
	var err error
	if status >= http.StatusInternalServerError {
		err = s.store.ReleaseKey(ctx, s.key)
	} else {
		err = s.store.FailKey(ctx, s.key, status, "application/json; charset=utf-8", marshalBody(body))
	}
	if err != nil {
		logger.Warn(ctx, "idempotency key not finalized", "key", s.key, "error", err)
	}
}

func idempotencyFrom(c *gin.Context) *idempotencyState {
	v, ok := c.Get(contextIdempotency)
	if !ok {
		return nil
	}
	s, _ := v.(*idempotencyState)
	return s
}

// recordingWriter keeps a copy of the response body for replay.
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency middleware protects against duplicate requests.
// Used for POST/PUT/PATCH/DELETE operations carrying X-Idempotency-Key.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		operation := c.Request.Method + " " + c.FullPath()
		userID := appctx.GetUserID(c.Request.Context())

		replay, err := store.AcquireKey(c.Request.Context(), key, userID, operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		state := &idempotencyState{store: store, key: key}
		c.Set(contextIdempotency, state)

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		// Failures are finalized by ErrorHandler with the body it renders.
		if len(c.Errors) > 0 || state.done {
			return
		}
		state.done = true
		status := rec.Status()
		ctx := context.WithoutCancel(c.Request.Context())
		if status >= http.StatusInternalServerError {
			_ = store.ReleaseKey(ctx, key)
			return
		}
		if err := store.CompleteKey(ctx, key, status, rec.Header().Get("Content-Type"), rec.body.Bytes()); err != nil {
			logger.Warn(ctx, "idempotency key not completed", "key", key, "error", err)
		}
	}
}
