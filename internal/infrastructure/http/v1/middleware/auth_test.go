package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	appctx "storeledger/internal/core/context"
)

type validatorFunc func(string) (*appctx.UserContext, error)

func (f validatorFunc) ValidateToken(token string) (*appctx.UserContext, error) {
	return f(token)
}

var tokens = validatorFunc(func(token string) (*appctx.UserContext, error) {
	switch token {
	case "admin":
		return &appctx.UserContext{UserID: "a1", Role: appctx.RoleAdmin}, nil
	case "store":
		return &appctx.UserContext{UserID: "s1", Role: appctx.RoleStore, StoreIDs: []string{"st-1"}}, nil
	case "storeless":
		return &appctx.UserContext{UserID: "s2", Role: appctx.RoleStore}, nil
	case "client":
		return &appctx.UserContext{UserID: "c1", Role: appctx.RoleClient, ClientID: "cl-1"}, nil
	case "stale":
		return nil, fmt.Errorf("parse token: %w", jwt.ErrTokenExpired)
	}
	return nil, errors.New("signature is invalid")
})

func authRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), Auth(tokens))
	handlers := append(extra, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(ContextUserID), "role": c.GetString(ContextRole)})
	})
	r.GET("/ledger", handlers...)
	return r
}

func call(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ledger", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorPayload {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error
}

func TestAuth_AcceptsBearerToken(t *testing.T) {
	w := call(authRouter(), "bearer store")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"s1","role":"store"}`, w.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		status    int
		code      string
		challenge string
		reason    string
	}{
		{"no header", "", http.StatusUnauthorized, apperror.CodeUnauthorized, `Bearer realm="storeledger"`, ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, apperror.CodeUnauthorized, `Bearer realm="storeledger"`, ""},
		{"empty token", "Bearer  ", http.StatusUnauthorized, apperror.CodeUnauthorized, `Bearer realm="storeledger"`, ""},
		{"bad signature", "Bearer forged", http.StatusUnauthorized, apperror.CodeUnauthorized, `Bearer realm="storeledger", error="invalid_token"`, "invalid"},
		{"expired", "Bearer stale", http.StatusUnauthorized, apperror.CodeUnauthorized, `Bearer realm="storeledger", error="invalid_token"`, "expired"},
		{"store token without stores", "Bearer storeless", http.StatusForbidden, apperror.CodeForbidden, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(authRouter(), tt.header)

			assert.Equal(t, tt.status, w.Code)
			payload := decodeError(t, w)
			assert.Equal(t, tt.code, payload.Code)
			assert.Equal(t, tt.challenge, w.Header().Get("WWW-Authenticate"))
			if tt.reason != "" {
				assert.Equal(t, tt.reason, payload.Details["reason"])
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := authRouter(RequireRole(appctx.RoleAdmin, appctx.RoleStore))

	assert.Equal(t, http.StatusOK, call(r, "Bearer admin").Code)
	assert.Equal(t, http.StatusOK, call(r, "Bearer store").Code)

	w := call(r, "Bearer client")
	assert.Equal(t, http.StatusForbidden, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, apperror.CodeForbidden, payload.Code)
	assert.Equal(t, appctx.RoleClient, payload.Details["role"])
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/ledger", RequireRole(appctx.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := call(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, decodeError(t, w).Code)
}
