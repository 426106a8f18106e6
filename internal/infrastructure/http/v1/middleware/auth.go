package middleware

import (
	"errors"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"storeledger/internal/core/apperror"
	appctx "storeledger/internal/core/context"
)

// Context keys set by Auth for handlers that read gin keys.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// TokenValidator turns a bearer token into the acting user.
type TokenValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth requires a bearer token on every request of the group and stores the
// actor (admin, store manager or client) in the request context.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			challenge(c, "", apperror.NewUnauthorized("bearer token required"))
			return
		}

		user, err := validator.ValidateToken(token)
		if err != nil {
			reason := "invalid"
			if errors.Is(err, jwt.ErrTokenExpired) {
				reason = "expired"
			}
			challenge(c, "invalid_token", apperror.NewUnauthorized("token is "+reason).
				WithDetail("reason", reason))
			return
		}
		if user.Role == appctx.RoleStore && len(user.StoreIDs) == 0 {
			_ = c.Error(apperror.NewForbidden("store token does not name any store"))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
		c.Set(ContextUserID, user.UserID)
		c.Set(ContextRole, user.Role)

		c.Next()
	}
}

// RequireRole lets the request through when the actor holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			challenge(c, "", apperror.NewUnauthorized("authentication required"))
			return
		}
		if slices.Contains(roles, user.Role) {
			c.Next()
			return
		}
		_ = c.Error(apperror.NewForbidden("role may not use this resource").
			WithDetail("role", user.Role).
			WithDetail("allowed_roles", roles))
		c.Abort()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// challenge aborts with 401 and the RFC 6750 WWW-Authenticate header.
func challenge(c *gin.Context, code string, err *apperror.AppError) {
	value := `Bearer realm="storeledger"`
	if code != "" {
		value += `, error="` + code + `"`
	}
	c.Header("WWW-Authenticate", value)
	_ = c.Error(err)
	c.Abort()
}
