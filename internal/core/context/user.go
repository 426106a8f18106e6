// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Roles recognised by the ledger API.
const (
	RoleAdmin  = "admin"
	RoleStore  = "store"
	RoleClient = "client"
)

// UserContext is the authenticated actor of a request.
type UserContext struct {
	UserID   string
	Role     string
	StoreIDs []string // stores the actor manages (role=store)
	ClientID string   // set for role=client
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetRole returns the actor role or empty string.
func GetRole(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.Role
	}
	return ""
}

// CanManageStore reports whether the actor may mutate the store's ledgers.
func CanManageStore(ctx context.Context, storeID string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	for _, s := range u.StoreIDs {
		if s == storeID {
			return true
		}
	}
	return false
}
