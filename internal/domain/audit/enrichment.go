// Package audit provides utilities for audit field enrichment in domain entities.
package audit

import (
	"context"

	appctx "storeledger/internal/core/context"
)

// Authored is implemented by documents that record who created and last changed them.
type Authored interface {
	SetCreatedBy(string)
	SetUpdatedBy(string)
}

// EnrichCreatedBy sets CreatedBy and UpdatedBy from the request actor.
// If no user is in context, this is a no-op.
func EnrichCreatedBy(ctx context.Context, e Authored) {
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return
	}
	e.SetCreatedBy(userID)
	e.SetUpdatedBy(userID)
}

// EnrichUpdatedBy sets only UpdatedBy from the request actor.
func EnrichUpdatedBy(ctx context.Context, e Authored) {
	if userID := appctx.GetUserID(ctx); userID != "" {
		e.SetUpdatedBy(userID)
	}
}
