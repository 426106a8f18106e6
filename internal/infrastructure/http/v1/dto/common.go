// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
	"storeledger/internal/domain"
)

// --- Pagination ---

// ListRequest carries the query parameters of ledger listings.
type ListRequest struct {
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
	OrderBy        string `form:"orderBy"`
	State          string `form:"state"`
	CounterpartyID string `form:"counterpartyId" binding:"omitempty,uuid"`
	IncludeDeleted bool   `form:"includeDeleted"`
}

// ToFilter builds the domain filter for storeID.
func (r *ListRequest) ToFilter(storeID id.ID) domain.ListFilter {
	f := domain.DefaultListFilter()
	f.StoreID = storeID
	if r.Limit > 0 {
		f.Limit = r.Limit
	}
	f.Offset = r.Offset
	if r.OrderBy != "" {
		f.OrderBy = r.OrderBy
	}
	f.State = r.State
	f.IncludeDeleted = r.IncludeDeleted
	if r.CounterpartyID != "" {
		cp, _ := id.Parse(r.CounterpartyID)
		f.CounterpartyID = &cp
	}
	return f
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// FromListResult converts a domain page.
func FromListResult[T any](r domain.ListResult[T]) ListResponse[T] {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// --- Settlement ---

// PaymentRequest records one payment.
type PaymentRequest struct {
	Amount types.Money `json:"amount" binding:"decimal_gt0"`
}

// ToggleRequest switches a flag on or off.
type ToggleRequest struct {
	Value *bool `json:"value" binding:"required"`
}
