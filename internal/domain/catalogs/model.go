// Package catalogs describes the reference data the ledgers depend on:
// stores, products, suppliers, clients and store memberships.
// Catalog maintenance lives in other services; the ledgers only read it.
package catalogs

import (
	"context"

	"storeledger/internal/core/id"
)

// Store owns stocks, purchases and receipts.
type Store struct {
	ID       id.ID  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"isActive"`
}

// Product is purchased in boxes of BoxItems units and tracked per unit.
type Product struct {
	ID       id.ID  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Barcode  string `db:"barcode" json:"barcode,omitempty"`
	BoxItems int64  `db:"box_items" json:"boxItems"`
}

// UnitsPerBox returns BoxItems, treating unset values as single units.
func (p *Product) UnitsPerBox() int64 {
	if p.BoxItems <= 0 {
		return 1
	}
	return p.BoxItems
}

// Supplier (fournisseur) delivers goods to one store.
type Supplier struct {
	ID      id.ID  `db:"id" json:"id"`
	StoreID id.ID  `db:"store_id" json:"storeId"`
	Name    string `db:"name" json:"name"`
	Phone   string `db:"phone" json:"phone,omitempty"`
}

// Client places orders; Code seeds the client's receipt codes.
type Client struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Lookup resolves catalog references. Missing entities are NotFound errors.
type Lookup interface {
	Store(ctx context.Context, storeID id.ID) (*Store, error)
	Product(ctx context.Context, productID id.ID) (*Product, error)
	Supplier(ctx context.Context, supplierID id.ID) (*Supplier, error)
	Client(ctx context.Context, clientID id.ID) (*Client, error)

	// IsApprovedMember reports whether the client was approved by the store.
	IsApprovedMember(ctx context.Context, clientID, storeID id.ID) (bool, error)
}
