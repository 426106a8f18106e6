package catalog_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"storeledger/internal/core/id"
	"storeledger/internal/domain/catalogs"
	"storeledger/internal/infrastructure/storage/postgres"
)

const (
	storesTable    = "cat_stores"
	productsTable  = "cat_products"
	suppliersTable = "cat_suppliers"
	clientsTable   = "cat_clients"
	membersTable   = "cat_store_members"
)

// Lookup implements catalogs.Lookup over the catalog tables.
type Lookup struct {
	txManager *postgres.TxManager

	Stores    *BaseCatalogRepo[catalogs.Store]
	Products  *BaseCatalogRepo[catalogs.Product]
	Suppliers *BaseCatalogRepo[catalogs.Supplier]
	Clients   *BaseCatalogRepo[catalogs.Client]
}

// NewLookup creates a catalog lookup.
func NewLookup(txManager *postgres.TxManager) *Lookup {
	return &Lookup{
		txManager: txManager,
		Stores:    NewBaseCatalogRepo[catalogs.Store](txManager, storesTable, "store"),
		Products:  NewBaseCatalogRepo[catalogs.Product](txManager, productsTable, "product"),
		Suppliers: NewBaseCatalogRepo[catalogs.Supplier](txManager, suppliersTable, "supplier"),
		Clients:   NewBaseCatalogRepo[catalogs.Client](txManager, clientsTable, "client"),
	}
}

func (l *Lookup) Store(ctx context.Context, storeID id.ID) (*catalogs.Store, error) {
	return l.Stores.GetByID(ctx, storeID)
}

func (l *Lookup) Product(ctx context.Context, productID id.ID) (*catalogs.Product, error) {
	return l.Products.GetByID(ctx, productID)
}

func (l *Lookup) Supplier(ctx context.Context, supplierID id.ID) (*catalogs.Supplier, error) {
	return l.Suppliers.GetByID(ctx, supplierID)
}

func (l *Lookup) Client(ctx context.Context, clientID id.ID) (*catalogs.Client, error) {
	return l.Clients.GetByID(ctx, clientID)
}

func membershipQuery(clientID, storeID id.ID) squirrel.SelectBuilder {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("approved").
		From(membersTable).
		Where(squirrel.Eq{"client_id": clientID, "store_id": storeID})
}

// IsApprovedMember reports whether the client was approved by the store.
// A missing membership row is not an error.
func (l *Lookup) IsApprovedMember(ctx context.Context, clientID, storeID id.ID) (bool, error) {
	sql, args, err := membershipQuery(clientID, storeID).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var approved bool
	err = l.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&approved)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("membership: %w", err)
	}
	return approved, nil
}

// SetMembership records or updates the membership of clientID in storeID.
func (l *Lookup) SetMembership(ctx context.Context, clientID, storeID id.ID, approved bool) error {
	sql, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert(membersTable).
		Columns("client_id", "store_id", "approved").
		Values(clientID, storeID, approved).
		Suffix("ON CONFLICT (client_id, store_id) DO UPDATE SET approved = EXCLUDED.approved").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := l.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("set membership: %w", err)
	}
	return nil
}

var _ catalogs.Lookup = (*Lookup)(nil)
