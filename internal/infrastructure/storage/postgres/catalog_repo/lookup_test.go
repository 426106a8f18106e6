package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/id"
	"storeledger/internal/domain/catalogs"
)

func TestBaseCatalogRepo_ByIDQuery(t *testing.T) {
	repo := NewBaseCatalogRepo[catalogs.Supplier](nil, suppliersTable, "supplier")
	supplierID := id.New()

	sql, args, err := repo.byIDQuery(supplierID).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, store_id, name, phone FROM cat_suppliers WHERE id = $1 LIMIT 1", sql)
	assert.Equal(t, []any{supplierID}, args)
}

func TestMembershipQuery(t *testing.T) {
	clientID, storeID := id.New(), id.New()

	sql, args, err := membershipQuery(clientID, storeID).ToSql()
	require.NoError(t, err)

	// squirrel sorts Eq keys
	assert.Equal(t, "SELECT approved FROM cat_store_members WHERE client_id = $1 AND store_id = $2", sql)
	assert.Equal(t, []any{clientID, storeID}, args)
}
