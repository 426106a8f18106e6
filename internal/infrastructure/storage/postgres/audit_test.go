package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/registers/stock"
)

func TestDiff(t *testing.T) {
	changes := Diff(
		map[string]any{"quantity": int64(10), "price": "1.50", "gone": true},
		map[string]any{"quantity": int64(14), "price": "1.50", "added": "x"},
	)

	assert.Equal(t, map[string]any{"old": int64(10), "new": int64(14)}, changes["quantity"])
	assert.NotContains(t, changes, "price")
	assert.Equal(t, map[string]any{"old": true, "new": nil}, changes["gone"])
	assert.Equal(t, map[string]any{"old": nil, "new": "x"}, changes["added"])
}

func TestChangeSet(t *testing.T) {
	before := stock.Batch{ID: id.New(), Quantity: 10, BuyingPrice: types.MustMoney("1")}
	after := before
	after.Quantity = 14

	changes := ChangeSet(before, after)
	assert.Len(t, changes, 1)
	assert.Contains(t, changes, "quantity")

	deleted := ChangeSet(&before, nil)
	assert.Equal(t, &before, deleted["before"])
	assert.Nil(t, deleted["after"])
}

func TestAuditCompressionRoundTrip(t *testing.T) {
	svc, err := NewAuditService(nil, 64)
	require.NoError(t, err)

	small := []byte(`{"quantity":{"old":10,"new":14}}`)
	var e AuditEntry
	svc.encode(&e, small)
	assert.Equal(t, CompressionNone, e.CompressionAlgo)
	assert.JSONEq(t, string(small), string(e.Changes))

	large := []byte(`{"note":"` + strings.Repeat("shelf ", 100) + `"}`)
	e = AuditEntry{ID: id.New()}
	svc.encode(&e, large)
	require.Equal(t, CompressionZstd, e.CompressionAlgo)
	assert.Nil(t, e.Changes)
	assert.Less(t, len(e.ChangesCompressed), len(large))

	require.NoError(t, svc.decode(&e))
	assert.Equal(t, large, []byte(e.Changes))
	assert.Nil(t, e.ChangesCompressed)
}
