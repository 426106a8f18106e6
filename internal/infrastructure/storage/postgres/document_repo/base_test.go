package document_repo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
	"storeledger/internal/domain"
)

func TestParseOrderBy(t *testing.T) {
	repo := NewPurchaseRepo(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"", "date DESC"},
		{"-date", "date DESC"},
		{"number", "number ASC"},
		{"+total_amount", "total_amount ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := repo.parseOrderBy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := repo.parseOrderBy("-1; DROP TABLE doc_purchases")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestListQuery_PurchaseFilters(t *testing.T) {
	repo := NewPurchaseRepo(nil)
	storeID, supplierID := id.New(), id.New()

	q, err := repo.listQuery(domain.ListFilter{
		StoreID:        storeID,
		CounterpartyID: &supplierID,
		State:          "credit",
	})
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	where := sql[strings.Index(sql, "WHERE"):]
	assert.Equal(t, "WHERE store_id = $1 AND deletion_mark = $2 AND supplier_id = $3 AND payment_state = $4", where)
	assert.Equal(t, []any{storeID, false, supplierID, "credit"}, args)
}

func TestListQuery_ReceiptStatus(t *testing.T) {
	repo := NewReceiptRepo(nil)
	storeID := id.New()

	q, err := repo.listQuery(domain.ListFilter{StoreID: storeID, State: "3", IncludeDeleted: true})
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "WHERE store_id = $1 AND status = $2"))
	assert.Equal(t, []any{storeID, 3}, args)

	_, err = repo.listQuery(domain.ListFilter{StoreID: storeID, State: "7"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = repo.listQuery(domain.ListFilter{StoreID: storeID, State: "paid-ish"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
