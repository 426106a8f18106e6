package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/types"
)

var day = time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

func TestSettlement_CreditToggleClearsPayments(t *testing.T) {
	s := NewSettlement()
	require.NoError(t, s.SetCredit(true))
	assert.True(t, s.Credit())

	require.NoError(t, s.AddPayment(types.MustMoney("100"), types.MustMoney("500"), day))
	require.Len(t, s.Payments, 1)

	require.NoError(t, s.SetCredit(false))
	assert.Equal(t, StateNew, s.State)
	assert.Empty(t, s.Payments)
}

func TestSettlement_AddPaymentRequiresCredit(t *testing.T) {
	s := NewSettlement()
	err := s.AddPayment(types.MustMoney("750"), types.MustMoney("750"), day)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
	assert.Empty(t, s.Payments)
}

func TestSettlement_AddPaymentClosesAtTotal(t *testing.T) {
	s := NewSettlement()
	require.NoError(t, s.SetCredit(true))
	total := types.MustMoney("1000")

	require.NoError(t, s.AddPayment(types.MustMoney("400"), total, day))
	assert.False(t, s.Closed())

	err := s.AddPayment(types.MustMoney("700"), total, day)
	assert.True(t, apperror.HasCode(err, apperror.CodeExceedsTotal))

	require.NoError(t, s.AddPayment(types.MustMoney("600"), total, day))
	assert.True(t, s.Closed())
	assert.True(t, s.Credit())
	assert.NoError(t, s.Check(total))

	err = s.AddPayment(types.MustMoney("1"), total, day)
	assert.True(t, apperror.HasCode(err, apperror.CodeStateConflict))
}

func TestSettlement_RejectsNonPositivePayment(t *testing.T) {
	s := NewSettlement()
	require.NoError(t, s.SetCredit(true))
	err := s.AddPayment(types.Zero(), types.MustMoney("10"), day)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestSettlement_PayInFull(t *testing.T) {
	s := NewSettlement()
	require.NoError(t, s.SetCredit(true))
	require.NoError(t, s.SetDeposit(true))
	require.NoError(t, s.AddPayment(types.MustMoney("10"), types.MustMoney("90"), day))

	require.NoError(t, s.PayInFull(types.MustMoney("90"), day))
	assert.Equal(t, StatePaid, s.State)
	assert.False(t, s.Credit())
	assert.False(t, s.Deposit)
	require.Len(t, s.Payments, 1)
	assert.True(t, s.Paid().Equal(types.MustMoney("90")))

	assert.True(t, apperror.HasCode(s.PayInFull(types.MustMoney("90"), day), apperror.CodeStateConflict))
	assert.True(t, apperror.HasCode(s.SetCredit(true), apperror.CodeStateConflict))
	assert.True(t, apperror.HasCode(s.SetDeposit(true), apperror.CodeStateConflict))
}

func TestSettlement_RebalanceFromMostRecent(t *testing.T) {
	s := Settlement{
		State: StateCredit,
		Payments: Payments{
			{Date: day, Amount: types.MustMoney("3000")},
			{Date: day.Add(time.Hour), Amount: types.MustMoney("2000")},
			{Date: day.Add(2 * time.Hour), Amount: types.MustMoney("1000")},
		},
	}

	removed := s.Rebalance(types.MustMoney("4000"))

	assert.True(t, removed.Equal(types.MustMoney("2000")))
	assert.True(t, s.Payments[0].Amount.Equal(types.MustMoney("3000")))
	assert.True(t, s.Payments[1].Amount.Equal(types.MustMoney("1000")))
	assert.True(t, s.Payments[2].Amount.IsZero())
	assert.True(t, s.Closed(), "payments equal the new total")
	assert.NoError(t, s.Check(types.MustMoney("4000")))
}

func TestSettlement_RebalanceUnderTotalKeepsOpen(t *testing.T) {
	s := Settlement{State: StateCredit, Payments: Payments{{Date: day, Amount: types.MustMoney("1000")}}}

	removed := s.Rebalance(types.MustMoney("4000"))

	assert.True(t, removed.IsZero())
	assert.False(t, s.Closed())
}

func TestSettlement_RebalancePaidLedgerStaysPaid(t *testing.T) {
	s := NewSettlement()
	require.NoError(t, s.PayInFull(types.MustMoney("500"), day))

	s.Rebalance(types.MustMoney("200"))

	assert.Equal(t, StatePaid, s.State)
	assert.NoError(t, s.Check(types.MustMoney("200")))
}

func TestPayments_JSONRoundTripThroughScanner(t *testing.T) {
	in := Payments{{Date: day, Amount: types.MustMoney("12.50")}}
	v, err := in.Value()
	require.NoError(t, err)

	var out Payments
	require.NoError(t, out.Scan(v))
	require.Len(t, out, 1)
	assert.True(t, out[0].Amount.Equal(in[0].Amount))

	var empty Payments
	v, err = empty.Value()
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(v.([]byte)))

	raw, err := json.Marshal(Settlement{State: StateNew})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state":"new"`)
}
