package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/types"
)

// State is the payment state of a purchase or receipt.
//
// Credit and closure are encoded together so that only legal combinations
// exist: a ledger is new (unpaid), on credit (accepting partial payments),
// closed on credit (instalments reached the total) or paid (closed by the
// full-payment shortcut).
type State string

const (
	StateNew            State = "new"
	StateCredit         State = "credit"
	StateClosedOnCredit State = "closed_on_credit"
	StatePaid           State = "paid"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateCredit, StateClosedOnCredit, StatePaid:
		return true
	}
	return false
}

// Payment is one entry of the payment sub-ledger.
type Payment struct {
	Date   time.Time   `json:"date"`
	Amount types.Money `json:"amount"`
}

// Payments is stored as a JSONB array.
type Payments []Payment

// Sum returns the cumulative paid amount.
func (p Payments) Sum() types.Money {
	sum := types.Zero()
	for _, e := range p {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Value implements driver.Valuer.
func (p Payments) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Payments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Payments{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("payments: unsupported source type %T", src)
	}
}

// Settlement is the payment/credit/deposit/closure state of one ledger.
type Settlement struct {
	State    State    `db:"payment_state" json:"state"`
	Deposit  bool     `db:"deposit" json:"deposit"`
	Payments Payments `db:"payments" json:"payment"`
}

// NewSettlement returns the state of a freshly created ledger.
func NewSettlement() Settlement {
	return Settlement{State: StateNew, Payments: Payments{}}
}

// Credit reports whether the balance is payable over time.
func (s *Settlement) Credit() bool {
	return s.State == StateCredit || s.State == StateClosedOnCredit
}

// Closed reports whether the balance is fully paid.
func (s *Settlement) Closed() bool {
	return s.State == StateClosedOnCredit || s.State == StatePaid
}

// Paid returns the cumulative paid amount.
func (s *Settlement) Paid() types.Money {
	return s.Payments.Sum()
}

// SetCredit toggles credit. Either direction clears the payment list;
// closed ledgers cannot change.
func (s *Settlement) SetCredit(on bool) error {
	if s.Closed() {
		return apperror.NewStateConflict("ledger is closed").
			WithDetail("state", string(s.State))
	}
	switch {
	case on && s.State == StateNew:
		s.State = StateCredit
		s.Payments = Payments{}
	case !on && s.State == StateCredit:
		s.State = StateNew
		s.Payments = Payments{}
	}
	return nil
}

// SetDeposit sets the down-payment marker.
func (s *Settlement) SetDeposit(on bool) error {
	if s.Closed() {
		return apperror.NewStateConflict("ledger is closed").
			WithDetail("state", string(s.State))
	}
	s.Deposit = on
	return nil
}

// AddPayment records a partial payment on a credited ledger and closes it
// once the payments reach total exactly.
func (s *Settlement) AddPayment(amount, total types.Money, at time.Time) error {
	if !amount.IsPositive() {
		return apperror.NewValidation("payment amount must be positive").
			WithDetail("amount", amount.String())
	}
	if s.Closed() {
		return apperror.NewStateConflict("ledger is closed").
			WithDetail("state", string(s.State))
	}
	if s.State != StateCredit {
		return apperror.NewStateConflict("payments require credit; use the full-payment operation instead").
			WithDetail("state", string(s.State))
	}

	paid := s.Paid()
	if paid.Add(amount).GreaterThan(total) {
		return apperror.NewExceedsTotal(paid, amount, total)
	}

	s.Payments = append(s.Payments, Payment{Date: at, Amount: amount})
	if s.Paid().Equal(total) {
		s.State = StateClosedOnCredit
	}
	return nil
}

// PayInFull replaces the payment list with a single payment of total,
// closes the ledger and clears credit and deposit.
func (s *Settlement) PayInFull(total types.Money, at time.Time) error {
	if s.Closed() {
		return apperror.NewStateConflict("ledger is closed").
			WithDetail("state", string(s.State))
	}
	s.Payments = Payments{{Date: at, Amount: total}}
	s.State = StatePaid
	s.Deposit = false
	return nil
}

// Rebalance brings the payment list back under newTotal by reducing entries
// from the most recent backwards. It returns the amount removed.
// A credited ledger whose payments now equal the total becomes closed.
func (s *Settlement) Rebalance(newTotal types.Money) types.Money {
	paid := s.Paid()
	excess := paid.Sub(newTotal)
	removed := types.Zero()

	if excess.IsPositive() {
		for i := len(s.Payments) - 1; i >= 0 && excess.IsPositive(); i-- {
			cut := types.Min(s.Payments[i].Amount, excess)
			s.Payments[i].Amount = s.Payments[i].Amount.Sub(cut)
			excess = excess.Sub(cut)
			removed = removed.Add(cut)
		}
	}

	if s.State == StateCredit && paid.IsPositive() && s.Paid().Equal(newTotal) {
		s.State = StateClosedOnCredit
	}
	return removed
}

// Check verifies the payment invariants against total.
func (s *Settlement) Check(total types.Money) error {
	if !s.State.Valid() {
		return fmt.Errorf("unknown payment state %q", s.State)
	}
	paid := s.Paid()
	if paid.GreaterThan(total) {
		return fmt.Errorf("payments %s exceed total %s", paid, total)
	}
	if s.Closed() && !paid.Equal(total) {
		return fmt.Errorf("closed ledger paid %s of %s", paid, total)
	}
	for _, p := range s.Payments {
		if p.Amount.IsNegative() {
			return fmt.Errorf("negative payment %s", p.Amount)
		}
	}
	return nil
}
