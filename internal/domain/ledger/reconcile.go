// Package ledger holds the pure rules shared by the purchase and receipt
// ledgers: snapshot reconciliation and the payment state machine.
// Nothing in this package touches storage.
package ledger

import (
	"fmt"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/types"
)

// Line is one keyed entry of a snapshot: the outstanding quantity of a batch
// (purchases) or of an ordered stock line (receipts).
type Line[K comparable] struct {
	Key      K
	Quantity int64
	Price    types.Money
}

// Adjustment asks to subtract Quantity from the line identified by Key.
type Adjustment[K comparable] struct {
	Key      K
	Quantity int64
}

// Change records how one line moved between two snapshots.
type Change[K comparable] struct {
	Key     K
	Before  int64
	After   int64
	Dropped bool
}

// Decrease is the number of units that left the line.
func (c Change[K]) Decrease() int64 {
	return c.Before - c.After
}

// Reconciled is the outcome of Reconcile.
type Reconciled[K comparable] struct {
	Lines   []Line[K]
	Changes []Change[K]
}

// Total returns sum(price * quantity) over the new snapshot.
func (r Reconciled[K]) Total() types.Money {
	return Total(r.Lines)
}

// Reconcile derives the next snapshot from previous by subtracting adjustments.
//
// For each previous line with a matching adjustment the new quantity is
// previous - adjustment. A matched line is dropped when the adjustment
// exceeds its quantity or when it is zero, i.e. the result would equal the
// untouched quantity. Lines without an adjustment are carried unchanged.
// Quantities never grow. A dropped line that still held units is reported
// as a Dropped change covering its whole quantity.
//
// Negative, duplicate or unknown adjustments are a ValidationError; a set of
// adjustments that changes no quantity is a NoChange error.
func Reconcile[K comparable](previous []Line[K], adjustments []Adjustment[K]) (Reconciled[K], error) {
	byKey := make(map[K]int64, len(adjustments))
	for _, a := range adjustments {
		if a.Quantity < 0 {
			return Reconciled[K]{}, apperror.NewValidation("adjustment quantity must not be negative").
				WithDetail("key", fmt.Sprint(a.Key))
		}
		if _, dup := byKey[a.Key]; dup {
			return Reconciled[K]{}, apperror.NewValidation("duplicate adjustment").
				WithDetail("key", fmt.Sprint(a.Key))
		}
		byKey[a.Key] = a.Quantity
	}

	known := make(map[K]struct{}, len(previous))
	for _, l := range previous {
		known[l.Key] = struct{}{}
	}
	for k := range byKey {
		if _, ok := known[k]; !ok {
			return Reconciled[K]{}, apperror.NewValidation("adjustment references a line that is not in the latest snapshot").
				WithDetail("key", fmt.Sprint(k))
		}
	}

	out := Reconciled[K]{Lines: make([]Line[K], 0, len(previous))}
	for _, line := range previous {
		adj, ok := byKey[line.Key]
		if !ok {
			out.Lines = append(out.Lines, line)
			continue
		}

		remaining := line.Quantity - adj
		if remaining < 0 || remaining == line.Quantity {
			if line.Quantity > 0 {
				out.Changes = append(out.Changes, Change[K]{Key: line.Key, Before: line.Quantity, Dropped: true})
			}
			continue
		}

		out.Lines = append(out.Lines, Line[K]{Key: line.Key, Quantity: remaining, Price: line.Price})
		out.Changes = append(out.Changes, Change[K]{Key: line.Key, Before: line.Quantity, After: remaining})
	}

	if len(out.Changes) == 0 {
		return Reconciled[K]{}, apperror.NewBusinessRule(apperror.CodeNoChange, "Adjustments produce no change")
	}
	return out, nil
}

// Total returns sum(price * quantity).
func Total[K comparable](lines []Line[K]) types.Money {
	sum := types.Zero()
	for _, l := range lines {
		sum = sum.Add(types.LineAmount(l.Price, l.Quantity))
	}
	return sum
}
