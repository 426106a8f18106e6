// Package clock is the single time authority for ledger dates.
// Ledger dates are never taken from callers.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in a fixed location.
type System struct {
	loc *time.Location
}

// NewSystem creates a System clock for the named IANA zone ("" means UTC).
func NewSystem(zone string) (*System, error) {
	if zone == "" {
		return &System{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	return &System{loc: loc}, nil
}

// Now implements Clock.
func (s *System) Now() time.Time {
	return time.Now().In(s.loc)
}

// Fixed always returns the same instant. Used by tests.
type Fixed time.Time

// Now implements Clock.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
