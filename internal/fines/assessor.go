// Package fines computes overdue penalties for loans.
//
// Assessment is a pure function of (due date, return date): a loan returned on
// or before its due date owes nothing; otherwise it owes Rate for every whole
// day late. Partial days are truncated, never rounded.
package fines

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// DefaultRate is the fine per whole overdue day.
var DefaultRate = decimal.NewFromFloat(0.5)

// DefaultCurrency labels fine amounts.
const DefaultCurrency = "USD"

// Policy holds the configurable fine parameters.
type Policy struct {
	Rate     decimal.Decimal
	Currency string
}

// DefaultPolicy returns the reference policy: 0.5 per day.
func DefaultPolicy() Policy {
	return Policy{Rate: DefaultRate, Currency: DefaultCurrency}
}

// Assessment is the outcome of assessing a return.
type Assessment struct {
	Overdue  bool
	DaysLate int
	Amount   decimal.Decimal
}

// WholeDaysLate returns floor(returned - due) in days, or 0 when returned is
// not after due.
func WholeDaysLate(due, returned time.Time) int {
	if !returned.After(due) {
		return 0
	}
	return int(returned.Sub(due) / day)
}

// Assess computes the fine owed for a loan due at due and returned at returned.
// Overdue is true whenever returned is strictly after due, even when less than
// a whole day late (Amount is then zero).
func (p Policy) Assess(due, returned time.Time) Assessment {
	if !returned.After(due) {
		return Assessment{Amount: decimal.Zero}
	}
	days := WholeDaysLate(due, returned)
	return Assessment{
		Overdue:  true,
		DaysLate: days,
		Amount:   p.Rate.Mul(decimal.NewFromInt(int64(days))),
	}
}

// Assess applies the default policy.
func Assess(due, returned time.Time) Assessment {
	return DefaultPolicy().Assess(due, returned)
}

// ParsePolicy builds a policy from a decimal rate string such as "0.5".
// Empty values fall back to the defaults.
func ParsePolicy(rate, currency string) (Policy, error) {
	p := DefaultPolicy()
	if rate != "" {
		r, err := decimal.NewFromString(rate)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid fine rate %q: %w", rate, err)
		}
		if r.IsNegative() {
			return Policy{}, fmt.Errorf("invalid fine rate %q: must not be negative", rate)
		}
		p.Rate = r
	}
	if currency != "" {
		p.Currency = currency
	}
	return p, nil
}
