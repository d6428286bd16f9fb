package fines

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssess(t *testing.T) {
	due := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		returned time.Time
		overdue  bool
		days     int
		amount   string
	}{
		{"returned early", due.Add(-48 * time.Hour), false, 0, "0"},
		{"returned exactly on due date", due, false, 0, "0"},
		{"a few hours late", due.Add(5 * time.Hour), true, 0, "0"},
		{"exactly one day late", due.Add(24 * time.Hour), true, 1, "0.5"},
		{"three days late", due.AddDate(0, 0, 3), true, 3, "1.5"},
		{"three days and 23 hours late truncates", due.Add(3*24*time.Hour + 23*time.Hour), true, 3, "1.5"},
		{"thirty days late", due.AddDate(0, 0, 30), true, 30, "15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(due, tt.returned)
			assert.Equal(t, tt.overdue, a.Overdue)
			assert.Equal(t, tt.days, a.DaysLate)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(a.Amount), "got %s", a.Amount)
		})
	}
}

func TestPolicy_CustomRate(t *testing.T) {
	p := Policy{Rate: decimal.RequireFromString("1.25"), Currency: "EUR"}
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := p.Assess(due, due.AddDate(0, 0, 4))

	assert.True(t, a.Overdue)
	assert.Equal(t, 4, a.DaysLate)
	assert.Equal(t, "5", a.Amount.String())
}

func TestWholeDaysLate(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, WholeDaysLate(due, due.Add(-time.Hour)))
	assert.Equal(t, 0, WholeDaysLate(due, due.Add(23*time.Hour+59*time.Minute)))
	assert.Equal(t, 2, WholeDaysLate(due, due.Add(49*time.Hour)))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", "")
	require.NoError(t, err)
	assert.True(t, p.Rate.Equal(DefaultRate))
	assert.Equal(t, DefaultCurrency, p.Currency)

	p, err = ParsePolicy("0.75", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "0.75", p.Rate.String())
	assert.Equal(t, "EUR", p.Currency)

	_, err = ParsePolicy("half", "")
	assert.Error(t, err)

	_, err = ParsePolicy("-1", "")
	assert.Error(t, err)
}
