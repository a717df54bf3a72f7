// Package usage describes token consumption reports per model provider.
package usage

import (
	"fmt"
	"time"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name. Empty means PeriodDay.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("unknown period %q (want day or month)", s)
}

// Bounds returns the UTC [start, end) window of the period containing t.
func (p Period) Bounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	if p == PeriodMonth {
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Report is one provider's token usage for a period.
type Report struct {
	provider  string
	period    Period
	start     time.Time
	end       time.Time
	used      int64
	limit     int64
	remaining int64
	cost      float64
}

// NewReport creates a usage report. limit 0 means unlimited; remaining is
// then reported as -1. costPerMillion prices the used tokens.
func NewReport(provider string, period Period, start, end time.Time, used, limit int64, costPerMillion float64) Report {
	remaining := int64(-1)
	if limit > 0 {
		remaining = max(0, limit-used)
	}
	return Report{
		provider:  provider,
		period:    period,
		start:     start,
		end:       end,
		used:      used,
		limit:     limit,
		remaining: remaining,
		cost:      float64(used) * costPerMillion / 1e6,
	}
}

// Provider returns the provider name from config.
func (r *Report) Provider() string { return r.provider }

// Period returns the aggregation granularity.
func (r *Report) Period() Period { return r.period }

// Start returns the period start.
func (r *Report) Start() time.Time { return r.start }

// End returns the period end, which is also when the budget resets.
func (r *Report) End() time.Time { return r.end }

// TokensUsed returns tokens consumed in the period.
func (r *Report) TokensUsed() int64 { return r.used }

// TokensLimit returns the token cap (0 = unlimited).
func (r *Report) TokensLimit() int64 { return r.limit }

// TokensRemaining returns tokens left, or -1 when unlimited.
func (r *Report) TokensRemaining() int64 { return r.remaining }

// IsExhausted reports whether a limited budget is spent.
func (r *Report) IsExhausted() bool { return r.limit > 0 && r.remaining == 0 }

// EstimatedCost returns the estimated spend in the provider's currency.
func (r *Report) EstimatedCost() float64 { return r.cost }
