// Package usage reports token consumption per model provider.
package usage

import (
	"context"
	"slices"
	"strings"
	"time"

	domusage "github.com/kailas-cloud/partsearch/internal/domain/usage"
)

// Meter binds a provider's budget to its price.
type Meter struct {
	Provider       string
	Budget         BudgetReader
	CostPerMillion float64
}

// Service handles usage reporting.
type Service struct {
	meters []Meter
	now    func() time.Time
}

// New creates a Service. Meters with a nil Budget are ignored.
func New(meters ...Meter) *Service {
	active := make([]Meter, 0, len(meters))
	for _, m := range meters {
		if m.Budget != nil {
			active = append(active, m)
		}
	}
	slices.SortFunc(active, func(a, b Meter) int { return strings.Compare(a.Provider, b.Provider) })
	return &Service{meters: active, now: time.Now}
}

// GetReport builds one report per metered provider, ordered by provider name.
func (s *Service) GetReport(_ context.Context, period domusage.Period) []domusage.Report {
	start, end := period.Bounds(s.now())

	reports := make([]domusage.Report, 0, len(s.meters))
	for _, m := range s.meters {
		used, limit := m.Budget.DailyUsed(), m.Budget.DailyLimit()
		if period == domusage.PeriodMonth {
			used, limit = m.Budget.MonthlyUsed(), m.Budget.MonthlyLimit()
		}
		reports = append(reports, domusage.NewReport(m.Provider, period, start, end, used, limit, m.CostPerMillion))
	}
	return reports
}
