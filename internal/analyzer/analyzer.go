// Package analyzer turns raw calendar events into per-category time
// statistics: normalization into one zone, window filtering, pattern
// classification and the day-of-week, weekly, monthly and total reductions.
//
// Every call is independent. Analyze never mutates its input slice, so one
// loaded calendar can be analyzed concurrently with different windows,
// patterns or zones.
package analyzer

import (
	"time"

	appLog "calstat/internal/log"
	"calstat/internal/model"
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSearchFields selects which event text categories are matched against.
// The default is the summary only.
func WithSearchFields(f SearchField) Option {
	return func(a *Analyzer) {
		a.fields = f
	}
}

// Analyzer runs the full pipeline for one configured zone.
type Analyzer struct {
	normalizer *Normalizer
	fields     SearchField
}

// New returns an Analyzer that normalizes every instant into loc.
func New(loc *time.Location, opts ...Option) *Analyzer {
	a := &Analyzer{
		normalizer: NewNormalizer(loc),
		fields:     SearchSummary,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Location returns the analyzer's zone.
func (a *Analyzer) Location() *time.Location {
	return a.normalizer.Location()
}

// Result is everything one analysis produces, as plain data.
type Result struct {
	Window    Window              `json:"window"`
	Events    model.MatchedEvents `json:"events"`
	Totals    DurationTotals      `json:"totals"`
	DayOfWeek DayOfWeekTable      `json:"day_of_week"`
	Weekly    WeeklyTable         `json:"weekly"`
	Monthly   MonthlyTable        `json:"monthly"`

	// Skipped counts raw events without a start marker.
	Skipped int `json:"skipped"`
	// Recurring counts retained events carrying an RRULE; each was counted
	// once.
	Recurring int `json:"recurring"`
}

// Filter normalizes raw and keeps the events overlapping w. It also reports
// how many records were skipped for lacking a start.
func (a *Analyzer) Filter(raw []model.RawEvent, w Window) ([]model.NormalizedEvent, int) {
	kept := make([]model.NormalizedEvent, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		ev, ok := a.normalizer.Normalize(r)
		if !ok {
			skipped++
			continue
		}
		if !w.Retains(ev) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept, skipped
}

// Match returns the category-bucketed events of raw inside w.
func (a *Analyzer) Match(raw []model.RawEvent, w Window, patterns map[string]Matcher) model.MatchedEvents {
	kept, _ := a.Filter(raw, w)
	return NewClassifier(patterns, a.fields).Bucket(kept)
}

// Analyze runs normalization, filtering, classification and all four
// aggregations.
func (a *Analyzer) Analyze(raw []model.RawEvent, w Window, patterns map[string]Matcher) Result {
	kept, skipped := a.Filter(raw, w)
	matched := NewClassifier(patterns, a.fields).Bucket(kept)

	recurring := 0
	for _, ev := range kept {
		if ev.Recurring {
			recurring++
		}
	}

	appLog.Debug("analysis completed",
		"raw", len(raw),
		"skipped", skipped,
		"in_window", len(kept),
		"recurring", recurring,
		"categories", len(patterns),
		"timezone", a.Location().String(),
	)

	return Result{
		Window:    w,
		Events:    matched,
		Totals:    TotalDuration(matched),
		DayOfWeek: DayOfWeekStats(matched),
		Weekly:    WeeklyStats(matched),
		Monthly:   MonthlyStats(matched),
		Skipped:   skipped,
		Recurring: recurring,
	}
}
