package analyzer

import (
	"time"

	"calstat/internal/model"
)

// EarliestInstant is the default window start when none is given.
var EarliestInstant = time.Time{}

// Window is the closed [Start, End] analysis range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Retains reports whether ev overlaps w. Events that only touch a boundary
// are kept.
func (w Window) Retains(ev model.NormalizedEvent) bool {
	return !ev.End.Before(w.Start) && !ev.Start.After(w.End)
}
