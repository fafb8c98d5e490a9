package analyzer

import (
	"time"

	"calstat/internal/model"
)

// DefaultEventLength is applied when an event has no DTEND.
const DefaultEventLength = time.Hour

// Normalizer converts raw loader records into NormalizedEvents in a fixed zone.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer returns a Normalizer for loc. A nil loc means UTC.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the zone all normalized instants are expressed in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize builds the canonical form of raw. The second return value is
// false when raw has no start marker and must be skipped.
//
//   - date-time markers: wall clock read as UTC (any TZID is ignored), then
//     converted to the normalizer zone
//   - date-only markers: midnight of that date in the normalizer zone
//   - missing end: start + DefaultEventLength
//   - all-day (decided by the start marker alone): zero duration
func (n *Normalizer) Normalize(raw model.RawEvent) (model.NormalizedEvent, bool) {
	if raw.Start == nil {
		return model.NormalizedEvent{}, false
	}

	start := n.instant(*raw.Start)

	var end time.Time
	if raw.End == nil {
		end = start.Add(DefaultEventLength)
	} else {
		end = n.instant(*raw.End)
	}

	allDay := raw.Start.DateOnly

	var dur time.Duration
	if !allDay {
		dur = end.Sub(start)
	}

	return model.NormalizedEvent{
		Start:       start,
		End:         end,
		Summary:     raw.Summary,
		Description: raw.Description,
		AllDay:      allDay,
		Duration:    dur,
		Recurring:   raw.Recurring,
	}, true
}

func (n *Normalizer) instant(m model.TimeMarker) time.Time {
	v := m.Value
	if m.DateOnly {
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, n.loc)
	}
	utc := time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC)
	return utc.In(n.loc)
}
