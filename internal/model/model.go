package model

import "time"

// TimeMarker is a single DTSTART/DTEND value as it appeared in the source
// calendar, before any zone conversion.
type TimeMarker struct {
	// Value carries the wall-clock fields exactly as written. For date-only
	// markers only Year/Month/Day are meaningful.
	Value time.Time

	// DateOnly is true for day-granularity values (VALUE=DATE).
	DateOnly bool

	// TZID is the zone annotation attached to the value, if any. It is kept
	// for diagnostics; normalization reads every date-time as UTC.
	TZID string
}

// RawEvent is one VEVENT as produced by a calendar loader. Nil Start or End
// means the property was absent.
type RawEvent struct {
	UID string

	Start *TimeMarker
	End   *TimeMarker

	Summary     string
	Description string

	// RRule is the raw RRULE text. Recurrences are not expanded; the base
	// instance is analyzed once.
	RRule string
	// Recurring is set by the loader when RRule is a valid rule.
	Recurring bool
}

// NormalizedEvent is the canonical timeline entry the analyzer works on.
// Start and End are in the analyzer's configured zone.
type NormalizedEvent struct {
	Start time.Time
	End   time.Time

	Summary     string
	Description string

	AllDay bool

	// Duration is zero for all-day events, End-Start otherwise. It may be
	// negative when the source has its end before its start.
	Duration time.Duration

	Recurring bool
}

// MatchedEvent is the per-category record handed to aggregation.
type MatchedEvent struct {
	Start    time.Time     `json:"start"`
	Summary  string        `json:"summary"`
	Duration time.Duration `json:"duration"`
}

// MatchedEvents maps category name to its matched events in calendar
// traversal order.
type MatchedEvents map[string][]MatchedEvent
