package ics

import (
	"bytes"
	"errors"
	"fmt"

	ical "github.com/arran4/golang-ical"

	appLog "calstat/internal/log"
	"calstat/internal/model"
)

// Source identifies where a calendar document came from, for logging.
type Source struct {
	// ID is a short label: the file path, or the config name.
	ID string
	// URL is set for remote sources and is always redacted in logs.
	URL string
}

func (s Source) logFields() []any {
	if s.URL == "" {
		return []any{"id", s.ID}
	}
	return []any{"id", s.ID, "url", redactURL(s.URL)}
}

// ParseICS parses one ICS document into raw events in document order.
//
//   - DTSTART/DTEND are read from the raw property values so the written wall
//     clock survives; TZID is recorded but not applied.
//   - A VEVENT without DTSTART is kept with a nil Start.
//   - A VEVENT whose DTSTART cannot be parsed is logged and skipped. An
//     unparseable DTEND is logged and dropped, so the default length applies.
//   - RRULEs are validated, never expanded.
func ParseICS(src Source, body []byte) ([]model.RawEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty calendar document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, src.logFields()...)
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	vevents := cal.Events()
	events := make([]model.RawEvent, 0, len(vevents))
	for _, ve := range vevents {
		ev, perr := rawFromVEvent(ve)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, append(src.logFields(), "uid", ev.UID)...)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", append(src.logFields(), "event_count", len(events))...)
	return events, nil
}

func rawFromVEvent(ve *ical.VEvent) (model.RawEvent, error) {
	var out model.RawEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		m, err := parseMarker(p.Value, param(p.ICalParameters, "VALUE"), param(p.ICalParameters, "TZID"))
		if err != nil {
			return out, fmt.Errorf("DTSTART %q: %w", p.Value, err)
		}
		out.Start = &m
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		out.End = endMarker(out.UID, p.Value, param(p.ICalParameters, "VALUE"), param(p.ICalParameters, "TZID"))
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
		out.Recurring = recurring(out.UID, p.Value)
	}

	return out, nil
}

func param(params map[string][]string, key string) string {
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
