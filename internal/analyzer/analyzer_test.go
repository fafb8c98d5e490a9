package analyzer

import (
	"testing"
	"time"

	"calstat/internal/model"
)

func march2024() Window {
	return Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	}
}

func TestAnalyzeTeamMeeting(t *testing.T) {
	raw := []model.RawEvent{{
		UID:     "1",
		Summary: "Team Meeting",
		Start:   dateTime(2024, 3, 4, 9, 0),
		End:     dateTime(2024, 3, 4, 10, 0),
	}}
	res := New(time.UTC).Analyze(raw, march2024(), mustPatterns(t, map[string]string{"meetings": "meeting"}))

	dist := res.DayOfWeek["meetings"]
	if mon := dist.Day(time.Monday); mon.Count != 1 || !approx(mon.TotalHours, 1) || !approx(mon.AvgHours, 1) {
		t.Fatalf("monday = %+v", mon)
	}
	for i, st := range dist {
		if i == 0 {
			continue
		}
		if st != (DayStats{}) {
			t.Fatalf("%s = %+v, want zero", Weekdays[i], st)
		}
	}

	weekly := res.Weekly["meetings"]
	if len(weekly) != 1 {
		t.Fatalf("weekly = %+v", weekly)
	}
	if w, ok := weekly["2024-03-04"]; !ok || !approx(w.TotalHours, 1) || !approx(w.AvgHours, 1.0/7) {
		t.Fatalf("week = %+v (present %v)", w, ok)
	}

	monthly := res.Monthly["meetings"]
	if m, ok := monthly["2024-03"]; !ok || !approx(m.TotalHours, 1) || !approx(m.AvgHours, 1.0/31) || m.EventCount != 1 {
		t.Fatalf("month = %+v (present %v)", m, ok)
	}

	if res.Totals["meetings"] != time.Hour {
		t.Fatalf("total = %v, want 1h", res.Totals["meetings"])
	}
	if len(res.Events["meetings"]) != 1 {
		t.Fatalf("events = %+v", res.Events)
	}
}

func TestAnalyzeAllDayHoliday(t *testing.T) {
	raw := []model.RawEvent{{
		Summary: "Holiday",
		Start:   dateOnly(2024, 1, 15),
		End:     dateOnly(2024, 1, 16),
	}}
	w := Window{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, pst), End: time.Date(2024, 1, 31, 0, 0, 0, 0, pst)}
	res := New(pst).Analyze(raw, w, mustPatterns(t, map[string]string{"holidays": "Holiday"}))

	events := res.Events["holidays"]
	if len(events) != 1 || events[0].Duration != 0 {
		t.Fatalf("events = %+v", events)
	}
	if res.Totals["holidays"] != 0 {
		t.Fatalf("total = %v, want 0", res.Totals["holidays"])
	}
	m := res.Monthly["holidays"]["2024-01"]
	if m.EventCount != 1 || m.TotalHours != 0 || m.AvgHours != 0 {
		t.Fatalf("month = %+v", m)
	}
	if mon := res.DayOfWeek["holidays"].Day(time.Monday); mon.Count != 1 || mon.AvgHours != 0 {
		t.Fatalf("monday = %+v", mon)
	}
}

func TestAnalyzeExcludesEventsBeforeWindow(t *testing.T) {
	raw := []model.RawEvent{
		{Summary: "Old meeting", Start: dateTime(2024, 2, 28, 9, 0), End: dateTime(2024, 2, 28, 10, 0)},
		{Summary: "Later meeting", Start: dateTime(2024, 4, 2, 9, 0), End: dateTime(2024, 4, 2, 10, 0)},
	}
	res := New(time.UTC).Analyze(raw, march2024(), mustPatterns(t, map[string]string{
		"meetings": "meeting",
		"old":      "old",
	}))

	for _, name := range []string{"meetings", "old"} {
		if len(res.Events[name]) != 0 {
			t.Fatalf("%s events = %+v", name, res.Events[name])
		}
		if res.Totals[name] != 0 {
			t.Fatalf("%s total = %v", name, res.Totals[name])
		}
		if len(res.Weekly[name]) != 0 || len(res.Monthly[name]) != 0 {
			t.Fatalf("%s has period rows: %+v %+v", name, res.Weekly[name], res.Monthly[name])
		}
		if res.DayOfWeek[name] != (WeekdayDistribution{}) {
			t.Fatalf("%s day table not zero", name)
		}
	}
}

func TestAnalyzeDefaultEndTouchesWindowStart(t *testing.T) {
	// No DTEND: the synthetic end of 00:00 lands exactly on the window start.
	raw := []model.RawEvent{{Summary: "Late sync", Start: dateTime(2024, 2, 29, 23, 0)}}
	res := New(time.UTC).Analyze(raw, march2024(), mustPatterns(t, map[string]string{"meetings": "sync"}))

	if got := res.Events["meetings"]; len(got) != 1 || got[0].Duration != time.Hour {
		t.Fatalf("events = %+v", got)
	}
	if _, ok := res.Monthly["meetings"]["2024-02"]; !ok {
		t.Fatalf("event keyed by its start month; monthly = %+v", res.Monthly["meetings"])
	}
}

func TestAnalyzeCountsSkippedAndRecurring(t *testing.T) {
	raw := []model.RawEvent{
		{Summary: "no start"},
		{Summary: "Weekly sync", Start: dateTime(2024, 3, 5, 9, 0), RRule: "FREQ=WEEKLY", Recurring: true},
		{Summary: "Old weekly sync", Start: dateTime(2023, 3, 5, 9, 0), RRule: "FREQ=WEEKLY", Recurring: true},
	}
	res := New(time.UTC).Analyze(raw, march2024(), mustPatterns(t, map[string]string{"meetings": "sync"}))

	if res.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", res.Skipped)
	}
	if res.Recurring != 1 {
		t.Fatalf("recurring = %d, want 1 (only retained events)", res.Recurring)
	}
	if len(res.Events["meetings"]) != 1 {
		t.Fatalf("recurring event should be counted once: %+v", res.Events["meetings"])
	}
}

func TestAnalyzeSearchDescriptionOption(t *testing.T) {
	raw := []model.RawEvent{{
		Summary:     "Block",
		Description: "workout at the gym",
		Start:       dateTime(2024, 3, 6, 7, 0),
		End:         dateTime(2024, 3, 6, 8, 0),
	}}
	patterns := mustPatterns(t, map[string]string{"workout": "workout"})

	if got := New(time.UTC).Analyze(raw, march2024(), patterns).Events["workout"]; len(got) != 0 {
		t.Fatalf("description matched without opt-in: %+v", got)
	}
	a := New(time.UTC, WithSearchFields(SearchSummary|SearchDescription))
	if got := a.Analyze(raw, march2024(), patterns).Events["workout"]; len(got) != 1 {
		t.Fatalf("description not matched with opt-in: %+v", got)
	}
}

func TestAnalyzeZonesAreIndependent(t *testing.T) {
	// 2024-03-04 05:00 UTC is Sunday evening in PST and Monday in UTC.
	raw := []model.RawEvent{{Summary: "sync", Start: dateTime(2024, 3, 4, 5, 0), End: dateTime(2024, 3, 4, 6, 0)}}
	patterns := mustPatterns(t, map[string]string{"m": "sync"})
	w := Window{Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}

	utc := New(time.UTC).Analyze(raw, w, patterns)
	local := New(pst).Analyze(raw, w, patterns)

	if utc.DayOfWeek["m"].Day(time.Monday).Count != 1 {
		t.Fatalf("utc day table = %+v", utc.DayOfWeek["m"])
	}
	if local.DayOfWeek["m"].Day(time.Sunday).Count != 1 {
		t.Fatalf("pst day table = %+v", local.DayOfWeek["m"])
	}
	if _, ok := local.Weekly["m"]["2024-02-26"]; !ok {
		t.Fatalf("pst weekly = %+v", local.Weekly["m"])
	}
}

func TestMatchDoesNotMutateRaw(t *testing.T) {
	start := dateTime(2024, 3, 4, 9, 0)
	raw := []model.RawEvent{{Summary: "Team Meeting", Start: start}}
	before := *start

	New(pst).Match(raw, march2024(), mustPatterns(t, map[string]string{"m": "meeting"}))

	if *raw[0].Start != before || raw[0].End != nil {
		t.Fatalf("raw event mutated: %+v", raw[0])
	}
}
