package analyzer

import (
	"encoding/json"
	"time"

	"calstat/internal/model"
)

// Weekdays lists the days in Monday-first order, matching the indexes of
// WeekdayDistribution.
var Weekdays = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayIndex returns 0 for Monday through 6 for Sunday.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// DayStats is one weekday cell of the day-of-week table.
type DayStats struct {
	Count      int     `json:"count"`
	TotalHours float64 `json:"total_hours"`
	AvgHours   float64 `json:"avg_hours"`
}

// WeekdayDistribution holds all seven weekdays, Monday first.
type WeekdayDistribution [7]DayStats

// Day returns the cell for d.
func (w WeekdayDistribution) Day(d time.Weekday) DayStats {
	return w[WeekdayIndex(d)]
}

// MarshalJSON encodes the distribution as an object keyed by weekday name.
func (w WeekdayDistribution) MarshalJSON() ([]byte, error) {
	m := make(map[string]DayStats, len(w))
	for i, d := range Weekdays {
		m[d.String()] = w[i]
	}
	return json.Marshal(m)
}

// WeekStats is one row of the weekly table.
type WeekStats struct {
	TotalHours float64 `json:"total_hours"`
	AvgHours   float64 `json:"avg_hours"`
}

// MonthStats is one row of the monthly table.
type MonthStats struct {
	TotalHours float64 `json:"total_hours"`
	AvgHours   float64 `json:"avg_hours"`
	EventCount int     `json:"event_count"`
}

type (
	DurationTotals map[string]time.Duration
	DayOfWeekTable map[string]WeekdayDistribution
	WeeklyTable    map[string]map[string]WeekStats
	MonthlyTable   map[string]map[string]MonthStats
)

const (
	weekKeyLayout  = "2006-01-02"
	monthKeyLayout = "2006-01"
	daysPerWeek    = 7
)

// TotalDuration sums matched durations per category. Categories with no
// events map to zero.
func TotalDuration(matched model.MatchedEvents) DurationTotals {
	out := make(DurationTotals, len(matched))
	for name, events := range matched {
		var total time.Duration
		for _, ev := range events {
			total += ev.Duration
		}
		out[name] = total
	}
	return out
}

// dayAcc accumulates one weekday before averages are computed.
type dayAcc struct {
	count int
	hours float64
}

// DayOfWeekStats buckets events by the weekday of their start. AvgHours is
// hours per event and stays 0 for days without events.
func DayOfWeekStats(matched model.MatchedEvents) DayOfWeekTable {
	out := make(DayOfWeekTable, len(matched))
	for name, events := range matched {
		var acc [7]dayAcc
		for _, ev := range events {
			i := WeekdayIndex(ev.Start.Weekday())
			acc[i].count++
			acc[i].hours += ev.Duration.Hours()
		}

		var dist WeekdayDistribution
		for i, a := range acc {
			dist[i].Count = a.count
			dist[i].TotalHours = a.hours
			if a.count > 0 {
				dist[i].AvgHours = a.hours / float64(a.count)
			}
		}
		out[name] = dist
	}
	return out
}

// WeekKey returns the ISO date of the Monday on or before t, in t's zone.
func WeekKey(t time.Time) string {
	return t.AddDate(0, 0, -WeekdayIndex(t.Weekday())).Format(weekKeyLayout)
}

// WeeklyStats totals hours per Monday-keyed week. AvgHours always divides by
// seven days, including partial weeks at the window edges.
func WeeklyStats(matched model.MatchedEvents) WeeklyTable {
	out := make(WeeklyTable, len(matched))
	for name, events := range matched {
		acc := make(map[string]float64)
		for _, ev := range events {
			acc[WeekKey(ev.Start)] += ev.Duration.Hours()
		}

		weeks := make(map[string]WeekStats, len(acc))
		for key, hours := range acc {
			weeks[key] = WeekStats{
				TotalHours: hours,
				AvgHours:   hours / daysPerWeek,
			}
		}
		out[name] = weeks
	}
	return out
}

// monthAcc accumulates one calendar month before averages are computed.
type monthAcc struct {
	year  int
	month time.Month
	hours float64
	count int
}

// MonthlyStats totals hours and events per YYYY-MM of the event start.
// AvgHours is hours per calendar day of that month.
func MonthlyStats(matched model.MatchedEvents) MonthlyTable {
	out := make(MonthlyTable, len(matched))
	for name, events := range matched {
		acc := make(map[string]*monthAcc)
		for _, ev := range events {
			key := ev.Start.Format(monthKeyLayout)
			a, ok := acc[key]
			if !ok {
				a = &monthAcc{year: ev.Start.Year(), month: ev.Start.Month()}
				acc[key] = a
			}
			a.hours += ev.Duration.Hours()
			a.count++
		}

		months := make(map[string]MonthStats, len(acc))
		for key, a := range acc {
			months[key] = MonthStats{
				TotalHours: a.hours,
				AvgHours:   a.hours / float64(DaysInMonth(a.year, a.month)),
				EventCount: a.count,
			}
		}
		out[name] = months
	}
	return out
}

// DaysInMonth returns the number of days in the given month, leap years
// included.
func DaysInMonth(year int, month time.Month) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)
	return int(next.Sub(first).Hours() / 24)
}
