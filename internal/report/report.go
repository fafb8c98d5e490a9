// Package report renders an analysis result as the plain-text summary
// printed by the CLI.
package report

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"calstat/internal/analyzer"
)

const (
	dateLayout  = "2006-01-02"
	eventLayout = "2006-01-02 15:04"
)

// Write renders res to w. order fixes the category order; categories in res
// but not in order follow alphabetically.
func Write(w io.Writer, res analyzer.Result, order []string) error {
	bw := bufio.NewWriter(w)
	title := newTitler()
	names := categoryOrder(res, order)

	fmt.Fprintf(bw, "\nAnalyzing events from %s to %s\n",
		res.Window.Start.Format(dateLayout), res.Window.End.Format(dateLayout))

	for _, name := range names {
		events := res.Events[name]
		fmt.Fprintf(bw, "\n%s (%d events):\n", title(name), len(events))
		for _, ev := range events {
			fmt.Fprintf(bw, "%s - %s (%.1fh)\n", ev.Start.Format(eventLayout), ev.Summary, ev.Duration.Hours())
		}
	}

	fmt.Fprint(bw, "\nTime Spent on Events:\n")
	for _, name := range names {
		fmt.Fprintf(bw, "%s: %.1f hours\n", title(name), res.Totals[name].Hours())
	}

	fmt.Fprint(bw, "\nEvent Distribution by Day:\n")
	for _, name := range names {
		fmt.Fprintf(bw, "\n%s:\n", title(name))
		dist := res.DayOfWeek[name]
		for i, day := range analyzer.Weekdays {
			st := dist[i]
			fmt.Fprintf(bw, "  %-9s - %2d events, %5.1f hours total (%4.1fh avg/event)\n",
				day, st.Count, st.TotalHours, st.AvgHours)
		}
	}

	fmt.Fprint(bw, "\nMonthly Statistics:\n")
	for _, name := range names {
		fmt.Fprintf(bw, "\n%s:\n", title(name))
		months := res.Monthly[name]
		for _, key := range sortedKeys(months) {
			st := months[key]
			fmt.Fprintf(bw, "  Month of %s: %.1f total hours (%.1fh avg/day), %d events\n",
				key, st.TotalHours, st.AvgHours, st.EventCount)
		}
	}

	fmt.Fprint(bw, "\nWeekly Statistics:\n")
	for _, name := range names {
		fmt.Fprintf(bw, "\n%s:\n", title(name))
		weeks := res.Weekly[name]
		for _, key := range sortedKeys(weeks) {
			st := weeks[key]
			fmt.Fprintf(bw, "  Week of %s: %.1f total hours (%.1fh avg/day)\n", key, st.TotalHours, st.AvgHours)
		}
	}

	if res.Recurring > 0 {
		fmt.Fprintf(bw, "\nNote: %d recurring events were counted once; recurrences are not expanded.\n", res.Recurring)
	}

	return bw.Flush()
}

// newTitler title-cases category names. Underscores separate words, so
// "matched_events" renders as "Matched_Events".
func newTitler() func(string) string {
	caser := cases.Title(language.English)
	return func(name string) string {
		parts := strings.Split(name, "_")
		for i, p := range parts {
			parts[i] = caser.String(p)
		}
		return strings.Join(parts, "_")
	}
}

func categoryOrder(res analyzer.Result, order []string) []string {
	seen := make(map[string]bool, len(res.Events))
	names := make([]string, 0, len(res.Events))
	for _, name := range order {
		if _, ok := res.Events[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range res.Events {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
