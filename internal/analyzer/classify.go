package analyzer

import (
	"fmt"
	"regexp"

	"calstat/internal/model"
)

// Matcher is a text predicate; *regexp.Regexp satisfies it.
type Matcher interface {
	MatchString(s string) bool
}

// CompilePattern compiles expr as a case-insensitive regular expression.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return re, nil
}

// SearchField selects which event text the classifier inspects.
type SearchField uint8

const (
	SearchSummary SearchField = 1 << iota
	SearchDescription
)

// Classifier assigns events to every category whose matcher hits.
type Classifier struct {
	patterns map[string]Matcher
	fields   SearchField
}

// NewClassifier returns a Classifier over patterns. A zero fields value
// means SearchSummary.
func NewClassifier(patterns map[string]Matcher, fields SearchField) *Classifier {
	if fields == 0 {
		fields = SearchSummary
	}
	return &Classifier{patterns: patterns, fields: fields}
}

// Classify returns the names of all categories ev belongs to, in no
// particular order.
func (c *Classifier) Classify(ev model.NormalizedEvent) []string {
	var out []string
	for name, m := range c.patterns {
		if c.matches(m, ev) {
			out = append(out, name)
		}
	}
	return out
}

func (c *Classifier) matches(m Matcher, ev model.NormalizedEvent) bool {
	if c.fields&SearchSummary != 0 && m.MatchString(ev.Summary) {
		return true
	}
	if c.fields&SearchDescription != 0 && m.MatchString(ev.Description) {
		return true
	}
	return false
}

// Bucket classifies events in order. The result has one non-nil entry per
// pattern key, even when nothing matched.
func (c *Classifier) Bucket(events []model.NormalizedEvent) model.MatchedEvents {
	out := make(model.MatchedEvents, len(c.patterns))
	for name := range c.patterns {
		out[name] = []model.MatchedEvent{}
	}
	for _, ev := range events {
		for name, m := range c.patterns {
			if !c.matches(m, ev) {
				continue
			}
			out[name] = append(out[name], model.MatchedEvent{
				Start:    ev.Start,
				Summary:  ev.Summary,
				Duration: ev.Duration,
			})
		}
	}
	return out
}
