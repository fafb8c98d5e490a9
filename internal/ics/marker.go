package ics

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calstat/internal/log"
	"calstat/internal/model"
)

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
)

// parseMarker turns a raw DTSTART/DTEND value plus its VALUE and TZID
// parameters into a TimeMarker. Values with VALUE=DATE or without a 'T' are
// date-only. A trailing 'Z' is dropped; the wall clock is kept as written.
func parseMarker(value, valueType, tzid string) (model.TimeMarker, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return model.TimeMarker{}, errors.New("empty time value")
	}

	if strings.EqualFold(valueType, "DATE") || !strings.Contains(v, "T") {
		t, err := time.Parse(layoutDate, v)
		if err != nil {
			return model.TimeMarker{}, err
		}
		return model.TimeMarker{Value: t, DateOnly: true, TZID: tzid}, nil
	}

	t, err := time.Parse(layoutDateTime, strings.TrimSuffix(v, "Z"))
	if err != nil {
		return model.TimeMarker{}, err
	}
	return model.TimeMarker{Value: t, TZID: tzid}, nil
}

// endMarker parses a DTEND value. An unparseable end is logged and
// reported as missing, so the event keeps its start and gets the default
// length instead of being dropped.
func endMarker(uid, value, valueType, tzid string) *model.TimeMarker {
	m, err := parseMarker(value, valueType, tzid)
	if err != nil {
		appLog.Warn("ics: invalid DTEND, using default event length", "uid", uid, "dtend", value, "err", err)
		return nil
	}
	return &m
}

// recurring reports whether rule is a usable RRULE. Invalid rules are logged
// and the event is treated as a single instance.
func recurring(uid, rule string) bool {
	if rule == "" {
		return false
	}
	if _, err := rrule.StrToRRule(rule); err != nil {
		appLog.Error("ics: invalid RRULE, treating event as single instance", err, "uid", uid, "rrule", rule)
		return false
	}
	return true
}
