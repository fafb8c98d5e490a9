package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"calstat/internal/config"
)

const testICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//calstat//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1@test\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240304T170000Z\r\n" +
	"DTEND:20240304T180000Z\r\n" +
	"SUMMARY:Team Meeting\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2@test\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240305\r\n" +
	"SUMMARY:Holiday\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{"-tz", "UTC", "-pattern", "standup", "cal.ics"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if flags.timezone != "UTC" || flags.pattern != "standup" || flags.calendar != "cal.ics" {
		t.Fatalf("flags = %+v", flags)
	}

	if _, err := parseFlags([]string{"a.ics", "b.ics"}, io.Discard); err == nil {
		t.Fatal("expected error for two positional arguments")
	}
	if _, err := parseFlags([]string{"-no-such-flag"}, io.Discard); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestBuildConfigOverrides(t *testing.T) {
	conf, err := buildConfig(flagConfig{
		calendar:          "work.ics",
		timezone:          "Europe/Berlin",
		pattern:           "standup",
		start:             "2024-01-01",
		end:               "2024-03-31",
		searchDescription: true,
	})
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if conf.Source.Path != "work.ics" || conf.Source.Kind() != "file" {
		t.Errorf("source = %+v", conf.Source)
	}
	if conf.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q", conf.Timezone)
	}
	if len(conf.Categories) != 1 || conf.Categories[0].Name != singlePatternCategory {
		t.Errorf("categories = %+v", conf.Categories)
	}
	if !conf.SearchDescription {
		t.Error("search description not enabled")
	}
}

func TestBuildConfigWithoutPathWritesNothing(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	conf, err := buildConfig(flagConfig{})
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if len(conf.Categories) != len(config.DefaultCategories()) {
		t.Errorf("categories = %d, want defaults", len(conf.Categories))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("unexpected files written: %v", entries)
	}
}

func TestBuildConfigRejectsBadInput(t *testing.T) {
	cases := []flagConfig{
		{timezone: "Mars/Olympus"},
		{pattern: "("},
		{start: "yesterday"},
		{start: "2024-03-01", end: "2024-01-01"},
	}
	for _, fc := range cases {
		if _, err := buildConfig(fc); err == nil {
			t.Errorf("buildConfig(%+v) succeeded, want error", fc)
		}
	}
}

func TestRunOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.ics")
	if err := os.WriteFile(path, []byte(testICS), 0o600); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(t.TempDir(), "stats.db")

	conf, err := buildConfig(flagConfig{
		calendar: path,
		timezone: "UTC",
		start:    "2024-03-01",
		end:      "2024-03-31",
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := newPipeline(conf)
	if err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := runOnce(context.Background(), conf, p, dbPath, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"Analyzing events from 2024-03-01 to 2024-03-31",
		"Meetings (1 events):",
		"2024-03-04 17:00 - Team Meeting (1.0h)",
		"Meetings: 1.0 hours",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("export not written: %v", err)
	}
}

func TestRunOnceMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.ics")
	conf, err := buildConfig(flagConfig{calendar: missing, timezone: "UTC"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := newPipeline(conf)
	if err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := runOnce(context.Background(), conf, p, "", &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	want := "Error: calendar file '" + missing + "' not found"
	if !strings.Contains(stderr.String(), want) {
		t.Fatalf("stderr = %q, want %q", stderr.String(), want)
	}
}

// meetingEvents returns the matched meeting count served at addr, or -1
// while no analysis is available.
func meetingEvents(t *testing.T, addr string) int {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/api/stats/meetings")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return -1
	}
	var body struct {
		EventCount int `json:"event_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.EventCount
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRunServerRefreshesAndStops(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calendar.ics")
	if err := os.WriteFile(path, []byte(testICS), 0o600); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "stats.db")

	conf, err := buildConfig(flagConfig{
		calendar: path,
		timezone: "UTC",
		start:    "2024-03-01",
		end:      "2024-03-31",
	})
	if err != nil {
		t.Fatal(err)
	}
	conf.RefreshCron = "@every 1s"
	p, err := newPipeline(conf)
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- runServer(ctx, conf, p, dbPath, ln) }()

	waitFor(t, "initial refresh", func() bool { return meetingEvents(t, addr) == 1 })
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("export not written on refresh: %v", err)
	}

	// A second meeting appears only through a scheduled refresh.
	updated := strings.Replace(testICS, "END:VCALENDAR\r\n",
		"BEGIN:VEVENT\r\n"+
			"UID:3@test\r\n"+
			"DTSTAMP:20240101T000000Z\r\n"+
			"DTSTART:20240306T170000Z\r\n"+
			"SUMMARY:Planning meeting\r\n"+
			"END:VEVENT\r\n"+
			"END:VCALENDAR\r\n", 1)
	// Rename so a refresh never reads a half-written file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "scheduled refresh", func() bool { return meetingEvents(t, addr) == 2 })

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServer() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServer did not return after cancel")
	}
}

func TestRunServerRejectsBadSchedule(t *testing.T) {
	conf := config.DefaultConfig()
	conf.Timezone = "UTC"
	conf.RefreshCron = "not a schedule"
	p, err := newPipeline(conf)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := runServer(context.Background(), conf, p, "", ln); err == nil {
		t.Fatal("expected error for invalid refresh schedule")
	}
}
