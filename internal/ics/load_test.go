package ics

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"calstat/internal/analyzer"
	"calstat/internal/config"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.ics")
	if err := os.WriteFile(path, sampleICS, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Source = config.SourceConfig{Path: path}

	events, err := Load(context.Background(), cfg, analyzer.Window{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source = config.SourceConfig{Path: filepath.Join(t.TempDir(), "nope.ics")}

	_, err := Load(context.Background(), cfg, analyzer.Window{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(sampleICS)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Source = config.SourceConfig{URL: srv.URL + "/feed.ics"}
	cfg.CacheDir = t.TempDir()

	events, err := Load(context.Background(), cfg, analyzer.Window{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
}

func TestLoadNoSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source = config.SourceConfig{}
	if _, err := Load(context.Background(), cfg, analyzer.Window{}); err == nil {
		t.Fatal("expected error")
	}
}
