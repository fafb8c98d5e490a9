package ics

import (
	"context"
	"errors"
	"fmt"
	"os"

	"calstat/internal/analyzer"
	"calstat/internal/config"
	"calstat/internal/model"
)

// Load reads the calendar configured in cfg.Source and returns its raw
// events. w only narrows server-side queries (CalDAV); it never replaces the
// analyzer's own window filter.
//
// A missing local file is reported with an error wrapping fs.ErrNotExist.
func Load(ctx context.Context, cfg *config.Config, w analyzer.Window) ([]model.RawEvent, error) {
	src := cfg.Source
	switch src.Kind() {
	case "file":
		body, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("ics: read %s: %w", src.Path, err)
		}
		return ParseICS(Source{ID: src.Path}, body)

	case "url":
		res, err := NewFetcher(cfg.CacheDir).Fetch(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		return ParseICS(Source{ID: "url", URL: src.URL}, res.Body)

	case "caldav":
		loader, err := NewCalDAVLoader(*src.CalDAV, nil)
		if err != nil {
			return nil, err
		}
		return loader.Load(ctx, w)

	default:
		return nil, errors.New("ics: no calendar source configured")
	}
}
