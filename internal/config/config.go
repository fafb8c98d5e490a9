package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"calstat/internal/analyzer"
	appLog "calstat/internal/log"
)

// CalDAVConfig points at a single CalDAV calendar collection.
type CalDAVConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	// Calendar is the collection path, e.g. "/dav/calendars/user/work/".
	Calendar string `yaml:"calendar" json:"calendar"`
}

// SourceConfig selects where the calendar document comes from. Exactly one
// of Path, URL or CalDAV must be set.
type SourceConfig struct {
	Path   string        `yaml:"path" json:"path"`
	URL    string        `yaml:"url" json:"url"`
	CalDAV *CalDAVConfig `yaml:"caldav,omitempty" json:"caldav,omitempty"`
}

// Kind returns "file", "url", "caldav" or "" when nothing is configured.
func (s SourceConfig) Kind() string {
	switch {
	case s.Path != "":
		return "file"
	case s.URL != "":
		return "url"
	case s.CalDAV != nil && s.CalDAV.Endpoint != "":
		return "caldav"
	default:
		return ""
	}
}

func (s SourceConfig) count() int {
	n := 0
	if s.Path != "" {
		n++
	}
	if s.URL != "" {
		n++
	}
	if s.CalDAV != nil && s.CalDAV.Endpoint != "" {
		n++
	}
	return n
}

// CategoryConfig defines one named classification bucket.
type CategoryConfig struct {
	Name string `yaml:"name" json:"name"`
	// Pattern is a regular expression matched case-insensitively.
	Pattern string `yaml:"pattern" json:"pattern"`
}

// WindowConfig bounds the analysis. Empty values mean "earliest instant"
// and "now" respectively.
type WindowConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the stats API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone all instants are normalized into.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Source SourceConfig `yaml:"source" json:"source"`

	// CacheDir holds the HTTP cache for URL sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Categories []CategoryConfig `yaml:"categories" json:"categories"`

	// SearchDescription makes categories match descriptions as well as
	// summaries.
	SearchDescription bool `yaml:"search_description" json:"search_description"`

	Window WindowConfig `yaml:"window" json:"window"`

	// Listen is the HTTP listen address in serve mode.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is the cron spec for reloading the calendar in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultTimezone = "America/Los_Angeles"
	defaultListen   = "127.0.0.1:8080"
	defaultRefresh  = "*/15 * * * *"
	defaultCacheDir = "./cache/ics-cache"
)

// DefaultCategories is the category set used when none is configured.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Name: "meetings", Pattern: `meeting|sync|standup`},
		{Name: "classes", Pattern: `CSE \d+`},
		{Name: "workout", Pattern: `workout`},
		{Name: "social", Pattern: `lunch|coffee`},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:    defaultTimezone,
		LogLevel:    "info",
		Source:      SourceConfig{Path: "calendar.ics"},
		CacheDir:    defaultCacheDir,
		Categories:  DefaultCategories(),
		Listen:      defaultListen,
		RefreshCron: defaultRefresh,
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories()
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
}

// Validate reports the first problem that would make the config unusable.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Source.count() {
	case 0:
		return errors.New("config: no calendar source configured")
	case 1:
	default:
		return errors.New("config: configure only one of source.path, source.url, source.caldav")
	}
	if _, _, err := c.Patterns(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
	}
	loc, _ := time.LoadLocation(c.Timezone)
	if _, err := c.ResolveWindow(time.Now(), loc); err != nil {
		return err
	}
	return nil
}

// Location loads the configured zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Patterns compiles the categories. names keeps the configured order for
// display; matchers is keyed by name.
func (c *Config) Patterns() (names []string, matchers map[string]analyzer.Matcher, err error) {
	if len(c.Categories) == 0 {
		return nil, nil, errors.New("config: no categories configured")
	}
	matchers = make(map[string]analyzer.Matcher, len(c.Categories))
	for i, cat := range c.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("config: categories[%d]: empty name", i)
		}
		if _, dup := matchers[name]; dup {
			return nil, nil, fmt.Errorf("config: duplicate category %q", name)
		}
		re, err := analyzer.CompilePattern(cat.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("config: category %q: %w", name, err)
		}
		names = append(names, name)
		matchers[name] = re
	}
	return names, matchers, nil
}

// SearchFields maps SearchDescription onto classifier fields.
func (c *Config) SearchFields() analyzer.SearchField {
	if c.SearchDescription {
		return analyzer.SearchSummary | analyzer.SearchDescription
	}
	return analyzer.SearchSummary
}

// ResolveWindow turns the configured bounds into instants in loc. An empty
// start is the earliest instant, an empty end is now.
func (c *Config) ResolveWindow(now time.Time, loc *time.Location) (analyzer.Window, error) {
	w := analyzer.Window{Start: analyzer.EarliestInstant, End: now.In(loc)}
	if c.Window.Start != "" {
		t, err := ParseTime(c.Window.Start, loc)
		if err != nil {
			return w, fmt.Errorf("config: window.start: %w", err)
		}
		w.Start = t
	}
	if c.Window.End != "" {
		t, err := ParseTime(c.Window.End, loc)
		if err != nil {
			return w, fmt.Errorf("config: window.end: %w", err)
		}
		w.End = t
	}
	if w.End.Before(w.Start) {
		return w, errors.New("config: window end is before start")
	}
	return w, nil
}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTime parses a window bound. RFC3339 values keep their offset; the
// other accepted layouts are read as wall clock in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a valid date: %q", s)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calstat-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
