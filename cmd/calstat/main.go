package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"calstat/internal/analyzer"
	"calstat/internal/config"
	"calstat/internal/export"
	"calstat/internal/ics"
	appLog "calstat/internal/log"
	"calstat/internal/report"
	"calstat/internal/web"
)

const version = "0.1.0"

// singlePatternCategory names the only category when -pattern is given.
const singlePatternCategory = "matched_events"

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath        string
	start             string
	end               string
	pattern           string
	searchDescription bool
	timezone          string
	serve             bool
	listen            string
	exportDB          string
	logLevel          string

	// calendar is the optional positional argument.
	calendar string
}

func main() {
	flags, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	conf, err := buildConfig(flags)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if lvl, err := appLog.ParseLevel(conf.LogLevel); err == nil {
		appLog.SetLevel(lvl)
	}

	appLog.Debug("calstat starting", "version", version)
	appLog.Debug("effective config",
		"source", conf.Source.Kind(),
		"timezone", conf.Timezone,
		"categories", len(conf.Categories),
		"search_description", conf.SearchDescription,
		"window_start", conf.Window.Start,
		"window_end", conf.Window.End,
		"serve", flags.serve,
	)

	p, err := newPipeline(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing calendar: %v\n", err)
		os.Exit(1)
	}

	if flags.serve {
		if err := serve(conf, p, flags.exportDB); err != nil {
			appLog.Error("server stopped", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(runOnce(context.Background(), conf, p, flags.exportDB, os.Stdout, os.Stderr))
}

func parseFlags(args []string, output io.Writer) (flagConfig, error) {
	var cfg flagConfig

	set := flag.NewFlagSet("calstat", flag.ContinueOnError)
	set.SetOutput(output)
	set.Usage = func() {
		fmt.Fprintln(set.Output(), "Usage: calstat [flags] [calendar.ics]")
		set.PrintDefaults()
	}

	set.StringVar(&cfg.configPath, "config", "", "Path to config file (empty uses built-in defaults)")
	set.StringVar(&cfg.start, "start", "", "Window start, e.g. 2024-01-01 (default: earliest)")
	set.StringVar(&cfg.end, "end", "", "Window end, e.g. 2024-03-31 (default: now)")
	set.StringVar(&cfg.pattern, "pattern", "", "Single regex to match instead of the configured categories")
	set.BoolVar(&cfg.searchDescription, "search-description", false, "Match descriptions as well as summaries")
	set.StringVar(&cfg.timezone, "tz", "", "IANA timezone for all statistics (overrides config if set)")
	set.BoolVar(&cfg.serve, "serve", false, "Serve the stats API and refresh on the configured schedule")
	set.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	set.StringVar(&cfg.exportDB, "export-db", "", "Write the analysis into this SQLite file")
	set.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	if err := set.Parse(args); err != nil {
		return cfg, err
	}
	switch set.NArg() {
	case 0:
	case 1:
		cfg.calendar = set.Arg(0)
	default:
		set.Usage()
		return cfg, fmt.Errorf("expected at most one calendar file, got %d", set.NArg())
	}
	return cfg, nil
}

// buildConfig loads the config file (or the built-in defaults) and applies
// flag overrides on top.
func buildConfig(flags flagConfig) (*config.Config, error) {
	conf := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}

	if flags.calendar != "" {
		conf.Source = config.SourceConfig{Path: flags.calendar}
	}
	if flags.timezone != "" {
		conf.Timezone = flags.timezone
	}
	if flags.start != "" {
		conf.Window.Start = flags.start
	}
	if flags.end != "" {
		conf.Window.End = flags.end
	}
	if flags.pattern != "" {
		conf.Categories = []config.CategoryConfig{{Name: singlePatternCategory, Pattern: flags.pattern}}
	}
	if flags.searchDescription {
		conf.SearchDescription = true
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}

	conf.Normalize()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// pipeline is the compiled form of a config: zone, categories and analyzer.
type pipeline struct {
	conf     *config.Config
	loc      *time.Location
	names    []string
	matchers map[string]analyzer.Matcher
	an       *analyzer.Analyzer
}

func newPipeline(conf *config.Config) (*pipeline, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}
	names, matchers, err := conf.Patterns()
	if err != nil {
		return nil, err
	}
	return &pipeline{
		conf:     conf,
		loc:      loc,
		names:    names,
		matchers: matchers,
		an:       analyzer.New(loc, analyzer.WithSearchFields(conf.SearchFields())),
	}, nil
}

// run loads the calendar and analyzes it. The window is resolved against
// now on every call so an open-ended window follows the clock.
func (p *pipeline) run(ctx context.Context, now time.Time) (analyzer.Result, error) {
	w, err := p.conf.ResolveWindow(now, p.loc)
	if err != nil {
		return analyzer.Result{}, err
	}
	raw, err := ics.Load(ctx, p.conf, w)
	if err != nil {
		return analyzer.Result{}, err
	}
	return p.an.Analyze(raw, w, p.matchers), nil
}

// runOnce performs one analysis, prints the report and returns the exit code.
func runOnce(ctx context.Context, conf *config.Config, p *pipeline, exportDB string, stdout, stderr io.Writer) int {
	res, err := p.run(ctx, time.Now())
	if err != nil {
		if conf.Source.Kind() == "file" && errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(stderr, "Error: calendar file '%s' not found\n", conf.Source.Path)
		} else {
			fmt.Fprintf(stderr, "Error analyzing calendar: %v\n", err)
		}
		return 1
	}

	if err := report.Write(stdout, res, p.names); err != nil {
		fmt.Fprintf(stderr, "Error analyzing calendar: %v\n", err)
		return 1
	}

	if exportDB != "" {
		if err := export.Export(ctx, exportDB, res); err != nil {
			fmt.Fprintf(stderr, "Error analyzing calendar: %v\n", err)
			return 1
		}
	}
	return 0
}

// serve runs the stats API until SIGINT/SIGTERM, refreshing on the
// configured cron schedule.
func serve(conf *config.Config, p *pipeline, exportDB string) error {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.Listen, err)
	}
	return runServer(ctx, conf, p, exportDB, ln)
}

// runServer refreshes once, schedules further refreshes and serves on ln
// until ctx is canceled.
func runServer(ctx context.Context, conf *config.Config, p *pipeline, exportDB string, ln net.Listener) error {
	load := func(ctx context.Context) (analyzer.Result, error) {
		res, err := p.run(ctx, time.Now())
		if err != nil {
			return res, err
		}
		if exportDB != "" {
			if err := export.Export(ctx, exportDB, res); err != nil {
				appLog.Warn("export failed", "path", exportDB, "err", err)
			}
		}
		return res, nil
	}

	srv := web.NewServer(conf, p.names, load)

	// The API answers 503 until a refresh succeeds, so a failed first load
	// is not fatal.
	_ = srv.Refresh(ctx)

	c := cron.New(cron.WithLocation(p.loc))
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		_ = srv.Refresh(ctx)
	}); err != nil {
		ln.Close()
		return fmt.Errorf("schedule refresh %q: %w", conf.RefreshCron, err)
	}
	c.Start()
	appLog.Info("refresh scheduled", "cron", conf.RefreshCron, "timezone", conf.Timezone)

	err := srv.Serve(ctx, ln)

	// Wait for a refresh in flight to finish.
	<-c.Stop().Done()
	appLog.Info("calstat exiting")
	return err
}
