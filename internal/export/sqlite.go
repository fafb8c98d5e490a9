// Package export writes analysis results into a SQLite file for ad-hoc
// querying. Each export replaces the previous tables; nothing is read back.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"calstat/internal/analyzer"
	appLog "calstat/internal/log"
)

var schema = []string{
	`DROP TABLE IF EXISTS analysis`,
	`DROP TABLE IF EXISTS matched_events`,
	`DROP TABLE IF EXISTS category_totals`,
	`DROP TABLE IF EXISTS weekday_stats`,
	`DROP TABLE IF EXISTS weekly_stats`,
	`DROP TABLE IF EXISTS monthly_stats`,
	`CREATE TABLE analysis (
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		skipped INTEGER NOT NULL,
		recurring INTEGER NOT NULL,
		exported_at TEXT NOT NULL
	)`,
	`CREATE TABLE matched_events (
		category TEXT NOT NULL,
		seq INTEGER NOT NULL,
		start TEXT NOT NULL,
		summary TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		PRIMARY KEY (category, seq)
	)`,
	`CREATE TABLE category_totals (
		category TEXT PRIMARY KEY,
		total_hours REAL NOT NULL
	)`,
	`CREATE TABLE weekday_stats (
		category TEXT NOT NULL,
		weekday TEXT NOT NULL,
		weekday_index INTEGER NOT NULL,
		count INTEGER NOT NULL,
		total_hours REAL NOT NULL,
		avg_hours REAL NOT NULL,
		PRIMARY KEY (category, weekday_index)
	)`,
	`CREATE TABLE weekly_stats (
		category TEXT NOT NULL,
		week TEXT NOT NULL,
		total_hours REAL NOT NULL,
		avg_hours REAL NOT NULL,
		PRIMARY KEY (category, week)
	)`,
	`CREATE TABLE monthly_stats (
		category TEXT NOT NULL,
		month TEXT NOT NULL,
		total_hours REAL NOT NULL,
		avg_hours REAL NOT NULL,
		event_count INTEGER NOT NULL,
		PRIMARY KEY (category, month)
	)`,
}

// Export writes res into the SQLite database at path inside one transaction.
func Export(ctx context.Context, path string, res analyzer.Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("export: open db: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("export: schema: %w", err)
		}
	}

	if err := writeResult(ctx, tx, res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: commit: %w", err)
	}

	appLog.Info("export completed", "path", path, "categories", len(res.Events))
	return nil
}

func writeResult(ctx context.Context, tx *sql.Tx, res analyzer.Result) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis (window_start, window_end, skipped, recurring, exported_at) VALUES (?, ?, ?, ?, ?)`,
		res.Window.Start.Format(time.RFC3339), res.Window.End.Format(time.RFC3339),
		res.Skipped, res.Recurring, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("export: analysis: %w", err)
	}

	for category, events := range res.Events {
		for i, ev := range events {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO matched_events (category, seq, start, summary, duration_seconds) VALUES (?, ?, ?, ?, ?)`,
				category, i, ev.Start.Format(time.RFC3339), ev.Summary, ev.Duration.Seconds(),
			); err != nil {
				return fmt.Errorf("export: matched_events: %w", err)
			}
		}
	}

	for category, total := range res.Totals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO category_totals (category, total_hours) VALUES (?, ?)`,
			category, total.Hours(),
		); err != nil {
			return fmt.Errorf("export: category_totals: %w", err)
		}
	}

	for category, dist := range res.DayOfWeek {
		for i, day := range analyzer.Weekdays {
			st := dist[i]
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO weekday_stats (category, weekday, weekday_index, count, total_hours, avg_hours) VALUES (?, ?, ?, ?, ?, ?)`,
				category, day.String(), i, st.Count, st.TotalHours, st.AvgHours,
			); err != nil {
				return fmt.Errorf("export: weekday_stats: %w", err)
			}
		}
	}

	for category, weeks := range res.Weekly {
		for week, st := range weeks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO weekly_stats (category, week, total_hours, avg_hours) VALUES (?, ?, ?, ?)`,
				category, week, st.TotalHours, st.AvgHours,
			); err != nil {
				return fmt.Errorf("export: weekly_stats: %w", err)
			}
		}
	}

	for category, months := range res.Monthly {
		for month, st := range months {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO monthly_stats (category, month, total_hours, avg_hours, event_count) VALUES (?, ?, ?, ?, ?)`,
				category, month, st.TotalHours, st.AvgHours, st.EventCount,
			); err != nil {
				return fmt.Errorf("export: monthly_stats: %w", err)
			}
		}
	}

	return nil
}
