package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MalakaSupun/startmate/internal/hire"
)

// startDateLayout is the date format expected in the feed's start column.
const startDateLayout = "2006-01-02"

// CSVConfig configures a CSVAdapter. All fields except Path and
// HireIDColumn are optional.
type CSVConfig struct {
	// Path is the feed file. Re-read on every poll.
	Path string

	// HireIDColumn names the header whose value becomes the hire ID.
	HireIDColumn string

	// StartDateAttribute, when set, names the column holding the hire's
	// start date (YYYY-MM-DD). Only hires starting within StartWindow
	// from now qualify; rows with unparseable dates are skipped and
	// logged, never fatal.
	StartDateAttribute string

	// StartWindow bounds how far ahead a start date may be. Zero means
	// no upper bound when StartDateAttribute is set.
	StartWindow time.Duration
}

// CSVAdapter reads a headered CSV feed. Every column maps to an event
// attribute keyed by its trimmed header; one configured column supplies
// the hire ID.
type CSVAdapter struct {
	cfg CSVConfig
	now func() time.Time
}

// NewCSVAdapter creates an adapter for the given feed configuration.
func NewCSVAdapter(cfg CSVConfig) (*CSVAdapter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("csv adapter: feed path is required")
	}
	if cfg.HireIDColumn == "" {
		return nil, fmt.Errorf("csv adapter: hire id column is required")
	}
	return &CSVAdapter{cfg: cfg, now: time.Now}, nil
}

// Poll reads the feed and returns one event per qualifying row.
//
// Duplicate hire IDs within a single poll are suppressed, first row wins.
// Rows missing the hire ID column value are skipped with a warning.
func (a *CSVAdapter) Poll(ctx context.Context) ([]hire.Event, error) {
	f, err := os.Open(a.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("poll feed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return []hire.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll feed: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	idCol := -1
	for i, h := range header {
		if h == a.cfg.HireIDColumn {
			idCol = i
			break
		}
	}
	if idCol == -1 {
		return nil, fmt.Errorf("poll feed: hire id column %q not in header %v", a.cfg.HireIDColumn, header)
	}

	detectedAt := a.now().UTC()
	seen := make(map[string]bool)
	events := []hire.Event{}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("poll feed: %w", err)
		}

		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("poll feed: line %d: %w", line, err)
		}

		hireID := ""
		if idCol < len(row) {
			hireID = strings.TrimSpace(row[idCol])
		}
		if hireID == "" {
			slog.Warn("feed row missing hire id, skipped", "line", line)
			continue
		}
		if seen[hireID] {
			slog.Debug("duplicate hire in poll window, suppressed", "hire_id", hireID, "line", line)
			continue
		}

		attrs := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				attrs[h] = strings.TrimSpace(row[i])
			}
		}

		if !a.startsWithinWindow(hireID, attrs, detectedAt) {
			continue
		}

		fingerprint, err := hire.Fingerprint(attrs)
		if err != nil {
			return nil, fmt.Errorf("poll feed: line %d: %w", line, err)
		}

		ev := hire.Event{
			HireID:      hireID,
			DetectedAt:  detectedAt,
			Attributes:  attrs,
			Fingerprint: fingerprint,
		}
		if err := ev.Validate(); err != nil {
			slog.Warn("invalid feed row, skipped", "line", line, "error", err)
			continue
		}

		seen[hireID] = true
		events = append(events, ev)
	}

	slog.Info("feed polled", "path", a.cfg.Path, "events", len(events))
	return events, nil
}

// startsWithinWindow applies the start-date filter, when configured.
// A hire qualifies from its start date minus the window through the start
// date itself; past start dates do not qualify.
func (a *CSVAdapter) startsWithinWindow(hireID string, attrs map[string]string, now time.Time) bool {
	if a.cfg.StartDateAttribute == "" {
		return true
	}

	raw := attrs[a.cfg.StartDateAttribute]
	start, err := time.Parse(startDateLayout, raw)
	if err != nil {
		slog.Warn("unparseable start date, row skipped",
			"hire_id", hireID,
			"start_date", raw,
		)
		return false
	}

	// End of the start day: someone starting today still qualifies.
	until := start.Add(24 * time.Hour)
	if now.After(until) {
		return false
	}
	if a.cfg.StartWindow > 0 && start.Sub(now) > a.cfg.StartWindow {
		return false
	}
	return true
}
