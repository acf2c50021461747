package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MalakaSupun/startmate/internal/hire"
)

// RecordEvent persists a detected onboarding event.
//
// Events are immutable: ON CONFLICT(hire_id) DO NOTHING makes re-detection
// of the same hire a silent no-op, so the first detection wins and its
// attributes are what the audit trail keeps. Returns inserted=false for a
// duplicate.
func (s *Store) RecordEvent(ctx context.Context, ev hire.Event) (inserted bool, err error) {
	if err := ev.Validate(); err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}

	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return false, fmt.Errorf("record event %s: marshal attributes: %w", ev.HireID, err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO onboarding_events (hire_id, detected_at, attributes, fingerprint)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hire_id) DO NOTHING
	`, ev.HireID, ev.DetectedAt.UTC().Format(time.RFC3339Nano), string(attrs), ev.Fingerprint)
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", ev.HireID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event %s: rows affected: %w", ev.HireID, err)
	}
	return affected > 0, nil
}

// ReadEvent returns the recorded event for a hire.
// Returns ErrEventNotFound if the hire has never been detected.
func (s *Store) ReadEvent(ctx context.Context, hireID string) (hire.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hire_id, detected_at, attributes, fingerprint
		FROM onboarding_events
		WHERE hire_id = ?
	`, hireID)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return hire.Event{}, fmt.Errorf("event %s: %w", hireID, ErrEventNotFound)
	}
	if err != nil {
		return hire.Event{}, fmt.Errorf("read event %s: %w", hireID, err)
	}
	return ev, nil
}

// ListEvents returns all recorded events ordered by hire ID.
func (s *Store) ListEvents(ctx context.Context) ([]hire.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hire_id, detected_at, attributes, fingerprint
		FROM onboarding_events
		ORDER BY hire_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []hire.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// scanEvent reads one onboarding_events row.
func scanEvent(row rowScanner) (hire.Event, error) {
	var (
		ev         hire.Event
		detectedAt string
		attrsJSON  string
	)
	if err := row.Scan(&ev.HireID, &detectedAt, &attrsJSON, &ev.Fingerprint); err != nil {
		return hire.Event{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, detectedAt)
	if err != nil {
		return hire.Event{}, fmt.Errorf("parse detected_at %q: %w", detectedAt, err)
	}
	ev.DetectedAt = t

	if err := json.Unmarshal([]byte(attrsJSON), &ev.Attributes); err != nil {
		return hire.Event{}, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return ev, nil
}
