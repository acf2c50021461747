package store

import (
	"context"
	"fmt"
	"time"
)

// AuditEntry is one append-only record of a status change, readable by an
// external dashboard. Entries are never updated or deleted.
type AuditEntry struct {
	ID           int64
	HireID       string
	ActionID     string
	Status       string
	Reason       string
	TriggerToken string
	RecordedAt   time.Time
}

// AppendAudit writes one audit entry and returns its assigned ID.
func (s *Store) AppendAudit(ctx context.Context, entry AuditEntry) (int64, error) {
	at := entry.RecordedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (hire_id, action_id, status, reason, trigger_token, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.HireID, entry.ActionID, entry.Status, entry.Reason, entry.TriggerToken,
		at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("append audit (%s, %s): %w", entry.HireID, entry.ActionID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append audit (%s, %s): last insert id: %w", entry.HireID, entry.ActionID, err)
	}
	return id, nil
}

// Trail returns the audit entries for a hire in append order.
// Ordering uses the id column, never timestamps.
func (s *Store) Trail(ctx context.Context, hireID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hire_id, action_id, status, reason, trigger_token, recorded_at
		FROM audit_log
		WHERE hire_id = ?
		ORDER BY id ASC
	`, hireID)
	if err != nil {
		return nil, fmt.Errorf("audit trail for %s: %w", hireID, err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			entry      AuditEntry
			recordedAt string
		)
		if err := rows.Scan(&entry.ID, &entry.HireID, &entry.ActionID, &entry.Status, &entry.Reason, &entry.TriggerToken, &recordedAt); err != nil {
			return nil, fmt.Errorf("audit trail for %s: scan: %w", hireID, err)
		}
		t, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("audit trail for %s: parse recorded_at %q: %w", hireID, recordedAt, err)
		}
		entry.RecordedAt = t
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit trail for %s: iterate: %w", hireID, err)
	}
	return entries, nil
}
