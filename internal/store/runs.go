package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MalakaSupun/startmate/internal/hire"
)

// TransitionMeta carries the outcome data recorded alongside a transition.
// Fields are applied only where they make sense for the target status.
type TransitionMeta struct {
	// AttemptAt stamps last_attempt_at when claiming InProgress.
	AttemptAt time.Time

	// ResultToken is stored when transitioning to Succeeded.
	ResultToken string

	// Reason is stored as failure_reason when transitioning to Failed,
	// and as the skip reason when transitioning to Skipped.
	Reason string

	// Terminal marks a Failed transition as final: the run can never be
	// re-claimed for a retry nor rewritten by CancelHire.
	Terminal bool
}

// GetOrCreateRun returns the run for (hireID, actionID), creating a Pending
// row if none exists.
//
// Creation is idempotent via ON CONFLICT DO NOTHING on the primary key:
// concurrent callers all converge on the same committed row.
func (s *Store) GetOrCreateRun(ctx context.Context, hireID, actionID string) (hire.ActionRun, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_runs (hire_id, action_id, status)
		VALUES (?, ?, ?)
		ON CONFLICT(hire_id, action_id) DO NOTHING
	`, hireID, actionID, string(hire.StatusPending))
	if err != nil {
		return hire.ActionRun{}, fmt.Errorf("get or create run: %w", err)
	}

	return s.Run(ctx, hireID, actionID)
}

// Run returns the committed run for (hireID, actionID).
// Returns ErrRunNotFound if no row exists.
func (s *Store) Run(ctx context.Context, hireID, actionID string) (hire.ActionRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hire_id, action_id, status, attempt_count, last_attempt_at, result_token, failure_reason, terminal
		FROM action_runs
		WHERE hire_id = ? AND action_id = ?
	`, hireID, actionID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return hire.ActionRun{}, fmt.Errorf("run (%s, %s): %w", hireID, actionID, ErrRunNotFound)
	}
	if err != nil {
		return hire.ActionRun{}, fmt.Errorf("read run (%s, %s): %w", hireID, actionID, err)
	}
	return run, nil
}

// RunsForHire returns all runs for a hire, ordered by action ID for
// deterministic output. Returns an empty slice (not nil) when none exist.
func (s *Store) RunsForHire(ctx context.Context, hireID string) ([]hire.ActionRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hire_id, action_id, status, attempt_count, last_attempt_at, result_token, failure_reason, terminal
		FROM action_runs
		WHERE hire_id = ?
		ORDER BY action_id COLLATE BINARY ASC
	`, hireID)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", hireID, err)
	}
	defer rows.Close()

	runs := []hire.ActionRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run for %s: %w", hireID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs for %s: %w", hireID, err)
	}
	return runs, nil
}

// Transition performs a compare-and-swap status change on one run.
//
// The UPDATE is guarded by "status = expected", so of any number of
// concurrent attempts at the same transition exactly one commits; the rest
// receive a ConflictError carrying the status that actually won.
//
// Effects by target status:
//   - InProgress: attempt_count incremented, last_attempt_at stamped
//   - Succeeded:  result_token stored, failure_reason cleared
//   - Failed:     failure_reason stored, terminal flag applied from meta
//   - Skipped:    failure_reason records the skip reason, if any
//
// Transitions outside the hire.CanTransition state machine are rejected
// before touching the database. A Failed run marked terminal refuses every
// further transition; the attempt reads back as a ConflictError.
func (s *Store) Transition(ctx context.Context, hireID, actionID string, expected, next hire.Status, meta TransitionMeta) (hire.ActionRun, error) {
	if !expected.Valid() || !next.Valid() {
		return hire.ActionRun{}, fmt.Errorf("transition (%s, %s): unknown status %q -> %q", hireID, actionID, expected, next)
	}
	if !hire.CanTransition(expected, next) {
		return hire.ActionRun{}, &InvalidTransitionError{HireID: hireID, ActionID: actionID, From: expected, To: next}
	}

	var (
		result sql.Result
		err    error
	)

	switch next {
	case hire.StatusInProgress:
		at := meta.AttemptAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		result, err = s.db.ExecContext(ctx, `
			UPDATE action_runs
			SET status = ?, attempt_count = attempt_count + 1, last_attempt_at = ?
			WHERE hire_id = ? AND action_id = ? AND status = ? AND terminal = 0
		`, string(next), at.UTC().Format(time.RFC3339Nano), hireID, actionID, string(expected))

	case hire.StatusSucceeded:
		result, err = s.db.ExecContext(ctx, `
			UPDATE action_runs
			SET status = ?, result_token = ?, failure_reason = ''
			WHERE hire_id = ? AND action_id = ? AND status = ?
		`, string(next), meta.ResultToken, hireID, actionID, string(expected))

	case hire.StatusFailed:
		result, err = s.db.ExecContext(ctx, `
			UPDATE action_runs
			SET status = ?, failure_reason = ?, terminal = ?
			WHERE hire_id = ? AND action_id = ? AND status = ?
		`, string(next), meta.Reason, meta.Terminal, hireID, actionID, string(expected))

	case hire.StatusSkipped:
		result, err = s.db.ExecContext(ctx, `
			UPDATE action_runs
			SET status = ?, failure_reason = ?
			WHERE hire_id = ? AND action_id = ? AND status = ? AND terminal = 0
		`, string(next), meta.Reason, hireID, actionID, string(expected))

	default:
		return hire.ActionRun{}, &InvalidTransitionError{HireID: hireID, ActionID: actionID, From: expected, To: next}
	}

	if err != nil {
		return hire.ActionRun{}, fmt.Errorf("transition (%s, %s) %s -> %s: %w", hireID, actionID, expected, next, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return hire.ActionRun{}, fmt.Errorf("transition (%s, %s): rows affected: %w", hireID, actionID, err)
	}

	if affected == 0 {
		// Lost the CAS, or the row never existed. Read back to tell the
		// caller which.
		current, readErr := s.Run(ctx, hireID, actionID)
		if readErr != nil {
			return hire.ActionRun{}, readErr
		}
		return hire.ActionRun{}, &ConflictError{
			HireID:   hireID,
			ActionID: actionID,
			Expected: expected,
			Actual:   current.Status,
		}
	}

	return s.Run(ctx, hireID, actionID)
}

// CancelHire transitions every non-terminal run for a hire to Skipped and
// returns the affected action IDs in deterministic order.
//
// In-flight executor calls are not interrupted; their eventual transition
// out of InProgress will lose the CAS against the Skipped row and be
// ignored. Succeeded, Skipped and terminal Failed runs are left untouched:
// a run already surfaced for intervention keeps its failure on record.
func (s *Store) CancelHire(ctx context.Context, hireID, reason string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cancel %s: begin tx: %w", hireID, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT action_id FROM action_runs
		WHERE hire_id = ? AND status IN (?, ?, ?) AND terminal = 0
		ORDER BY action_id COLLATE BINARY ASC
	`, hireID, string(hire.StatusPending), string(hire.StatusInProgress), string(hire.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("cancel %s: query: %w", hireID, err)
	}

	var cancelled []string
	for rows.Next() {
		var actionID string
		if err := rows.Scan(&actionID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("cancel %s: scan: %w", hireID, err)
		}
		cancelled = append(cancelled, actionID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("cancel %s: iterate: %w", hireID, err)
	}
	rows.Close()

	if len(cancelled) == 0 {
		return nil, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE action_runs
		SET status = ?, failure_reason = ?
		WHERE hire_id = ? AND status IN (?, ?, ?) AND terminal = 0
	`, string(hire.StatusSkipped), reason, hireID,
		string(hire.StatusPending), string(hire.StatusInProgress), string(hire.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("cancel %s: update: %w", hireID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cancel %s: commit: %w", hireID, err)
	}
	return cancelled, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun reads one action_runs row.
func scanRun(row rowScanner) (hire.ActionRun, error) {
	var (
		run       hire.ActionRun
		status    string
		attemptAt sql.NullString
	)
	err := row.Scan(&run.HireID, &run.ActionID, &status, &run.AttemptCount, &attemptAt, &run.ResultToken, &run.FailureReason, &run.Terminal)
	if err != nil {
		return hire.ActionRun{}, err
	}
	run.Status = hire.Status(status)

	if attemptAt.Valid && attemptAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, attemptAt.String)
		if err != nil {
			return hire.ActionRun{}, fmt.Errorf("parse last_attempt_at %q: %w", attemptAt.String, err)
		}
		run.LastAttemptAt = &t
	}
	return run, nil
}
