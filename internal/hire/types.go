package hire

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a single (hire, action) run.
type Status string

const (
	// StatusPending means the action is applicable but has not been claimed.
	StatusPending Status = "pending"
	// StatusInProgress means exactly one worker has claimed the run.
	StatusInProgress Status = "in_progress"
	// StatusSucceeded means the executor completed and a result token was stored.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the last attempt failed. Failed runs stay
	// re-claimable for retries until the run is marked terminal, either by
	// exhausting the attempt cap or by a non-retryable executor error.
	StatusFailed Status = "failed"
	// StatusSkipped means the run was cancelled or deliberately not executed.
	StatusSkipped Status = "skipped"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Settled reports whether s is a state the store will never move out of.
// Failed is not settled here: whether a failed run is final is row data
// (ActionRun.Terminal), not a property of the status alone.
func (s Status) Settled() bool {
	return s == StatusSucceeded || s == StatusSkipped
}

// Satisfies reports whether a dependency in state s unblocks its dependents.
func (s Status) Satisfies() bool {
	return s == StatusSucceeded || s == StatusSkipped
}

// CanTransition reports whether from -> to is a legal status transition.
//
// The machine is monotonic: Pending -> InProgress -> {Succeeded, Failed,
// Skipped}, with Failed -> InProgress allowed for retries and
// {Pending, InProgress} -> Skipped allowed for cancellation. Succeeded and
// Skipped accept no further transitions.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusSkipped
	case StatusInProgress:
		return to == StatusSucceeded || to == StatusFailed || to == StatusSkipped
	case StatusFailed:
		return to == StatusInProgress || to == StatusSkipped
	default:
		return false
	}
}

// Event is one detected new-hire record, normalized at the adapter boundary.
// Events are immutable once created and are retained forever for audit.
type Event struct {
	// HireID is the unique, stable identifier of the hire.
	HireID string

	// DetectedAt is when the adapter first saw this record.
	DetectedAt time.Time

	// Attributes carries the typed column values from the source feed
	// (name, email, department, start_date, ...). Keys come from the
	// configured column mapping.
	Attributes map[string]string

	// Fingerprint is the canonical hash of Attributes, computed by the
	// adapter via hire.Fingerprint. Used to detect changed source rows.
	Fingerprint string
}

// Validate checks the invariants an event must satisfy before it may enter
// the orchestrator. Untyped or partial rows never cross this boundary.
func (e Event) Validate() error {
	if e.HireID == "" {
		return fmt.Errorf("event: hire id is required")
	}
	if e.DetectedAt.IsZero() {
		return fmt.Errorf("event %s: detected_at is required", e.HireID)
	}
	for k := range e.Attributes {
		if k == "" {
			return fmt.Errorf("event %s: empty attribute key", e.HireID)
		}
	}
	return nil
}

// ActionRun is the durable record of one logical execution of an action for
// a hire. One row exists per (HireID, ActionID); rows are never deleted,
// only transitioned.
type ActionRun struct {
	HireID   string
	ActionID string
	Status   Status

	// AttemptCount is the number of times an executor has been invoked
	// for this run, successful or not.
	AttemptCount int

	// LastAttemptAt is nil until the first claim.
	LastAttemptAt *time.Time

	// ResultToken is the opaque token returned by the executor on success.
	ResultToken string

	// FailureReason describes the most recent failure, empty otherwise.
	FailureReason string

	// Terminal is set when a Failed run will never be retried: the attempt
	// cap was exhausted or the executor reported a non-retryable error.
	// Terminal runs are immutable, exactly like Succeeded and Skipped.
	Terminal bool
}

// RequiresIntervention reports whether the run has failed for good and
// needs a human.
func (r ActionRun) RequiresIntervention() bool {
	return r.Status == StatusFailed && r.Terminal
}
