package store

import (
	"errors"
	"fmt"

	"github.com/MalakaSupun/startmate/internal/hire"
)

// ErrRunNotFound is returned when a (hire, action) run does not exist.
var ErrRunNotFound = errors.New("action run not found")

// ErrEventNotFound is returned when no onboarding event exists for a hire.
var ErrEventNotFound = errors.New("onboarding event not found")

// ConflictError reports a compare-and-swap transition that lost: the row's
// committed status did not match the caller's expected status.
//
// Conflicts are an expected part of normal operation under concurrent
// duplicate triggers. Callers recover locally by skipping the action; a
// conflict is never surfaced as an onboarding failure.
type ConflictError struct {
	HireID   string
	ActionID string
	Expected hire.Status
	Actual   hire.Status
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("transition conflict for (%s, %s): expected %s, found %s",
		e.HireID, e.ActionID, e.Expected, e.Actual)
}

// IsConflict reports whether err is a ConflictError, unwrapping as needed.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// InvalidTransitionError reports a transition rejected by the status state
// machine before touching the database. Unlike a ConflictError this is a
// programming or configuration mistake, not a race.
type InvalidTransitionError struct {
	HireID   string
	ActionID string
	From     hire.Status
	To       hire.Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("disallowed transition for (%s, %s): %s -> %s",
		e.HireID, e.ActionID, e.From, e.To)
}
