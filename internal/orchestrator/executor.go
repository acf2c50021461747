package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// Executor performs one onboarding action against an external service
// (mail-send API, chat-post API, calendar-create API). The orchestrator
// treats every target as this one uniform capability.
//
// Execute returns an opaque result token on success (message ID, event ID,
// whatever the backing service hands back). Implementations should return
// an *ExecutorError to distinguish transient from terminal failures; any
// other error is treated as transient.
//
// Execute is called with a bounded-timeout context. Implementations must
// honor cancellation; the orchestrator treats a timeout as a transient
// failure eligible for retry.
type Executor interface {
	Execute(ctx context.Context, hireID string, attributes map[string]string) (resultToken string, err error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, hireID string, attributes map[string]string) (string, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, hireID string, attributes map[string]string) (string, error) {
	return f(ctx, hireID, attributes)
}

// ExecutorError reports a failed executor call.
type ExecutorError struct {
	// Op names the failed capability, e.g. "email.send".
	Op string

	// Transient marks failures worth retrying (rate limits, 5xx,
	// timeouts). Terminal failures (invalid address, 4xx) exhaust
	// retries immediately.
	Transient bool

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.Op != "" {
		return fmt.Sprintf("executor %s: %s failure: %v", e.Op, kind, e.Err)
	}
	return fmt.Sprintf("executor: %s failure: %v", kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// retryable reports whether a failed executor call should be retried.
//
// Timeouts and cancellations are transient: the call may well have been
// about to succeed. Unclassified errors default to transient too - marking
// an unknown failure terminal would strand a hire on what might be a blip.
func retryable(err error) bool {
	var ee *ExecutorError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return true
}

// ExecutorSet resolves the capability names used by action definitions to
// concrete executors. Wiring is validated once at startup.
type ExecutorSet map[string]Executor

// Resolve returns the executor registered under name.
func (s ExecutorSet) Resolve(name string) (Executor, bool) {
	e, ok := s[name]
	return e, ok
}
