// Package audit emits the append-only trail of onboarding status changes.
//
// The notifier is a passive observer: a failed audit write is swallowed and
// alarmed through slog, never propagated to the orchestrator. Losing one
// audit line must not fail an onboarding action.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/MalakaSupun/startmate/internal/hire"
	"github.com/MalakaSupun/startmate/internal/store"
)

// StatusRequiresIntervention marks a run whose attempt cap is exhausted.
// It appears in the audit trail alongside the regular run statuses so a
// dashboard can filter for hires needing manual remediation.
const StatusRequiresIntervention = "requires_intervention"

// Sink is the subset of the store the notifier writes through.
type Sink interface {
	AppendAudit(ctx context.Context, entry store.AuditEntry) (int64, error)
}

// Notifier appends audit entries for every status change.
type Notifier struct {
	sink Sink
	now  func() time.Time
}

// NewNotifier creates a notifier writing through the given sink.
func NewNotifier(sink Sink) *Notifier {
	return &Notifier{sink: sink, now: time.Now}
}

// NewNotifierWithClock creates a notifier with a fixed clock, so tests get
// reproducible recorded_at values.
func NewNotifierWithClock(sink Sink, now func() time.Time) *Notifier {
	return &Notifier{sink: sink, now: now}
}

// Record appends one entry for a run status change.
// Errors are logged and swallowed.
func (n *Notifier) Record(ctx context.Context, hireID, actionID string, status hire.Status, reason, triggerToken string) {
	n.append(ctx, store.AuditEntry{
		HireID:       hireID,
		ActionID:     actionID,
		Status:       string(status),
		Reason:       reason,
		TriggerToken: triggerToken,
		RecordedAt:   n.now().UTC(),
	})
}

// RecordIntervention appends the terminal marker for a run that exhausted
// its attempt cap and now needs a human.
func (n *Notifier) RecordIntervention(ctx context.Context, hireID, actionID, reason, triggerToken string) {
	n.append(ctx, store.AuditEntry{
		HireID:       hireID,
		ActionID:     actionID,
		Status:       StatusRequiresIntervention,
		Reason:       reason,
		TriggerToken: triggerToken,
		RecordedAt:   n.now().UTC(),
	})
}

func (n *Notifier) append(ctx context.Context, entry store.AuditEntry) {
	if _, err := n.sink.AppendAudit(ctx, entry); err != nil {
		// Swallowed on purpose: audit failures are alarmed, not surfaced
		// as onboarding failures.
		slog.Error("audit write failed",
			"error", err,
			"hire_id", entry.HireID,
			"action_id", entry.ActionID,
			"status", entry.Status,
		)
	}
}
