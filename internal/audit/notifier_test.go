package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MalakaSupun/startmate/internal/hire"
	"github.com/MalakaSupun/startmate/internal/store"
)

// memorySink collects entries; fail makes every append error.
type memorySink struct {
	entries []store.AuditEntry
	fail    bool
}

func (s *memorySink) AppendAudit(ctx context.Context, entry store.AuditEntry) (int64, error) {
	if s.fail {
		return 0, errors.New("disk full")
	}
	s.entries = append(s.entries, entry)
	return int64(len(s.entries)), nil
}

func TestRecordAppendsEntry(t *testing.T) {
	sink := &memorySink{}
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	n := NewNotifierWithClock(sink, func() time.Time { return at })

	n.Record(context.Background(), "emp-1", "welcome_email", hire.StatusSucceeded, "", "trigger-1")

	assert.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, "emp-1", entry.HireID)
	assert.Equal(t, "welcome_email", entry.ActionID)
	assert.Equal(t, string(hire.StatusSucceeded), entry.Status)
	assert.Equal(t, "trigger-1", entry.TriggerToken)
	assert.Equal(t, at, entry.RecordedAt)
}

func TestRecordInterventionUsesMarkerStatus(t *testing.T) {
	sink := &memorySink{}
	n := NewNotifier(sink)

	n.RecordIntervention(context.Background(), "emp-1", "badge", "ldap timeout", "trigger-1")

	assert.Len(t, sink.entries, 1)
	assert.Equal(t, StatusRequiresIntervention, sink.entries[0].Status)
	assert.Equal(t, "ldap timeout", sink.entries[0].Reason)
}

func TestRecordSwallowsSinkErrors(t *testing.T) {
	sink := &memorySink{fail: true}
	n := NewNotifier(sink)

	// Must not panic or propagate; audit loss is logged, not fatal.
	n.Record(context.Background(), "emp-1", "welcome_email", hire.StatusFailed, "boom", "trigger-1")
	assert.Empty(t, sink.entries)
}
