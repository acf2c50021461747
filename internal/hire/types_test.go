package hire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInProgress, StatusSucceeded, StatusFailed, StatusSkipped} {
		assert.True(t, s.Valid(), "status %q", s)
	}
	assert.False(t, Status("done").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatusSettled(t *testing.T) {
	assert.True(t, StatusSucceeded.Settled())
	assert.True(t, StatusSkipped.Settled())

	// Failed stays re-claimable until the attempt cap, so it is not settled.
	assert.False(t, StatusFailed.Settled())
	assert.False(t, StatusPending.Settled())
	assert.False(t, StatusInProgress.Settled())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusSkipped, true},
		{StatusPending, StatusSucceeded, false},
		{StatusPending, StatusFailed, false},

		{StatusInProgress, StatusSucceeded, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusSkipped, true},
		{StatusInProgress, StatusPending, false},

		{StatusFailed, StatusInProgress, true},
		{StatusFailed, StatusSkipped, true},
		{StatusFailed, StatusSucceeded, false},

		{StatusSucceeded, StatusInProgress, false},
		{StatusSucceeded, StatusSkipped, false},
		{StatusSkipped, StatusInProgress, false},
		{StatusSkipped, StatusSucceeded, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestEventValidate(t *testing.T) {
	valid := Event{
		HireID:     "emp-1",
		DetectedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Attributes: map[string]string{"name": "Ada"},
	}
	assert.NoError(t, valid.Validate())

	missingID := valid
	missingID.HireID = ""
	assert.Error(t, missingID.Validate())

	missingDetected := valid
	missingDetected.DetectedAt = time.Time{}
	assert.Error(t, missingDetected.Validate())

	emptyKey := valid
	emptyKey.Attributes = map[string]string{"": "x"}
	assert.Error(t, emptyKey.Validate())

	noAttrs := valid
	noAttrs.Attributes = nil
	assert.NoError(t, noAttrs.Validate())
}
