package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

// trailSnapshot is the golden-file shape of a scenario's audit output.
// Deterministic by construction: fixed clock, fixed trigger tokens, hires
// sorted by ID, entries in append order.
type trailSnapshot struct {
	Scenario string      `json:"scenario"`
	Hires    []hireTrail `json:"hires"`
}

type hireTrail struct {
	HireID  string       `json:"hire_id"`
	Entries []trailEvent `json:"entries"`
}

type trailEvent struct {
	ActionID     string `json:"action_id,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	TriggerToken string `json:"trigger_token,omitempty"`
	RecordedAt   string `json:"recorded_at"`
}

// AssertGolden compares a scenario result's audit trails against the
// golden file testdata/golden/{scenario.Name}.golden.
//
// Regenerate with:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	snapshot := trailSnapshot{Scenario: scenario.Name}

	hireIDs := make([]string, 0, len(result.Trails))
	for id := range result.Trails {
		hireIDs = append(hireIDs, id)
	}
	sort.Strings(hireIDs)

	for _, id := range hireIDs {
		trail := hireTrail{HireID: id}
		for _, e := range result.Trails[id] {
			trail.Entries = append(trail.Entries, trailEvent{
				ActionID:     e.ActionID,
				Status:       e.Status,
				Reason:       e.Reason,
				TriggerToken: e.TriggerToken,
				RecordedAt:   e.RecordedAt.UTC().Format(time.RFC3339),
			})
		}
		snapshot.Hires = append(snapshot.Hires, trail)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshal trail snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}

// formatRun is a helper for failure messages.
func formatRun(hireID, actionID string) string {
	return fmt.Sprintf("(%s, %s)", hireID, actionID)
}
