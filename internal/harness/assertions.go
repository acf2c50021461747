package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MalakaSupun/startmate/internal/hire"
)

// Verify asserts every expectation in the scenario against the result.
func Verify(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	for _, exp := range scenario.Expect {
		run, ok := findRun(result, exp.HireID, exp.ActionID)
		if !assert.True(t, ok, "no run for %s", formatRun(exp.HireID, exp.ActionID)) {
			continue
		}

		assert.Equal(t, hire.Status(exp.Status), run.Status,
			"status of %s", formatRun(exp.HireID, exp.ActionID))

		if exp.Attempts != nil {
			assert.Equal(t, *exp.Attempts, run.AttemptCount,
				"attempt count of %s", formatRun(exp.HireID, exp.ActionID))
		}
		if exp.ResultToken != "" {
			assert.Equal(t, exp.ResultToken, run.ResultToken,
				"result token of %s", formatRun(exp.HireID, exp.ActionID))
		}
		if exp.Terminal != nil {
			assert.Equal(t, *exp.Terminal, run.Terminal,
				"terminal flag of %s", formatRun(exp.HireID, exp.ActionID))
		}
	}
}

func findRun(result *Result, hireID, actionID string) (hire.ActionRun, bool) {
	for _, run := range result.Runs[hireID] {
		if run.ActionID == actionID {
			return run, true
		}
	}
	return hire.ActionRun{}, false
}
