// Package harness runs conformance scenarios against the real store and
// orchestrator.
//
// Each scenario opens a fresh in-memory SQLite database, builds the action
// graph it declares, wires scripted executors and deterministic clocks and
// tokens, then processes the declared event deliveries to completion with
// an immediate retry scheduler. The resulting run states are asserted
// against the scenario's expect list and the audit trail is compared to a
// golden file, so the full claim/execute/record path is exercised end to
// end with reproducible output.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MalakaSupun/startmate/internal/audit"
	"github.com/MalakaSupun/startmate/internal/hire"
	"github.com/MalakaSupun/startmate/internal/orchestrator"
	"github.com/MalakaSupun/startmate/internal/registry"
	"github.com/MalakaSupun/startmate/internal/store"
	"github.com/MalakaSupun/startmate/internal/testutil"
)

// scenarioEpoch is the fixed instant every scenario clock starts at.
var scenarioEpoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// Result holds everything a scenario produced.
type Result struct {
	// Runs maps hire ID to that hire's final runs, ordered by action ID.
	Runs map[string][]hire.ActionRun

	// Trails maps hire ID to its audit trail in append order.
	Trails map[string][]store.AuditEntry

	// Summary accumulates the processing counters across all deliveries.
	Summary orchestrator.Summary
}

// Run executes a scenario and returns the final state.
//
// Deliveries get fixed trigger tokens ("trigger-1", "trigger-2", ...) in
// event order; retries reuse the token of the delivery that scheduled
// them. The retry scheduler fires immediately, so one Drain call settles
// every run the scenario can settle.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	reg := registry.New()
	for _, a := range scenario.Actions {
		if err := reg.Register(registry.ActionDefinition{
			ID:        a.ID,
			DependsOn: a.DependsOn,
			Executor:  a.Executor,
		}); err != nil {
			return nil, err
		}
	}

	execs := buildExecutors(scenario)

	clock := testutil.NewDeterministicClock(scenarioEpoch)
	notifier := audit.NewNotifierWithClock(st, clock.Now)

	tokens := make([]string, len(scenario.Events))
	for i := range scenario.Events {
		tokens[i] = fmt.Sprintf("trigger-%d", i+1)
	}

	opts := []orchestrator.Option{
		orchestrator.WithTokenGenerator(orchestrator.NewFixedGenerator(tokens...)),
		orchestrator.WithScheduler(func(d time.Duration, f func()) { f() }),
		orchestrator.WithClock(clock.Now),
	}
	if scenario.MaxAttempts > 0 {
		opts = append(opts, orchestrator.WithMaxAttempts(scenario.MaxAttempts))
	}

	orch, err := orchestrator.New(st, reg, execs, notifier, opts...)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := &Result{
		Runs:   make(map[string][]hire.ActionRun),
		Trails: make(map[string][]store.AuditEntry),
	}

	for _, step := range scenario.Events {
		ev := hire.Event{
			HireID:     step.HireID,
			DetectedAt: clock.Now(),
			Attributes: step.Attributes,
		}
		fp, err := hire.Fingerprint(ev.Attributes)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: fingerprint %s: %w", scenario.Name, step.HireID, err)
		}
		ev.Fingerprint = fp

		orch.Enqueue(orch.NewTrigger(ev))
		sum, err := orch.Drain(ctx)
		accumulate(&result.Summary, sum)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		clock.Advance(time.Minute)
	}

	for _, hireID := range scenario.Cancel {
		if _, err := orch.Cancel(ctx, hireID, "cancelled by scenario"); err != nil {
			return nil, fmt.Errorf("scenario %s: cancel %s: %w", scenario.Name, hireID, err)
		}
	}

	for _, hireID := range scenarioHires(scenario) {
		runs, err := st.RunsForHire(ctx, hireID)
		if err != nil {
			return nil, err
		}
		result.Runs[hireID] = runs

		trail, err := st.Trail(ctx, hireID)
		if err != nil {
			return nil, err
		}
		result.Trails[hireID] = trail
	}
	return result, nil
}

// buildExecutors creates one scripted executor per executor name and loads
// the scenario's scripts into it.
func buildExecutors(scenario *Scenario) orchestrator.ExecutorSet {
	byName := make(map[string]*testutil.ScriptedExecutor)
	for _, a := range scenario.Actions {
		if _, ok := byName[a.Executor]; !ok {
			byName[a.Executor] = testutil.NewScriptedExecutor()
		}
	}

	for _, sc := range scenario.Scripts {
		exec, ok := byName[sc.Executor]
		if !ok {
			continue
		}
		outcomes := make([]testutil.Outcome, len(sc.Outcomes))
		for i, spec := range sc.Outcomes {
			outcomes[i] = compileOutcome(spec)
		}
		exec.Script(sc.HireID, outcomes...)
	}

	set := make(orchestrator.ExecutorSet, len(byName))
	for name, exec := range byName {
		set[name] = exec
	}
	return set
}

func compileOutcome(spec OutcomeSpec) testutil.Outcome {
	if spec.Error == "" {
		return testutil.Outcome{Token: spec.Token}
	}
	return testutil.Outcome{Err: &orchestrator.ExecutorError{
		Op:        "scripted",
		Transient: !spec.Permanent,
		Err:       errors.New(spec.Error),
	}}
}

// scenarioHires returns the distinct hire IDs the scenario touches,
// sorted for deterministic iteration.
func scenarioHires(scenario *Scenario) []string {
	seen := make(map[string]struct{})
	for _, ev := range scenario.Events {
		seen[ev.HireID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func accumulate(total *orchestrator.Summary, sum orchestrator.Summary) {
	total.Claimed += sum.Claimed
	total.Succeeded += sum.Succeeded
	total.Failed += sum.Failed
	total.Retried += sum.Retried
	total.Blocked += sum.Blocked
	total.Conflicts += sum.Conflicts
	total.Settled += sum.Settled
}
