package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalakaSupun/startmate/internal/audit"
	"github.com/MalakaSupun/startmate/internal/hire"
	"github.com/MalakaSupun/startmate/internal/registry"
	"github.com/MalakaSupun/startmate/internal/store"
	"github.com/MalakaSupun/startmate/internal/testutil"
)

var testEpoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// callRecorder wraps executors so cross-action invocation order is visible.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) wrap(name string, inner Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, hireID string, attrs map[string]string) (string, error) {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return inner.Execute(ctx, hireID, attrs)
	})
}

func (r *callRecorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestRegistry(t *testing.T, defs ...registry.ActionDefinition) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}
	return reg
}

func newTestOrchestrator(t *testing.T, reg *registry.Registry, execs ExecutorSet, opts ...Option) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewDeterministicClock(testEpoch)
	notifier := audit.NewNotifierWithClock(st, clock.Now)

	base := []Option{
		WithScheduler(func(d time.Duration, f func()) { f() }),
		WithClock(clock.Now),
	}
	orch, err := New(st, reg, execs, notifier, append(base, opts...)...)
	require.NoError(t, err)
	return orch, st
}

func testTrigger(hireID string) Trigger {
	return Trigger{
		Event: hire.Event{
			HireID:     hireID,
			DetectedAt: testEpoch,
			Attributes: map[string]string{"name": "Ada"},
		},
		Token: "trigger-test",
	}
}

func TestNewRejectsUnwiredExecutor(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, err = New(st, reg, ExecutorSet{}, audit.NewNotifier(st))
	require.Error(t, err)
	assert.True(t, registry.IsConfigurationError(err))
}

func TestNewRejectsCyclicGraph(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.ActionDefinition{ID: "a", DependsOn: []string{"b"}, Executor: "x"}))
	require.NoError(t, reg.Register(registry.ActionDefinition{ID: "b", DependsOn: []string{"a"}, Executor: "x"}))

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, err = New(st, reg, ExecutorSet{"x": testutil.NewScriptedExecutor()}, audit.NewNotifier(st))
	require.Error(t, err)
	assert.True(t, registry.IsConfigurationError(err))
}

func TestProcessRunsActionsInDependencyOrder(t *testing.T) {
	reg := newTestRegistry(t,
		registry.ActionDefinition{ID: "welcome_email", Executor: "email"},
		registry.ActionDefinition{ID: "slack_notify", DependsOn: []string{"welcome_email"}, Executor: "chat"},
	)

	rec := &callRecorder{}
	execs := ExecutorSet{
		"email": rec.wrap("welcome_email", testutil.NewScriptedExecutor()),
		"chat":  rec.wrap("slack_notify", testutil.NewScriptedExecutor()),
	}
	orch, st := newTestOrchestrator(t, reg, execs)

	sum, err := orch.Process(context.Background(), testTrigger("emp-1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"welcome_email", "slack_notify"}, rec.order())
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 2, sum.Claimed)

	runs, err := st.RunsForHire(context.Background(), "emp-1")
	require.NoError(t, err)
	for _, run := range runs {
		assert.Equal(t, hire.StatusSucceeded, run.Status, "run %s", run.ActionID)
		assert.Equal(t, 1, run.AttemptCount, "run %s", run.ActionID)
	}
}

func TestProcessIdempotentOnRedelivery(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	exec := testutil.NewScriptedExecutor()
	orch, _ := newTestOrchestrator(t, reg, ExecutorSet{"email": exec})

	ctx := context.Background()
	trig := testTrigger("emp-1")

	first, err := orch.Process(ctx, trig)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	second, err := orch.Process(ctx, trig)
	require.NoError(t, err)
	assert.Zero(t, second.Claimed)
	assert.Equal(t, 1, second.Settled)

	assert.Equal(t, 1, exec.CallCount("emp-1"), "executor must run exactly once")
}

func TestProcessBlocksDependentOnFailedDependency(t *testing.T) {
	reg := newTestRegistry(t,
		registry.ActionDefinition{ID: "badge", Executor: "badge"},
		registry.ActionDefinition{ID: "desk", DependsOn: []string{"badge"}, Executor: "facilities"},
	)

	badge := testutil.NewScriptedExecutor()
	badge.Script("emp-1", testutil.Outcome{Err: &ExecutorError{Op: "badge", Transient: false, Err: errors.New("rejected")}})
	facilities := testutil.NewScriptedExecutor()

	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"badge": badge, "facilities": facilities})

	sum, err := orch.Process(context.Background(), testTrigger("emp-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Blocked)
	assert.Zero(t, facilities.CallCount("emp-1"), "dependent must not run")

	run, err := st.Run(context.Background(), "emp-1", "desk")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusPending, run.Status)
}

func TestSkippedDependencySatisfiesDependent(t *testing.T) {
	reg := newTestRegistry(t,
		registry.ActionDefinition{ID: "badge", Executor: "badge"},
		registry.ActionDefinition{ID: "desk", DependsOn: []string{"badge"}, Executor: "facilities"},
	)

	badge := testutil.NewScriptedExecutor()
	facilities := testutil.NewScriptedExecutor()
	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"badge": badge, "facilities": facilities})

	ctx := context.Background()

	// Skip badge before any processing, as an operator cancellation would.
	_, err := st.RecordEvent(ctx, testTrigger("emp-1").Event)
	require.NoError(t, err)
	_, err = st.GetOrCreateRun(ctx, "emp-1", "badge")
	require.NoError(t, err)
	_, err = st.Transition(ctx, "emp-1", "badge", hire.StatusPending, hire.StatusSkipped, store.TransitionMeta{Reason: "manual"})
	require.NoError(t, err)

	sum, err := orch.Process(ctx, testTrigger("emp-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Succeeded)
	assert.Zero(t, badge.CallCount("emp-1"))
	assert.Equal(t, 1, facilities.CallCount("emp-1"))
}

func TestRetryUntilSuccess(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	exec := testutil.NewScriptedExecutor()
	exec.Script("emp-1",
		testutil.Outcome{Err: errors.New("smtp 500")},
		testutil.Outcome{Err: errors.New("smtp 500")},
		testutil.Outcome{Token: "msg-1"},
	)

	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"email": exec}, WithMaxAttempts(3))

	ctx := context.Background()
	orch.Enqueue(testTrigger("emp-1"))
	sum, err := orch.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 2, sum.Retried)

	run, err := st.Run(ctx, "emp-1", "welcome_email")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusSucceeded, run.Status)
	assert.Equal(t, 3, run.AttemptCount)
	assert.Equal(t, "msg-1", run.ResultToken)
	assert.Empty(t, run.FailureReason)
}

func TestAttemptCapMarksIntervention(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "badge", Executor: "badge"})

	exec := testutil.NewScriptedExecutor()
	exec.Script("emp-1", testutil.Outcome{Err: errors.New("ldap timeout")})

	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"badge": exec}, WithMaxAttempts(3))

	ctx := context.Background()
	orch.Enqueue(testTrigger("emp-1"))
	_, err := orch.Drain(ctx)
	require.NoError(t, err)

	run, err := st.Run(ctx, "emp-1", "badge")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusFailed, run.Status)
	assert.Equal(t, 3, run.AttemptCount)
	assert.True(t, run.Terminal)

	// A later redelivery must not resurrect the run.
	sum, err := orch.Process(ctx, testTrigger("emp-1"))
	require.NoError(t, err)
	assert.Zero(t, sum.Claimed)
	assert.Equal(t, 1, sum.Settled)
	assert.Equal(t, 3, exec.CallCount("emp-1"))

	trail, err := st.Trail(ctx, "emp-1")
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, audit.StatusRequiresIntervention, trail[len(trail)-1].Status)
}

func TestTerminalFailureSkipsRetries(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	exec := testutil.NewScriptedExecutor()
	exec.Script("emp-1", testutil.Outcome{Err: &ExecutorError{Op: "email.send", Transient: false, Err: errors.New("mailbox rejected")}})

	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"email": exec}, WithMaxAttempts(5))

	ctx := context.Background()
	orch.Enqueue(testTrigger("emp-1"))
	sum, err := orch.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, sum.Retried)
	assert.Equal(t, 1, exec.CallCount("emp-1"))

	run, err := st.Run(ctx, "emp-1", "welcome_email")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusFailed, run.Status)
	assert.Equal(t, 1, run.AttemptCount)
	assert.True(t, run.Terminal, "non-retryable failure must be recorded terminal")
}

func TestTerminalFailureSurvivesRedelivery(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	exec := testutil.NewScriptedExecutor()
	exec.Script("emp-1", testutil.Outcome{Err: &ExecutorError{Op: "email.send", Transient: false, Err: errors.New("mailbox rejected")}})

	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"email": exec}, WithMaxAttempts(5))

	ctx := context.Background()
	_, err := orch.Process(ctx, testTrigger("emp-1"))
	require.NoError(t, err)
	require.Equal(t, 1, exec.CallCount("emp-1"))

	// A later redelivery must not resurrect the run, even though attempts
	// remain under the cap.
	sum, err := orch.Process(ctx, testTrigger("emp-1"))
	require.NoError(t, err)
	assert.Zero(t, sum.Claimed)
	assert.Equal(t, 1, sum.Settled)
	assert.Equal(t, 1, exec.CallCount("emp-1"), "executor must not re-fire after a terminal failure")

	run, err := st.Run(ctx, "emp-1", "welcome_email")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusFailed, run.Status)
	assert.Equal(t, 1, run.AttemptCount)
	assert.True(t, run.RequiresIntervention())
}

func TestCancelSkipsNonTerminalRuns(t *testing.T) {
	reg := newTestRegistry(t,
		registry.ActionDefinition{ID: "badge", Executor: "badge"},
		registry.ActionDefinition{ID: "desk", DependsOn: []string{"badge"}, Executor: "facilities"},
	)

	badge := testutil.NewScriptedExecutor()
	badge.Script("emp-1", testutil.Outcome{Err: &ExecutorError{Op: "badge", Transient: false, Err: errors.New("rejected")}})

	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"badge": badge, "facilities": testutil.NewScriptedExecutor()})

	ctx := context.Background()
	_, err := orch.Process(ctx, testTrigger("emp-1"))
	require.NoError(t, err)

	// badge failed terminally; only the pending desk run is cancellable.
	cancelled, err := orch.Cancel(ctx, "emp-1", "offer rescinded")
	require.NoError(t, err)
	assert.Equal(t, []string{"desk"}, cancelled)

	run, err := st.Run(ctx, "emp-1", "badge")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusFailed, run.Status, "terminal failure must keep its record")
	assert.True(t, run.Terminal)

	run, err = st.Run(ctx, "emp-1", "desk")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusSkipped, run.Status)
	assert.Equal(t, "offer rescinded", run.FailureReason)
}

func TestConcurrentWorkersClaimEachRunOnce(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	exec := testutil.NewScriptedExecutor()
	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"email": exec})

	// Many goroutines process the same delivery; CAS must let exactly one
	// executor call through.
	ctx := context.Background()
	trig := testTrigger("emp-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Process(ctx, trig)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, exec.CallCount("emp-1"))

	run, err := st.Run(ctx, "emp-1", "welcome_email")
	require.NoError(t, err)
	assert.Equal(t, hire.StatusSucceeded, run.Status)
	assert.Equal(t, 1, run.AttemptCount)
}

func TestRunProcessesEnqueuedTriggers(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	exec := testutil.NewScriptedExecutor()
	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"email": exec}, WithWorkers(2))

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	orch.Enqueue(testTrigger("emp-1"))
	orch.Enqueue(testTrigger("emp-2"))

	require.Eventually(t, func() bool {
		return exec.CallCount("emp-1") == 1 && exec.CallCount("emp-2") == 1
	}, 5*time.Second, 10*time.Millisecond)

	orch.Stop()
	require.NoError(t, <-done)

	for _, id := range []string{"emp-1", "emp-2"} {
		run, err := st.Run(ctx, id, "welcome_email")
		require.NoError(t, err)
		assert.Equal(t, hire.StatusSucceeded, run.Status)
	}
}

func TestRedeliveryKeepsFirstDetectedAttributes(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})

	exec := testutil.NewScriptedExecutor()
	orch, st := newTestOrchestrator(t, reg, ExecutorSet{"email": exec})

	ctx := context.Background()

	fingerprinted := func(attrs map[string]string) Trigger {
		fp, err := hire.Fingerprint(attrs)
		require.NoError(t, err)
		return Trigger{
			Event: hire.Event{
				HireID:      "emp-1",
				DetectedAt:  testEpoch,
				Attributes:  attrs,
				Fingerprint: fp,
			},
			Token: "trigger-test",
		}
	}

	first := fingerprinted(map[string]string{"name": "Ada", "department": "Engineering"})
	_, err := orch.Process(ctx, first)
	require.NoError(t, err)

	// The source row changed before redelivery. The recorded event keeps
	// the original attributes and the run is not re-executed.
	changed := fingerprinted(map[string]string{"name": "Ada", "department": "Research"})
	sum, err := orch.Process(ctx, changed)
	require.NoError(t, err)
	assert.Zero(t, sum.Claimed)
	assert.Equal(t, 1, exec.CallCount("emp-1"))

	stored, err := st.ReadEvent(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, first.Event.Fingerprint, stored.Fingerprint)
	assert.Equal(t, "Engineering", stored.Attributes["department"])
}

func TestProcessRejectsInvalidEvent(t *testing.T) {
	reg := newTestRegistry(t, registry.ActionDefinition{ID: "welcome_email", Executor: "email"})
	orch, _ := newTestOrchestrator(t, reg, ExecutorSet{"email": testutil.NewScriptedExecutor()})

	_, err := orch.Process(context.Background(), Trigger{Event: hire.Event{}, Token: "t"})
	require.Error(t, err)
}
