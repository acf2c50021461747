package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MalakaSupun/startmate/internal/audit"
	"github.com/MalakaSupun/startmate/internal/hire"
	"github.com/MalakaSupun/startmate/internal/registry"
	"github.com/MalakaSupun/startmate/internal/store"
)

// Defaults applied when no option overrides them.
const (
	DefaultWorkers         = 4
	DefaultMaxAttempts     = 3
	DefaultBackoffBase     = 500 * time.Millisecond
	DefaultBackoffCap      = 30 * time.Second
	DefaultExecutorTimeout = 10 * time.Second
)

// Orchestrator drives onboarding actions for incoming events.
//
// Construction validates the action graph and executor wiring; both are
// immutable afterwards. All state mutations go through the store, all
// external calls go through executors.
type Orchestrator struct {
	st       *store.Store
	reg      *registry.Registry
	order    []string // resolved dependency order, fixed at construction
	execs    ExecutorSet
	notifier *audit.Notifier
	tokens   TokenGenerator
	queue    *triggerQueue

	workers     int
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	execTimeout time.Duration

	schedule scheduleFunc
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the number of concurrent workers started by Run.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMaxAttempts sets the per-run attempt cap.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the retry backoff base delay and cap.
func WithBackoff(base, cap time.Duration) Option {
	return func(o *Orchestrator) {
		o.backoffBase = base
		o.backoffCap = cap
	}
}

// WithExecutorTimeout bounds each executor call.
func WithExecutorTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.execTimeout = d
		}
	}
}

// WithTokenGenerator overrides the trigger token generator (for tests).
func WithTokenGenerator(g TokenGenerator) Option {
	return func(o *Orchestrator) {
		o.tokens = g
	}
}

// WithScheduler overrides retry scheduling (for tests).
func WithScheduler(s scheduleFunc) Option {
	return func(o *Orchestrator) {
		o.schedule = s
	}
}

// WithClock overrides the wall clock used for attempt stamps (for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator.
//
// Fails with a ConfigurationError if the registry's dependency graph does
// not resolve (duplicate, dangling, or cyclic definitions) or if any action
// names an executor the set does not provide. A process with a broken plan
// must refuse to start.
func New(st *store.Store, reg *registry.Registry, execs ExecutorSet, notifier *audit.Notifier, opts ...Option) (*Orchestrator, error) {
	order, err := reg.ResolveOrder()
	if err != nil {
		return nil, err
	}

	for _, actionID := range order {
		def, _ := reg.Definition(actionID)
		if _, ok := execs.Resolve(def.Executor); !ok {
			return nil, &registry.ConfigurationError{
				Reason:   registry.ReasonInvalidDefinition,
				ActionID: actionID,
				Message:  fmt.Sprintf("action %q: no executor registered under %q", actionID, def.Executor),
			}
		}
	}

	o := &Orchestrator{
		st:          st,
		reg:         reg,
		order:       order,
		execs:       execs,
		notifier:    notifier,
		tokens:      UUIDv7Generator{},
		queue:       newTriggerQueue(),
		workers:     DefaultWorkers,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		backoffCap:  DefaultBackoffCap,
		execTimeout: DefaultExecutorTimeout,
		schedule:    afterFuncSchedule,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Order returns the resolved processing order of action IDs.
func (o *Orchestrator) Order() []string {
	return append([]string(nil), o.order...)
}

// NewTrigger wraps an event in a trigger with a fresh correlation token.
func (o *Orchestrator) NewTrigger(ev hire.Event) Trigger {
	return Trigger{Event: ev, Token: o.tokens.Generate()}
}

// Enqueue submits a trigger for processing by the worker pool.
// Thread-safe. Returns false if the orchestrator has been stopped.
func (o *Orchestrator) Enqueue(t Trigger) bool {
	return o.queue.Enqueue(t)
}

// QueueLen returns the number of pending triggers.
func (o *Orchestrator) QueueLen() int {
	return o.queue.Len()
}

// Run starts the worker pool and blocks until ctx is cancelled or Stop is
// called. Workers share the trigger queue; per-run mutual exclusion comes
// entirely from store CAS claims, so any worker may pick up any trigger.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("orchestrator starting", "workers", o.workers, "actions", len(o.order))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			o.workLoop(ctx, worker)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		o.queue.Close()
		<-done
		slog.Info("orchestrator stopped", "cause", "context cancelled")
		return ctx.Err()
	case <-done:
		// Stop() closed the queue and the workers drained it.
		slog.Info("orchestrator stopped", "cause", "queue closed")
		return nil
	}
}

// Stop closes the trigger queue, draining the worker pool.
func (o *Orchestrator) Stop() {
	o.queue.Close()
}

// Drain processes queued triggers on the calling goroutine until the queue
// is empty, then returns the accumulated summary. With an immediate
// scheduler this runs retries to completion in one call, which is what
// one-shot processing and the scenario harness want.
func (o *Orchestrator) Drain(ctx context.Context) (Summary, error) {
	var total Summary
	for {
		trig, ok := o.queue.TryDequeue()
		if !ok {
			return total, nil
		}
		sum, err := o.Process(ctx, trig)
		total.Claimed += sum.Claimed
		total.Succeeded += sum.Succeeded
		total.Failed += sum.Failed
		total.Retried += sum.Retried
		total.Blocked += sum.Blocked
		total.Conflicts += sum.Conflicts
		total.Settled += sum.Settled
		if err != nil {
			return total, err
		}
	}
}

// workLoop is one worker: dequeue, process, repeat.
//
// Processing failures are logged and dropped. The event stays unmarked in
// no way that matters: runs keep their committed statuses and the next
// poll cycle re-triggers the hire, so nothing is lost by moving on.
func (o *Orchestrator) workLoop(ctx context.Context, worker int) {
	for {
		trig, ok := o.queue.TryDequeue()
		if ok {
			if _, err := o.Process(ctx, trig); err != nil {
				slog.Error("trigger processing failed",
					"error", err,
					"worker", worker,
					"hire_id", trig.Event.HireID,
					"trigger_token", trig.Token,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-o.queue.Wait():
			if o.queue.Closed() && o.queue.Len() == 0 {
				// Queue closed and drained.
				return
			}
		}
	}
}

// Summary counts what one Process pass did, for logs and tests.
type Summary struct {
	Claimed   int // runs claimed to InProgress by this pass
	Succeeded int // runs transitioned to Succeeded
	Failed    int // runs transitioned to Failed
	Retried   int // retries scheduled
	Blocked   int // runs left Pending on unmet dependencies
	Conflicts int // CAS claims lost to another worker
	Settled   int // runs already terminal before this pass
}

// Process runs one pass over the action graph for an event.
//
// For each action in dependency order:
//  1. fetch or create the (hire, action) run
//  2. settled runs are idempotent no-ops
//  3. unmet dependencies leave the run Pending for a later trigger
//  4. claim Pending/Failed -> InProgress by CAS; losing the claim means
//     another worker owns the run, skip it
//  5. invoke the executor under the configured timeout
//  6. record the outcome by CAS, schedule a backoff retry if attempts
//     remain, or mark the failure terminal (cap exhausted or non-retryable
//     error) and flag the run for intervention
//
// An error return means the store was unreachable for some operation; the
// event is not marked processed and the next trigger retries it.
func (o *Orchestrator) Process(ctx context.Context, trig Trigger) (Summary, error) {
	var sum Summary

	ev := trig.Event
	if err := ev.Validate(); err != nil {
		return sum, fmt.Errorf("process: %w", err)
	}

	// Idempotent: re-detections of the same hire do not rewrite the event.
	inserted, err := o.st.RecordEvent(ctx, ev)
	if err != nil {
		return sum, fmt.Errorf("process %s: %w", ev.HireID, err)
	}
	if !inserted && ev.Fingerprint != "" {
		stored, err := o.st.ReadEvent(ctx, ev.HireID)
		if err != nil {
			return sum, fmt.Errorf("process %s: %w", ev.HireID, err)
		}
		if stored.Fingerprint != ev.Fingerprint {
			// The source row changed after first detection. The recorded
			// event keeps the original attributes; flag the drift so an
			// operator can re-onboard deliberately.
			slog.Warn("hire attributes changed since first detection",
				"hire_id", ev.HireID,
				"recorded_fingerprint", stored.Fingerprint,
				"seen_fingerprint", ev.Fingerprint,
			)
		}
	}

	// Statuses seen or produced during this pass, keyed by action ID.
	// Dependency checks read from here; topological order guarantees a
	// dependency is visited before its dependents.
	statuses := make(map[string]hire.Status, len(o.order))

	for _, actionID := range o.order {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("process %s: %w", ev.HireID, err)
		}

		run, err := o.st.GetOrCreateRun(ctx, ev.HireID, actionID)
		if err != nil {
			return sum, fmt.Errorf("process %s: %w", ev.HireID, err)
		}
		statuses[actionID] = run.Status

		if run.Status.Settled() {
			sum.Settled++
			continue
		}
		if run.Status == hire.StatusInProgress {
			// Another worker owns this run right now.
			sum.Conflicts++
			continue
		}
		if run.Status == hire.StatusFailed && (run.Terminal || run.AttemptCount >= o.maxAttempts) {
			// Terminal failure awaiting manual remediation.
			sum.Settled++
			continue
		}

		def, _ := o.reg.Definition(actionID)
		if !o.depsSatisfied(def, statuses) {
			sum.Blocked++
			slog.Debug("action blocked on dependencies",
				"hire_id", ev.HireID,
				"action_id", actionID,
				"depends_on", def.DependsOn,
			)
			continue
		}

		claimed, err := o.st.Transition(ctx, ev.HireID, actionID, run.Status, hire.StatusInProgress,
			store.TransitionMeta{AttemptAt: o.now().UTC()})
		if err != nil {
			if store.IsConflict(err) {
				// Lost the claim: exactly one concurrent worker wins.
				sum.Conflicts++
				slog.Debug("claim lost",
					"hire_id", ev.HireID,
					"action_id", actionID,
				)
				continue
			}
			return sum, fmt.Errorf("process %s: %w", ev.HireID, err)
		}
		sum.Claimed++
		statuses[actionID] = hire.StatusInProgress
		o.notifier.Record(ctx, ev.HireID, actionID, hire.StatusInProgress, "", trig.Token)

		outcome, err := o.executeAction(ctx, trig, def, claimed)
		if err != nil {
			return sum, fmt.Errorf("process %s: %w", ev.HireID, err)
		}
		statuses[actionID] = outcome.status
		sum.add(outcome)
	}

	slog.Debug("event pass complete",
		"hire_id", ev.HireID,
		"trigger_token", trig.Token,
		"claimed", sum.Claimed,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"blocked", sum.Blocked,
	)
	return sum, nil
}

// depsSatisfied reports whether every dependency of def is Succeeded or
// Skipped according to the statuses gathered this pass.
func (o *Orchestrator) depsSatisfied(def registry.ActionDefinition, statuses map[string]hire.Status) bool {
	for _, dep := range def.DependsOn {
		if !statuses[dep].Satisfies() {
			return false
		}
	}
	return true
}

// actionOutcome is the result of one claimed execution.
type actionOutcome struct {
	status    hire.Status
	succeeded bool
	failed    bool
	retried   bool
}

func (s *Summary) add(out actionOutcome) {
	if out.succeeded {
		s.Succeeded++
	}
	if out.failed {
		s.Failed++
	}
	if out.retried {
		s.Retried++
	}
}

// executeAction invokes the executor for a claimed run and records the
// outcome. Returns an error only for store failures; executor failures are
// absorbed into the run's Failed state.
func (o *Orchestrator) executeAction(ctx context.Context, trig Trigger, def registry.ActionDefinition, run hire.ActionRun) (actionOutcome, error) {
	exec, _ := o.execs.Resolve(def.Executor)

	execCtx, cancel := context.WithTimeout(ctx, o.execTimeout)
	token, execErr := exec.Execute(execCtx, run.HireID, trig.Event.Attributes)
	cancel()

	if execErr == nil {
		updated, err := o.st.Transition(ctx, run.HireID, run.ActionID, hire.StatusInProgress, hire.StatusSucceeded,
			store.TransitionMeta{ResultToken: token})
		if err != nil {
			if store.IsConflict(err) {
				// The run went terminal under us (cancellation). The
				// executor result is discarded on purpose.
				slog.Debug("late success discarded",
					"hire_id", run.HireID,
					"action_id", run.ActionID,
				)
				return actionOutcome{status: hire.StatusSkipped}, nil
			}
			return actionOutcome{}, err
		}
		o.notifier.Record(ctx, run.HireID, run.ActionID, hire.StatusSucceeded, "", trig.Token)
		slog.Info("action succeeded",
			"hire_id", run.HireID,
			"action_id", run.ActionID,
			"attempt", updated.AttemptCount,
		)
		return actionOutcome{status: hire.StatusSucceeded, succeeded: true}, nil
	}

	reason := execErr.Error()
	// run.AttemptCount already counts this attempt (incremented at claim),
	// so terminality is known here and commits atomically with the failure.
	terminal := !retryable(execErr) || run.AttemptCount >= o.maxAttempts
	updated, err := o.st.Transition(ctx, run.HireID, run.ActionID, hire.StatusInProgress, hire.StatusFailed,
		store.TransitionMeta{Reason: reason, Terminal: terminal})
	if err != nil {
		if store.IsConflict(err) {
			slog.Debug("late failure discarded",
				"hire_id", run.HireID,
				"action_id", run.ActionID,
			)
			return actionOutcome{status: hire.StatusSkipped}, nil
		}
		return actionOutcome{}, err
	}
	o.notifier.Record(ctx, run.HireID, run.ActionID, hire.StatusFailed, reason, trig.Token)

	out := actionOutcome{status: hire.StatusFailed, failed: true}

	if terminal {
		o.notifier.RecordIntervention(ctx, run.HireID, run.ActionID, reason, trig.Token)
		slog.Error("action requires intervention",
			"hire_id", run.HireID,
			"action_id", run.ActionID,
			"attempts", updated.AttemptCount,
			"reason", reason,
		)
		return out, nil
	}

	delay := backoffDelay(o.backoffBase, o.backoffCap, updated.AttemptCount)
	out.retried = true
	slog.Warn("action failed, retry scheduled",
		"hire_id", run.HireID,
		"action_id", run.ActionID,
		"attempt", updated.AttemptCount,
		"delay", delay,
		"reason", reason,
	)
	retry := Trigger{Event: trig.Event, Token: trig.Token}
	o.schedule(delay, func() {
		o.queue.Enqueue(retry)
	})
	return out, nil
}

// Cancel skips every non-terminal run for a hire. Terminal failures keep
// their record; in-flight executor calls are not interrupted and their late
// results lose the CAS and are discarded.
func (o *Orchestrator) Cancel(ctx context.Context, hireID, reason string) ([]string, error) {
	cancelled, err := o.st.CancelHire(ctx, hireID, reason)
	if err != nil {
		return nil, err
	}
	for _, actionID := range cancelled {
		o.notifier.Record(ctx, hireID, actionID, hire.StatusSkipped, reason, "")
	}
	if len(cancelled) > 0 {
		slog.Info("hire cancelled", "hire_id", hireID, "actions", len(cancelled))
	}
	return cancelled, nil
}
