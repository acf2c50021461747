package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MalakaSupun/startmate/internal/audit"
	"github.com/MalakaSupun/startmate/internal/orchestrator"
	"github.com/MalakaSupun/startmate/internal/plan"
	"github.com/MalakaSupun/startmate/internal/source"
	"github.com/MalakaSupun/startmate/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	PlanDir  string
	Feed     string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the onboarding processor daemon",
		Long: `Start the onboarding processor: poll the feed on the plan's interval,
enqueue new-hire events, and drive their actions through the worker pool.

The database is created if it doesn't exist. Processing is idempotent, so
restarting the daemon, or running several against the same database, is safe.

Example:
  startmate run --db ./onboarding.db --plan ./plan --feed ./hires.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.PlanDir, "plan", "", "path to CUE plan directory (required)")
	cmd.Flags().StringVar(&opts.Feed, "feed", "", "path to CSV feed file (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("feed")

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	env, err := buildEnvironment(opts.Database, opts.PlanDir, opts.Feed)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer env.close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go pollLoop(ctx, env.adapter, env.orch, env.plan.Settings.PollInterval)

	fmt.Fprintln(cmd.OutOrStdout(), "Processor started. Polling feed...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := env.orch.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "processor error", err)
	}

	slog.Info("processor stopped gracefully")
	return nil
}

// pollLoop polls the feed on the configured interval and enqueues a trigger
// per event. The first poll happens immediately.
func pollLoop(ctx context.Context, adapter source.Adapter, orch *orchestrator.Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pollOnce(ctx, adapter, orch)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce runs one poll cycle and logs its workflow metrics.
func pollOnce(ctx context.Context, adapter source.Adapter, orch *orchestrator.Orchestrator) {
	events, err := adapter.Poll(ctx)
	if err != nil {
		// Feed trouble is transient by assumption; the next cycle retries.
		slog.Error("poll failed", "error", err)
		return
	}

	queued := 0
	for _, ev := range events {
		if orch.Enqueue(orch.NewTrigger(ev)) {
			queued++
		}
	}

	slog.Info("poll cycle complete",
		"events", len(events),
		"queued", queued,
		"backlog", orch.QueueLen(),
	)
}

// environment bundles everything a processing command needs.
type environment struct {
	st      *store.Store
	plan    *plan.Plan
	orch    *orchestrator.Orchestrator
	adapter source.Adapter
}

func (e *environment) close() {
	if err := e.st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// buildEnvironment loads the plan, opens the store, and wires the
// orchestrator with stub executors for every capability the plan names.
func buildEnvironment(dbPath, planDir, feedPath string) (*environment, error) {
	slog.Info("loading plan", "dir", planDir)
	p, err := plan.Load(planDir)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}

	reg, err := p.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	slog.Info("plan loaded", "actions", len(p.Actions))

	slog.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	orch, err := orchestrator.New(st, reg, stubExecutors(p), audit.NewNotifier(st),
		orchestrator.WithWorkers(p.Settings.Workers),
		orchestrator.WithMaxAttempts(p.Settings.MaxAttempts),
		orchestrator.WithBackoff(p.Settings.BackoffBase, p.Settings.BackoffCap),
		orchestrator.WithExecutorTimeout(p.Settings.ExecutorTimeout),
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	adapter, err := source.NewCSVAdapter(source.CSVConfig{
		Path:               feedPath,
		HireIDColumn:       p.Feed.HireIDColumn,
		StartDateAttribute: p.Feed.StartDateColumn,
		StartWindow:        time.Duration(p.Feed.StartWindowDays) * 24 * time.Hour,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build feed adapter: %w", err)
	}

	return &environment{st: st, plan: p, orch: orch, adapter: adapter}, nil
}

// configureLogging switches slog between info and debug.
func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
