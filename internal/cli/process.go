package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	Database string
	PlanDir  string
	Feed     string
}

// processSummary is the JSON payload of a one-shot run.
type processSummary struct {
	Events    int `json:"events"`
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`
	Settled   int `json:"settled"`
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Poll the feed once and process all events synchronously",
		Long: `Poll the feed once and run a single processing pass per event.

Failed actions under the attempt cap stay re-claimable: running process
again performs the retries. Useful for cron-style operation where no
daemon should linger.

Example:
  startmate process --db ./onboarding.db --plan ./plan --feed ./hires.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, cmd)
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

func runProcess(opts *ProcessOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	env, err := buildEnvironment(opts.Database, opts.PlanDir, opts.Feed)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer env.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	events, err := env.adapter.Poll(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "poll failed", err)
	}

	var total processSummary
	total.Events = len(events)

	for _, ev := range events {
		sum, err := env.orch.Process(ctx, env.orch.NewTrigger(ev))
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("processing %s", ev.HireID), err)
		}
		total.Claimed += sum.Claimed
		total.Succeeded += sum.Succeeded
		total.Failed += sum.Failed
		total.Blocked += sum.Blocked
		total.Settled += sum.Settled
	}

	if opts.Format == "json" {
		return formatter.Success(total)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d event(s): %d succeeded, %d failed, %d blocked, %d already settled\n",
		total.Events, total.Succeeded, total.Failed, total.Blocked, total.Settled)
	return nil
}
