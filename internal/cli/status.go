package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MalakaSupun/startmate/internal/hire"
	"github.com/MalakaSupun/startmate/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// runStatus is the JSON shape of a single checklist entry.
type runStatus struct {
	ActionID      string `json:"action_id"`
	Status        string `json:"status"`
	AttemptCount  int    `json:"attempt_count"`
	LastAttemptAt string `json:"last_attempt_at,omitempty"`
	ResultToken   string `json:"result_token,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	Terminal      bool   `json:"terminal,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <hire-id>",
		Short: "Show the onboarding checklist for a hire",
		Args:  cobra.ExactArgs(1),
		Example: `  startmate status emp-1042 --db ./onboarding.db
  startmate status emp-1042 --db ./onboarding.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCmd(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatusCmd(opts *StatusOptions, cmd *cobra.Command, hireID string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, err := st.RunsForHire(ctx, hireID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read runs", err)
	}
	if len(runs) == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("no onboarding runs for hire %q", hireID))
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		}
		out := make([]runStatus, 0, len(runs))
		for _, r := range runs {
			rs := runStatus{
				ActionID:      r.ActionID,
				Status:        string(r.Status),
				AttemptCount:  r.AttemptCount,
				ResultToken:   r.ResultToken,
				FailureReason: r.FailureReason,
				Terminal:      r.Terminal,
			}
			if r.LastAttemptAt != nil {
				rs.LastAttemptAt = r.LastAttemptAt.UTC().Format(time.RFC3339)
			}
			out = append(out, rs)
		}
		return formatter.Success(map[string]any{"hire_id": hireID, "runs": out})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Onboarding checklist for %s\n\n", hireID)
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tSTATUS\tATTEMPTS\tLAST ATTEMPT\tDETAIL")
	for _, r := range runs {
		last := "-"
		if r.LastAttemptAt != nil {
			last = r.LastAttemptAt.UTC().Format(time.RFC3339)
		}
		detail := runDetail(r)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ActionID, statusGlyph(r), r.AttemptCount, last, detail)
	}
	return tw.Flush()
}

func statusGlyph(r hire.ActionRun) string {
	switch r.Status {
	case hire.StatusSucceeded:
		return "✓ succeeded"
	case hire.StatusFailed:
		if r.Terminal {
			return "✗ needs intervention"
		}
		return "✗ failed"
	case hire.StatusSkipped:
		return "- skipped"
	case hire.StatusInProgress:
		return "… in progress"
	default:
		return "· pending"
	}
}

func runDetail(r hire.ActionRun) string {
	switch {
	case r.FailureReason != "":
		return r.FailureReason
	case r.ResultToken != "":
		return r.ResultToken
	default:
		return "-"
	}
}
