package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MalakaSupun/startmate/internal/store"
)

// TrailOptions holds flags for the trail command.
type TrailOptions struct {
	*RootOptions
	Database string
}

// trailEntry is the JSON shape of one audit record.
type trailEntry struct {
	ID           int64  `json:"id"`
	ActionID     string `json:"action_id,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	TriggerToken string `json:"trigger_token,omitempty"`
	RecordedAt   string `json:"recorded_at"`
}

// NewTrailCommand creates the trail command.
func NewTrailCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrailOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trail <hire-id>",
		Short: "Show the audit trail for a hire",
		Long: `Show the append-only audit trail for a hire in recorded order.

Each line is one status transition, tagged with the trigger token of
the event delivery that caused it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrail(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrail(opts *TrailOptions, cmd *cobra.Command, hireID string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	entries, err := st.Trail(ctx, hireID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit trail", err)
	}
	if len(entries) == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("no audit entries for hire %q", hireID))
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		}
		out := make([]trailEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, trailEntry{
				ID:           e.ID,
				ActionID:     e.ActionID,
				Status:       e.Status,
				Reason:       e.Reason,
				TriggerToken: e.TriggerToken,
				RecordedAt:   e.RecordedAt.UTC().Format(time.RFC3339),
			})
		}
		return formatter.Success(map[string]any{"hire_id": hireID, "entries": out})
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tACTION\tSTATUS\tREASON\tTRIGGER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.RecordedAt.UTC().Format(time.RFC3339),
			orDash(e.ActionID), e.Status, orDash(e.Reason), orDash(e.TriggerToken))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
