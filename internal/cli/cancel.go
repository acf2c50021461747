package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MalakaSupun/startmate/internal/audit"
	"github.com/MalakaSupun/startmate/internal/hire"
	"github.com/MalakaSupun/startmate/internal/store"
)

// CancelOptions holds flags for the cancel command.
type CancelOptions struct {
	*RootOptions
	Database string
	Reason   string
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CancelOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cancel <hire-id>",
		Short: "Cancel onboarding for a hire",
		Long: `Cancel onboarding for a hire, for example a rescinded offer.

Every action that has not already succeeded or been skipped is marked
skipped. Late results from actions still executing are discarded.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "cancelled", "reason recorded on skipped actions")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runCancel(opts *CancelOptions, cmd *cobra.Command, hireID string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	skipped, err := st.CancelHire(ctx, hireID, opts.Reason)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("failed to cancel hire %q", hireID), err)
	}

	notifier := audit.NewNotifier(st)
	for _, actionID := range skipped {
		notifier.Record(ctx, hireID, actionID, hire.StatusSkipped, opts.Reason, "")
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		}
		return formatter.Success(map[string]any{"hire_id": hireID, "skipped": skipped})
	}

	if len(skipped) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Nothing to cancel for %s: all actions already settled\n", hireID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s: skipped %s\n", hireID, strings.Join(skipped, ", "))
	return nil
}
