package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MalakaSupun/startmate/internal/plan"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	PlanDir string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a plan and print the resolved action order",
		Long: `Validate a CUE plan directory without touching the database.

Checks action definitions for duplicates, dangling dependencies and
cycles, and prints the order actions run in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PlanDir, "plan", "", "path to CUE plan directory (required)")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	p, err := plan.Load(opts.PlanDir)
	if err != nil {
		return WrapExitError(ExitFailure, "plan validation failed", err)
	}

	reg, err := p.Registry()
	if err != nil {
		return WrapExitError(ExitFailure, "plan validation failed", err)
	}

	order, err := reg.ResolveOrder()
	if err != nil {
		return WrapExitError(ExitFailure, "plan validation failed", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		}
		return formatter.Success(map[string]any{
			"actions":   reg.Len(),
			"order":     order,
			"executors": p.ExecutorNames(),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Plan OK: %d action(s)\n", reg.Len())
	fmt.Fprintf(cmd.OutOrStdout(), "Resolved order: %s\n", strings.Join(order, " -> "))
	return nil
}
