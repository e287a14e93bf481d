package cli

import (
	"github.com/spf13/cobra"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Yes bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear --yes",
		Short: "Delete every stored record",
		Long: `Delete every record from the store and forget the last loaded snapshot.
Record ids are not reused afterwards. Clearing an empty store succeeds.

Example:
  oddsync clear --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deletion")

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to clear without --yes")
	}

	a, err := openApp(opts.RootOptions, appConfig{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			opts.Logger.Error("error closing", "error", closeErr)
		}
	}()

	if err := a.rec.ClearAll(cmd.Context()); err != nil {
		return operationError("clear failed", err)
	}
	return opts.formatter(cmd).Success("store cleared")
}
