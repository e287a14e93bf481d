package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewProbeCommand creates the probe command.
func NewProbeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether other processes are listening on the channel",
		Long: `Publish a ping and wait one second for a pong from another process.
Exits with status 1 when nobody answers.

Example:
  oddsync probe --channel odds-sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(opts, cmd)
		},
	}
	return cmd
}

func runProbe(opts *RootOptions, cmd *cobra.Command) error {
	b := newBus(opts)
	if err := b.Connect(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "failed to join bus", err)
	}
	defer b.Close()

	res := probeResult{Channel: b.Channel(), Peers: b.CheckOtherTabs(cmd.Context())}
	if err := opts.formatter(cmd).Success(res); err != nil {
		return err
	}
	if !res.Peers {
		return NewExitError(ExitFailure, "no other process answered")
	}
	return nil
}

type probeResult struct {
	Channel string `json:"channel"`
	Peers   bool   `json:"peers"`
}

func (r probeResult) RenderText(w io.Writer) error {
	answer := "no other process answered"
	if r.Peers {
		answer = "other processes are listening"
	}
	_, err := fmt.Fprintf(w, "channel %s: %s\n", r.Channel, answer)
	return err
}
