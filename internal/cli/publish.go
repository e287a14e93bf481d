package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/oddsync/internal/parser"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Batch int
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <file|->",
		Short: "Broadcast parsed records to peers without storing them",
		Long: `Parse records like ingest does, but only broadcast them. Listening
processes merge them into their realtime view and store them.

Delivery is best effort: processes that are not listening miss the records.

Example:
  oddsync publish live.txt
  tail -n1 capture.log | oddsync publish -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Batch, "batch", 100, "records per batch (large batches span several messages)")

	return cmd
}

func runPublish(opts *PublishOptions, input string, cmd *cobra.Command) error {
	if opts.Batch <= 0 {
		return NewExitError(ExitCommandError, "--batch must be positive")
	}

	text, err := readInput(input, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	parsed := newParser(opts.RootOptions).Parse(text)
	if len(parsed.Records) == 0 {
		return NewExitError(ExitFailure, "no valid records")
	}

	b := newBus(opts.RootOptions)
	if err := b.Connect(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "failed to join bus", err)
	}
	defer b.Close()

	res := publishSummary{Rejected: parsed.Rejected}
	for start := 0; start < len(parsed.Records); start += opts.Batch {
		end := min(start+opts.Batch, len(parsed.Records))
		if !b.PublishRecords(parsed.Records[start:end]) {
			return WrapExitError(ExitFailure, "publish failed", fmt.Errorf("%d of %d records sent", res.Sent, len(parsed.Records)))
		}
		res.Sent += end - start
		res.Batches++
	}

	return opts.formatter(cmd).Success(res)
}

type publishSummary struct {
	Sent     int                `json:"sent"`
	Batches  int                `json:"batches"`
	Rejected []parser.Rejection `json:"rejected,omitempty"`
}

func (s publishSummary) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "published %d records (batches: %d)\n", s.Sent, s.Batches)
	for _, r := range s.Rejected {
		fmt.Fprintf(w, "rejected line %d: %s\n", r.Line, r.Text)
	}
	return nil
}
