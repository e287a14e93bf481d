package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/oddsync/internal/reconcile"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Announce bool
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Parse records from text and store them",
		Long: `Parse round outcome records from a file (or stdin with "-"), store them
and announce them to other oddsync processes on the channel.

One record per line: a value with an optional trailing "x" and an optional
HH:MM time ("1.85x 14:32", "2.10 09:05", "3x"). Lines starting with # or //
are comments. Malformed lines are reported and skipped.

Example:
  oddsync ingest rounds.txt
  pbpaste | oddsync ingest - --announce=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Announce, "announce", true, "publish the ingested records to peers")

	return cmd
}

func runIngest(opts *IngestOptions, input string, cmd *cobra.Command) error {
	text, err := readInput(input, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	a, err := openApp(opts.RootOptions, appConfig{withBus: opts.Announce, announce: opts.Announce})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			opts.Logger.Error("error closing", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if opts.Announce {
		a.connect(ctx)
	}

	res, err := a.rec.Ingest(ctx, text)
	if err != nil {
		return operationError("ingest failed", err)
	}

	return opts.formatter(cmd).Success(ingestSummary{res})
}

type ingestSummary struct {
	reconcile.IngestResult
}

func (s ingestSummary) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "ingested %d records from %d lines (%d rejected)\n", len(s.Records), s.TotalLines, s.ParseErrors)
	fmt.Fprintf(w, "saved %d, failed %d\n", s.Saved, s.SaveErrors)
	for _, r := range s.Rejected {
		fmt.Fprintf(w, "rejected line %d: %s\n", r.Line, r.Text)
	}
	return nil
}
