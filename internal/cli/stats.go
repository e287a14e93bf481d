package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/oddsync/internal/reconcile"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Limit int
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored values",
		Long: `Load records from the store and print count, min, max, mean and median.

Example:
  oddsync stats
  oddsync stats --limit 200 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "use only the most recent N records (0 for all)")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, appConfig{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			opts.Logger.Error("error closing", "error", closeErr)
		}
	}()

	if _, err := a.rec.Hydrate(cmd.Context(), opts.Limit); err != nil {
		return operationError("failed to load records", err)
	}

	var res statsResult
	if s, ok := a.rec.BasicStats(); ok {
		res.Stats = &s
	}
	return opts.formatter(cmd).Success(res)
}

type statsResult struct {
	Stats *reconcile.Stats `json:"stats"`
}

func (r statsResult) RenderText(w io.Writer) error {
	if r.Stats == nil {
		_, err := fmt.Fprintln(w, "no records")
		return err
	}
	s := r.Stats
	fmt.Fprintf(w, "records:     %d\n", s.Count)
	fmt.Fprintf(w, "min:         %.2f\n", s.Min)
	fmt.Fprintf(w, "max:         %.2f\n", s.Max)
	fmt.Fprintf(w, "mean:        %.2f\n", s.Mean)
	fmt.Fprintf(w, "median:      %.2f\n", s.Median)
	_, err := fmt.Fprintf(w, "last update: %s\n", s.LastUpdate.UTC().Format(time.RFC3339))
	return err
}
