package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/oddsync/internal/reconcile"
	"github.com/roach88/oddsync/internal/record"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Limit       int
	Min         float64
	Max         float64
	From        string
	To          string
	Source      string
	ClearFilter bool
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List stored records through the active filter",
		Long: `Load records from the store and print the filtered view.

Filter flags replace the saved filter and are remembered for later runs.
Without filter flags the saved filter, if any, is applied.

Example:
  oddsync show --limit 50
  oddsync show --min 2 --max 10 --source manual
  oddsync show --from 2024-03-09T10:00:00Z --to 2024-03-09T12:00:00Z
  oddsync show --clear-filter`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "load only the most recent N records (0 for all)")
	cmd.Flags().Float64Var(&opts.Min, "min", 0, "minimum value")
	cmd.Flags().Float64Var(&opts.Max, "max", 0, "maximum value")
	cmd.Flags().StringVar(&opts.From, "from", "", "earliest capture time (RFC 3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "latest capture time (RFC 3339)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "record source (manual|realtime-sync)")
	cmd.Flags().BoolVar(&opts.ClearFilter, "clear-filter", false, "forget the saved filter")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	criteria, set, err := opts.criteria(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
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

	if _, err := a.rec.Hydrate(cmd.Context(), opts.Limit); err != nil {
		return operationError("failed to load records", err)
	}

	switch {
	case opts.ClearFilter:
		a.rec.ClearFilter()
	case set:
		a.rec.ApplyFilter(criteria)
	}

	return opts.formatter(cmd).Success(recordList{
		Records: a.rec.Filtered(),
		Total:   len(a.rec.Base()),
		Filter:  a.rec.Criteria(),
	})
}

// criteria builds a filter from the flags that were set.
func (o *ShowOptions) criteria(cmd *cobra.Command) (reconcile.Criteria, bool, error) {
	var c reconcile.Criteria
	flags := cmd.Flags()

	if flags.Changed("min") {
		c.ValueMin = &o.Min
	}
	if flags.Changed("max") {
		c.ValueMax = &o.Max
	}
	if o.From != "" {
		ms, err := parseTime(o.From)
		if err != nil {
			return c, false, fmt.Errorf("--from: %w", err)
		}
		c.TimeStart = &ms
	}
	if o.To != "" {
		ms, err := parseTime(o.To)
		if err != nil {
			return c, false, fmt.Errorf("--to: %w", err)
		}
		c.TimeEnd = &ms
	}
	if o.Source != "" {
		src := record.Source(o.Source)
		if !src.Valid() {
			return c, false, fmt.Errorf("--source: unknown source %q", o.Source)
		}
		c.Source = &src
	}
	return c, !c.IsZero(), nil
}

func parseTime(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

type recordList struct {
	Records []record.Record     `json:"records"`
	Total   int                 `json:"total"`
	Filter  *reconcile.Criteria `json:"filter,omitempty"`
}

func (l recordList) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVALUE\tTIME\tDATE\tSOURCE")
	for _, r := range l.Records {
		tod := r.TimeOfDay
		if tod == "" {
			tod = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, strconv.FormatFloat(r.Value, 'f', 2, 64), tod, r.CaptureDate, r.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	suffix := ""
	if l.Filter != nil {
		suffix = " (filtered)"
	}
	_, err := fmt.Fprintf(w, "%d of %d records%s\n", len(l.Records), l.Total, suffix)
	return err
}
