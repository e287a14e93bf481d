package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/oddsync/internal/feed"
	"github.com/roach88/oddsync/internal/reconcile"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Limit  int
	NoSync bool
	Feed   string
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Join the channel and merge records from peers until interrupted",
		Long: `Load stored records, join the bus and merge every record other processes
announce. Merged records are stored in the background. Each event is written
to stdout as it happens (one JSON object per line with --format json).

When other processes answer the startup probe, a sync request fills in
records announced while this process was not listening.

With --feed, events are also served to websocket clients at /events.
The feed only binds loopback addresses.

Example:
  oddsync listen
  oddsync listen --format json --feed 127.0.0.1:8089`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "load only the most recent N stored records (0 for all)")
	cmd.Flags().BoolVar(&opts.NoSync, "no-sync", false, "skip the startup sync request")
	cmd.Flags().StringVar(&opts.Feed, "feed", "", "serve a websocket event feed on this loopback address")

	return cmd
}

func runListen(opts *ListenOptions, cmd *cobra.Command) error {
	if opts.Feed != "" {
		if err := checkLoopback(opts.Feed); err != nil {
			return WrapExitError(ExitCommandError, "invalid --feed address", err)
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(opts.RootOptions, appConfig{withBus: true})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			opts.Logger.Error("error closing", "error", closeErr)
		}
	}()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	formatter := &OutputFormatter{Format: opts.Format, Writer: out, Verbose: opts.Verbose}
	for _, k := range reconcile.Kinds {
		a.rec.On(k, func(ev reconcile.Event) {
			if err := formatter.Line(eventLine{Kind: ev.Kind(), Data: ev}); err != nil {
				opts.Logger.Debug("event write failed", "error", err)
			}
		})
	}

	if _, err := a.rec.Hydrate(ctx, opts.Limit); err != nil {
		opts.Logger.Warn("starting without stored records", "error", err)
	}

	if err := a.bus.Connect(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to join bus", err)
	}
	opts.Logger.Info("listening", "channel", a.bus.Channel(), "peer", a.bus.PeerID())

	if opts.Feed != "" {
		stop, err := serveFeed(opts, a.rec)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to start feed", err)
		}
		defer stop()
	}

	if !opts.NoSync {
		if a.bus.CheckOtherTabs(ctx) {
			a.rec.RequestSync()
		} else {
			opts.Logger.Debug("no peers answered, skipping sync")
		}
	}

	<-ctx.Done()
	opts.Logger.Info("stopping", "persist", a.rec.PersistStats())
	return nil
}

// serveFeed starts the websocket feed and returns its shutdown func.
func serveFeed(opts *ListenOptions, src feed.EventSource) (func(), error) {
	ln, err := net.Listen("tcp", opts.Feed)
	if err != nil {
		return nil, err
	}

	hub := feed.NewHub(feed.WithLogger(opts.Logger))
	hub.Attach(src)

	mux := http.NewServeMux()
	mux.Handle("/events", hub.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error("feed stopped", "error", err)
		}
	}()
	opts.Logger.Info("feed listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// checkLoopback rejects feed addresses that are not on the loopback
// interface.
func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%s is not a loopback address", host)
	}
	return nil
}

// eventLine is one streamed event.
type eventLine struct {
	Kind reconcile.EventKind `json:"kind"`
	Data reconcile.Event     `json:"data"`
}

func (l eventLine) RenderText(w io.Writer) error {
	var err error
	switch ev := l.Data.(type) {
	case reconcile.DataLoaded:
		_, err = fmt.Fprintf(w, "%s: %d records\n", l.Kind, ev.Count)
	case reconcile.RealtimeRecord:
		r := ev.Record
		_, err = fmt.Fprintf(w, "%s: %.2f %s from %s (id %d)\n", l.Kind, r.Value, r.TimeOfDay, r.Source, r.ID)
	case reconcile.FiltersApplied:
		_, err = fmt.Fprintf(w, "%s: %d records\n", l.Kind, ev.Count)
	case reconcile.Processing:
		_, err = fmt.Fprintf(w, "%s: %t\n", l.Kind, ev.Active)
	case reconcile.Failure:
		_, err = fmt.Fprintf(w, "%s: %s: %s\n", l.Kind, ev.Op, ev.Message)
	default:
		_, err = fmt.Fprintln(w, l.Kind)
	}
	return err
}

// lockedWriter serializes writes from event listeners running on
// different goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
