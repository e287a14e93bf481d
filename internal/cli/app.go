package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/oddsync/internal/bus"
	"github.com/roach88/oddsync/internal/parser"
	"github.com/roach88/oddsync/internal/reconcile"
	"github.com/roach88/oddsync/internal/record"
	"github.com/roach88/oddsync/internal/settings"
	"github.com/roach88/oddsync/internal/store"
)

const shutdownTimeout = 5 * time.Second

// app is the object graph of one command invocation.
type app struct {
	opts     *RootOptions
	store    *store.Store
	settings *settings.Store
	parser   *parser.Parser
	rec      *reconcile.Reconciler
	bus      *bus.Bus
}

type appConfig struct {
	withBus  bool
	announce bool
}

// openApp wires store, settings, parser, bus and reconciler. With a bus the
// reconciler publishes through it and the bus merges into the reconciler.
func openApp(opts *RootOptions, ac appConfig) (*app, error) {
	cfg := opts.Config
	logger := opts.Logger

	st, err := store.Open(cfg.StorePath, store.WithMinValue(cfg.MinValue))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = record.SystemClock{}
	}

	a := &app{
		opts:     opts,
		store:    st,
		settings: settings.New(cfg.SettingsPath),
		parser:   newParser(opts),
	}

	recOpts := []reconcile.Option{
		reconcile.WithParser(a.parser),
		reconcile.WithSettings(a.settings),
		reconcile.WithMinValue(cfg.MinValue),
		reconcile.WithMaxHistorySize(cfg.MaxHistorySize),
		reconcile.WithClock(clock),
		reconcile.WithLogger(logger),
		reconcile.WithAnnounce(ac.announce),
	}

	if ac.withBus {
		a.bus = newBus(opts)
		recOpts = append(recOpts, reconcile.WithPublisher(a.bus))
	}

	a.rec = reconcile.New(st, recOpts...)
	if a.bus != nil {
		a.bus.Attach(a.rec, a.rec)
	}
	return a, nil
}

// newBus creates a disconnected bus over the local socket transport.
func newBus(opts *RootOptions) *bus.Bus {
	cfg := opts.Config
	transport := bus.NewSocketTransport(cfg.ResolvedSocketDir(), bus.WithSocketLogger(opts.Logger))

	busOpts := []bus.Option{
		bus.WithLogger(opts.Logger),
		bus.WithSyncLimit(cfg.SyncLimit),
	}
	if opts.Clock != nil {
		busOpts = append(busOpts, bus.WithClock(opts.Clock))
	}
	return bus.New(transport, cfg.Channel, busOpts...)
}

// newParser builds the parser for the configured minimum.
func newParser(opts *RootOptions) *parser.Parser {
	parserOpts := []parser.Option{parser.WithMinValue(opts.Config.MinValue)}
	if opts.Clock != nil {
		parserOpts = append(parserOpts, parser.WithClock(opts.Clock))
	}
	if opts.Keys != nil {
		parserOpts = append(parserOpts, parser.WithKeys(opts.Keys))
	}
	return parser.New(parserOpts...)
}

// signalContext returns a context cancelled on SIGINT, SIGTERM or when the
// command's own context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan) // Prevent signal handler leak
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// connect joins the bus. A failure is logged and the command carries on
// without peers.
func (a *app) connect(ctx context.Context) bool {
	if a.bus == nil {
		return false
	}
	if err := a.bus.Connect(ctx); err != nil {
		a.opts.Logger.Warn("running without bus", "error", err)
		return false
	}
	return true
}

// Close stops the bus, drains background writes and closes the store.
func (a *app) Close() error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	errs = append(errs, a.rec.Close(ctx))
	errs = append(errs, a.store.Close())

	return errors.Join(errs...)
}

// readInput reads a file, or stdin for "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// operationError maps a reconciler failure to an exit error.
func operationError(message string, err error) error {
	switch {
	case record.IsValidationError(err):
		return WrapExitError(ExitFailure, message, err)
	case store.IsUnavailable(err):
		return WrapExitError(ExitFailure, message+" (store unavailable, retry later)", err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}
