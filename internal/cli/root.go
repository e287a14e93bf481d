package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/oddsync/internal/config"
	"github.com/roach88/oddsync/internal/record"
)

// RootOptions holds global flags for all commands and the configuration
// resolved from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Settings   string
	Channel    string
	SocketDir  string

	// Config is loaded in PersistentPreRunE, with flag overrides applied.
	Config config.Config

	// Logger writes to the command's stderr.
	Logger *slog.Logger

	// Clock overrides the wall clock (for testing).
	Clock record.Clock

	// Keys overrides the record key generator (for testing).
	Keys record.KeyGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the oddsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oddsync",
		Short: "Capture, store and share round outcome records",
		Long: `oddsync ingests round outcome records from free text, keeps them in a
local SQLite store and shares them with other oddsync processes on the same
machine over a best-effort local bus.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite store (overrides store_path)")
	cmd.PersistentFlags().StringVar(&opts.Settings, "settings", "", "path to the settings file (overrides settings_path)")
	cmd.PersistentFlags().StringVar(&opts.Channel, "channel", "", "bus channel name (overrides channel)")
	cmd.PersistentFlags().StringVar(&opts.SocketDir, "socket-dir", "", "bus socket directory (overrides socket_dir)")

	// Add subcommands
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))

	return cmd
}

// resolve loads the config file, applies flag overrides and builds the
// logger.
func (o *RootOptions) resolve(stderr io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if o.Database != "" {
		cfg.StorePath = o.Database
	}
	if o.Settings != "" {
		cfg.SettingsPath = o.Settings
	}
	if o.Channel != "" {
		cfg.Channel = o.Channel
	}
	if o.SocketDir != "" {
		cfg.SocketDir = o.SocketDir
	}
	o.Config = cfg

	o.Logger = newLogger(cfg.Log, o.Verbose, stderr)
	slog.SetDefault(o.Logger)
	return nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(l config.Log, verbose bool, w io.Writer) *slog.Logger {
	level := l.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  o.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: o.Verbose,
	}
}
