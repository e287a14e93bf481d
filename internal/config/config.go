// Package config loads oddsync configuration from CUE.
//
// The embedded schema carries every default, so an absent file yields a
// usable Config. A user file is unified with the schema; unknown fields and
// constraint violations are errors.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// Config is the decoded configuration.
type Config struct {
	MinValue       float64 `json:"min_value"`
	MaxHistorySize int     `json:"max_history_size"`
	SyncLimit      int     `json:"sync_limit"`
	Channel        string  `json:"channel"`
	StorePath      string  `json:"store_path"`
	SettingsPath   string  `json:"settings_path"`
	SocketDir      string  `json:"socket_dir"`
	Log            Log     `json:"log"`
}

// Log configures the process logger.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Error codes.
const (
	ErrCodeRead     = "CONFIG_READ"
	ErrCodeSyntax   = "CONFIG_SYNTAX"
	ErrCodeSchema   = "CONFIG_SCHEMA"
	ErrCodeDecode   = "CONFIG_DECODE"
	ErrCodeInternal = "CONFIG_INTERNAL"
)

// Error reports a configuration that could not be loaded.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError returns true if err is or wraps a config Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

func cueError(code string, err error) *Error {
	e := &Error{Code: code, Message: err.Error()}
	var ce cueerrors.Error
	if errors.As(err, &ce) {
		e.Pos = ce.Position()
	}
	return e
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		// The embedded schema is fixed at build time.
		panic(err)
	}
	return cfg
}

// Load reads the CUE file at path and applies it over the defaults. An
// empty path loads the defaults only.
func Load(path string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, cueError(ErrCodeInternal, err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Code: ErrCodeRead, Message: err.Error()}
		}

		user := ctx.CompileBytes(data, cue.Filename(path))
		if err := user.Err(); err != nil {
			return Config{}, cueError(ErrCodeSyntax, err)
		}
		v = v.Unify(user)
	}

	if err := v.Validate(); err != nil {
		return Config{}, cueError(ErrCodeSchema, err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, cueError(ErrCodeDecode, err)
	}
	return cfg, nil
}

// SlogLevel maps Level to a slog level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolvedSocketDir returns SocketDir, or a per-user directory under the
// system temp dir when it is empty.
func (c Config) ResolvedSocketDir() string {
	if c.SocketDir != "" {
		return c.SocketDir
	}
	return filepath.Join(os.TempDir(), "oddsync-"+strconv.Itoa(os.Getuid()))
}
