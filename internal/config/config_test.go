package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oddsync.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.MinValue)
	assert.Equal(t, 20000, cfg.MaxHistorySize)
	assert.Equal(t, 100, cfg.SyncLimit)
	assert.Equal(t, "odds-sync", cfg.Channel)
	assert.Equal(t, "oddsync.db", cfg.StorePath)
	assert.Equal(t, "oddsync-settings.yaml", cfg.SettingsPath)
	assert.Empty(t, cfg.SocketDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.Equal(t, cfg, Default())
}

func TestLoad_OverridesKeepOtherDefaults(t *testing.T) {
	path := writeConfig(t, `
min_value: 1.5
channel:   "table-7"
log: format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.MinValue)
	assert.Equal(t, "table-7", cfg.Channel)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 100, cfg.SyncLimit)
}

func TestLoad_IntegerMinValue(t *testing.T) {
	cfg, err := Load(writeConfig(t, `min_value: 2`))
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.MinValue)
}

func TestLoad_ConstraintViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero minimum", `min_value: 0`},
		{"negative history", `max_history_size: -1`},
		{"sync limit too large", `sync_limit: 5000`},
		{"channel with slash", `channel: "a/b"`},
		{"unknown log level", `log: level: "trace"`},
		{"unknown field", `max_histroy_size: 10`},
		{"wrong type", `sync_limit: "many"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestLoad_SyntaxError(t *testing.T) {
	_, err := Load(writeConfig(t, `min_value: {`))
	require.Error(t, err)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeSyntax, ce.Code)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeRead, ce.Code)
}

func TestLog_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Log{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Log{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Log{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelError, Log{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Log{}.SlogLevel())
}

func TestResolvedSocketDir(t *testing.T) {
	assert.Equal(t, "/run/odds", Config{SocketDir: "/run/odds"}.ResolvedSocketDir())
	assert.NotEmpty(t, Config{}.ResolvedSocketDir())
}
