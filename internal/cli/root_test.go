package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "oddsync", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"ingest", "show", "stats", "clear", "listen", "publish", "probe"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "settings", "channel", "socket-dir"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue, name)
	}
}

func TestIngestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	ingestCmd, _, err := cmd.Find([]string{"ingest"})
	require.NoError(t, err)

	announceFlag := ingestCmd.Flags().Lookup("announce")
	require.NotNil(t, announceFlag)
	assert.Equal(t, "true", announceFlag.DefValue)
}

func TestPublishCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	publishCmd, _, err := cmd.Find([]string{"publish"})
	require.NoError(t, err)

	batchFlag := publishCmd.Flags().Lookup("batch")
	require.NotNil(t, batchFlag)
	assert.Equal(t, "100", batchFlag.DefValue)
}

func TestListenCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	listenCmd, _, err := cmd.Find([]string{"listen"})
	require.NoError(t, err)

	for _, name := range []string{"limit", "no-sync", "feed"} {
		assert.NotNil(t, listenCmd.Flags().Lookup(name), name)
	}
}

func TestCheckLoopback(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:8089", false},
		{"localhost:8089", false},
		{"[::1]:8089", false},
		{"0.0.0.0:8089", true},
		{"192.168.1.10:8089", true},
		{"no-port", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := checkLoopback(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
