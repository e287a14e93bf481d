package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Name string `json:"name"`
}

func (g greeting) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "hello %s\n", g.Name)
	return err
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(greeting{Name: "peer"})
	require.NoError(t, err)

	var resp struct {
		Status string   `json:"status"`
		Data   greeting `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "peer", resp.Data.Name)
}

func TestOutputFormatter_TextUsesRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(greeting{Name: "peer"}))
	assert.Equal(t, "hello peer\n", buf.String())
}

func TestOutputFormatter_TextFallsBackToPrintln(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("store cleared"))
	assert.Equal(t, "store cleared\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("STORAGE", "store unavailable", map[string]string{"path": "odds.db"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STORAGE", resp.Error.Code)
	assert.Equal(t, "store unavailable", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			require.NoError(t, formatter.Error("VALIDATION", "value below minimum", "0.5"))
			assert.Contains(t, buf.String(), "Error [VALIDATION]: value below minimum")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: 0.5")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_LineJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Line(greeting{Name: "a"}))
	require.NoError(t, formatter.Line(greeting{Name: "b"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"name":"a"}`, lines[0])
	assert.JSONEq(t, `{"name":"b"}`, lines[1])
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "failed", errors.New("x"))), ExitFailure},
		{"plain error", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitFailure, "ingest failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ingest failed")
	assert.Contains(t, err.Error(), "disk full")
}
