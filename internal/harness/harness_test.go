package harness

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oddsync/internal/reconcile"
	"github.com/roach88/oddsync/internal/record"
)

func kinds(trace []TraceEvent) []reconcile.EventKind {
	out := make([]reconcile.EventKind, len(trace))
	for i, event := range trace {
		out[i] = event.Kind
	}
	return out
}

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestRunTrace(t *testing.T) {
	s := mustParse(t, `
name: trace
description: ingest then clear the filter
steps:
  - ingest: "2.00 10:00"
  - clear_filter: true
assertions:
  - type: stored
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, []reconcile.EventKind{
		reconcile.KindProcessing,
		reconcile.KindDataLoaded,
		reconcile.KindProcessing,
		reconcile.KindFiltersCleared,
	}, kinds(result.Trace))

	for i, event := range result.Trace {
		assert.Equal(t, i+1, event.Seq)
	}
	assert.Equal(t, reconcile.DataLoaded{Count: 1, TotalLines: 1, Saved: 1}, result.Trace[1].Data)
}

func TestRunUnexpectedStepError(t *testing.T) {
	s := mustParse(t, `
name: bad_ingest
description: ingest with nothing valid
steps:
  - ingest: "nothing"
assertions:
  - type: stored
    count: 0
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0]: unexpected error")
	assert.Contains(t, kinds(result.Trace), reconcile.KindError)
}

func TestRunExpectedErrorNotRaised(t *testing.T) {
	s := mustParse(t, `
name: no_error
description: a valid remote record flagged as invalid
steps:
  - remote: {key: peer-1, value: 2.5}
    expect_error: validation
assertions:
  - type: stored
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected validation error, got <nil>")
}

func TestRunFailingAssertions(t *testing.T) {
	s := mustParse(t, `
name: wrong
description: every assertion is wrong
steps:
  - ingest: "2.00 10:00"
assertions:
  - type: event_order
    kinds: [dataCleared]
  - type: event_count
    kind: dataLoaded
    count: 2
  - type: view
    view: base
    values: [9]
  - type: stored
    count: 5
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Assertion failed: event_order")
	assert.Contains(t, result.Errors[0], "missing dataCleared")
	assert.Contains(t, result.Errors[1], "Actual: 1 dataLoaded events")
	assert.Contains(t, result.Errors[2], "Actual: base = [2]")
	assert.Contains(t, result.Errors[3], "Actual: 1 stored records")
	assert.Contains(t, result.Errors[3], "Full trace:")
}

func TestRemoteRecordDefaults(t *testing.T) {
	s := mustParse(t, `
name: remote_defaults
description: a remote record without a source is tagged realtime-sync
steps:
  - remote: {id: 7, key: peer-1, value: 2.5, time: "09:05", offset: 90}
assertions:
  - type: view
    view: realtime
    values: [2.5]
  - type: stored
    count: 1
`)

	rec := s.Steps[0].Remote.toRecord()
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, Start.Add(90*time.Second).UnixMilli(), rec.CapturedAt)
	assert.Empty(t, rec.Source)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 1)
	merged, ok := result.Trace[0].Data.(reconcile.RealtimeRecord)
	require.True(t, ok)
	assert.Equal(t, record.SourceRealtimeSync, merged.Record.Source)
}

func TestRunIsDeterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "sync_dedup.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Views, second.Views)
}
