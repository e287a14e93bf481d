package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/oddsync/internal/parser"
	"github.com/roach88/oddsync/internal/reconcile"
	"github.com/roach88/oddsync/internal/record"
	"github.com/roach88/oddsync/internal/settings"
	"github.com/roach88/oddsync/internal/store"
	"github.com/roach88/oddsync/internal/testutil"
)

// Start is the frozen clock time every scenario begins at.
var Start = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

// Harness is the scenario execution environment.
type Harness struct {
	store *store.Store
	rec   *reconcile.Reconciler
	clock *testutil.FakeClock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory,
// removed afterwards. Step and assertion failures are reported in the
// result; the error is for setup failures only.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "harness")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "records.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFakeClock(Start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	p := parser.New(
		parser.WithClock(clock),
		parser.WithKeys(record.NewFixedKeys()),
	)

	opts := []reconcile.Option{
		reconcile.WithParser(p),
		reconcile.WithSettings(settings.New(filepath.Join(dir, "settings.yaml"))),
		reconcile.WithClock(clock),
		reconcile.WithLogger(logger),
	}
	if scenario.MaxHistorySize > 0 {
		opts = append(opts, reconcile.WithMaxHistorySize(scenario.MaxHistorySize))
	}

	h := &Harness{
		store: st,
		rec:   reconcile.New(st, opts...),
		clock: clock,
	}

	result := NewResult()
	for _, k := range reconcile.Kinds {
		h.rec.On(k, result.record)
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	if err := h.rec.Close(ctx); err != nil {
		return nil, fmt.Errorf("failed to drain writes: %w", err)
	}
	views, err := h.captureViews(ctx)
	if err != nil {
		return nil, err
	}
	result.Views = views

	for _, a := range scenario.Assertions {
		if err := evaluate(a, result); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

// executeStep runs one step and checks its error against ExpectError.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) {
	err := h.apply(ctx, step)

	switch step.ExpectError {
	case "":
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, err))
		}
	case ErrorValidation:
		if !record.IsValidationError(err) {
			result.AddError(fmt.Sprintf("steps[%d]: expected validation error, got %v", index, err))
		}
	case ErrorStorage:
		if !reconcile.IsStorageError(err) {
			result.AddError(fmt.Sprintf("steps[%d]: expected storage error, got %v", index, err))
		}
	}

	// Each step happens one second after the previous one
	h.clock.Advance(time.Second)
}

func (h *Harness) apply(ctx context.Context, step Step) error {
	switch {
	case step.Ingest != nil:
		_, err := h.rec.Ingest(ctx, *step.Ingest)
		return err
	case step.Hydrate != nil:
		_, err := h.rec.Hydrate(ctx, *step.Hydrate)
		return err
	case step.Remote != nil:
		return h.rec.ReceiveRemote(step.Remote.toRecord())
	case step.SyncResponse != nil:
		rs := make([]record.Record, len(step.SyncResponse))
		for i, r := range step.SyncResponse {
			rs[i] = r.toRecord()
		}
		h.rec.ReceiveSyncResponse(rs)
		return nil
	case step.Filter != nil:
		h.rec.ApplyFilter(*step.Filter)
		return nil
	case step.ClearFilter:
		h.rec.ClearFilter()
		return nil
	case step.ClearAll:
		return h.rec.ClearAll(ctx)
	}
	return fmt.Errorf("step has no operation")
}

func (h *Harness) captureViews(ctx context.Context) (Views, error) {
	stored, err := h.store.Count(ctx)
	if err != nil {
		return Views{}, fmt.Errorf("failed to count stored records: %w", err)
	}
	return Views{
		Base:     record.Values(h.rec.Base()),
		Filtered: h.rec.Values(true),
		Realtime: record.Values(h.rec.Realtime()),
		Stored:   stored,
	}, nil
}

func (r RemoteRecord) toRecord() record.Record {
	at := Start.Add(time.Duration(r.Offset) * time.Second)
	rec := record.New(r.Value, r.Time, record.Source(r.Source), r.Key, at)
	rec.ID = r.ID
	return rec
}
