package harness

import (
	"github.com/roach88/oddsync/internal/reconcile"
)

// TraceEvent is one reconciler event in the order it was emitted.
type TraceEvent struct {
	Seq  int                 `json:"seq"`
	Kind reconcile.EventKind `json:"kind"`
	Data reconcile.Event     `json:"data"`
}

// Views holds the values of each view after the last step.
type Views struct {
	Base     []float64 `json:"base"`
	Filtered []float64 `json:"filtered"`
	Realtime []float64 `json:"realtime"`
	Stored   int       `json:"stored"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Views  Views        `json:"views"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) record(ev reconcile.Event) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  len(r.Trace) + 1,
		Kind: ev.Kind(),
		Data: ev,
	})
}
