package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %+v\n", event.Seq, event.Kind, event.Data)
	}
	return buf.String()
}

func evaluate(a Assertion, result *Result) error {
	switch a.Type {
	case AssertEventOrder:
		return assertEventOrder(result.Trace, a)
	case AssertEventCount:
		return assertEventCount(result.Trace, a)
	case AssertView:
		return assertView(result, a)
	case AssertStored:
		if result.Views.Stored != a.Count {
			return &AssertionError{
				Type:     AssertStored,
				Expected: fmt.Sprintf("%d stored records", a.Count),
				Actual:   fmt.Sprintf("%d stored records", result.Views.Stored),
				Trace:    result.Trace,
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertEventOrder checks that the kinds appear in the trace in order.
// Unrelated events may sit between them.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Kinds) && event.Kind == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("kinds in order %v", a.Kinds),
		Actual:   fmt.Sprintf("matched %v, missing %s", a.Kinds[:next], a.Kinds[next]),
		Trace:    trace,
	}
}

// assertEventCount checks that exactly Count events of Kind were emitted.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, event := range trace {
		if event.Kind == a.Kind {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
		Actual:   fmt.Sprintf("%d %s events", n, a.Kind),
		Trace:    trace,
	}
}

// assertView checks the values of one view, in order.
func assertView(result *Result, a Assertion) error {
	var got []float64
	switch a.View {
	case "base":
		got = result.Views.Base
	case "filtered":
		got = result.Views.Filtered
	case "realtime":
		got = result.Views.Realtime
	}
	if slices.Equal(got, a.Values) || (len(got) == 0 && len(a.Values) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     AssertView,
		Expected: fmt.Sprintf("%s = %v", a.View, a.Values),
		Actual:   fmt.Sprintf("%s = %v", a.View, got),
		Trace:    result.Trace,
	}
}
