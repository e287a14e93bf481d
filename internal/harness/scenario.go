package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/oddsync/internal/reconcile"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxHistorySize bounds base and realtime (default
	// reconcile.DefaultMaxHistorySize).
	MaxHistorySize int `yaml:"max_history_size,omitempty"`

	// Steps run in order against one reconciler.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and views.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one reconciler operation. Exactly one operation field is set.
type Step struct {
	Ingest       *string             `yaml:"ingest,omitempty"`
	Hydrate      *int                `yaml:"hydrate,omitempty"`
	Remote       *RemoteRecord       `yaml:"remote,omitempty"`
	SyncResponse []RemoteRecord      `yaml:"sync_response,omitempty"`
	Filter       *reconcile.Criteria `yaml:"filter,omitempty"`
	ClearFilter  bool                `yaml:"clear_filter,omitempty"`
	ClearAll     bool                `yaml:"clear_all,omitempty"`

	// ExpectError is "validation" or "storage" when the step must fail.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// RemoteRecord is a record as another process would announce it. Offset
// is seconds after the scenario clock's start.
type RemoteRecord struct {
	ID     int64   `yaml:"id,omitempty"`
	Key    string  `yaml:"key"`
	Value  float64 `yaml:"value"`
	Time   string  `yaml:"time,omitempty"`
	Source string  `yaml:"source,omitempty"`
	Offset int     `yaml:"offset,omitempty"`
}

// Assertion validates the trace or the final views.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the event kind (event_count).
	Kind reconcile.EventKind `yaml:"kind,omitempty"`

	// Kinds is the expected order of event kinds (event_order). Other
	// events may appear between them.
	Kinds []reconcile.EventKind `yaml:"kinds,omitempty"`

	// Count is the expected number (event_count, stored).
	Count int `yaml:"count,omitempty"`

	// View is base, filtered or realtime (view).
	View string `yaml:"view,omitempty"`

	// Values are the expected values of View, in order (view).
	Values []float64 `yaml:"values,omitempty"`
}

// Assertion type constants.
const (
	AssertEventOrder = "event_order"
	AssertEventCount = "event_count"
	AssertView       = "view"
	AssertStored     = "stored"
)

// Expected step errors.
const (
	ErrorValidation = "validation"
	ErrorStorage    = "storage"
)

var viewNames = []string{"base", "filtered", "realtime"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxHistorySize < 0 {
		return fmt.Errorf("max_history_size must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if n := step.operations(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one operation is required, got %d", i, n)
		}
		switch step.ExpectError {
		case "", ErrorValidation, ErrorStorage:
		default:
			return fmt.Errorf("steps[%d]: unknown expect_error %q", i, step.ExpectError)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) operations() int {
	n := 0
	for _, set := range []bool{
		s.Ingest != nil,
		s.Hydrate != nil,
		s.Remote != nil,
		s.SyncResponse != nil,
		s.Filter != nil,
		s.ClearFilter,
		s.ClearAll,
	} {
		if set {
			n++
		}
	}
	return n
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
		for _, k := range a.Kinds {
			if !slices.Contains(reconcile.Kinds, k) {
				return fmt.Errorf("assertions[%d]: unknown event kind %q", index, k)
			}
		}
	case AssertEventCount:
		if !slices.Contains(reconcile.Kinds, a.Kind) {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertView:
		if !slices.Contains(viewNames, a.View) {
			return fmt.Errorf("assertions[%d]: view must be one of %v", index, viewNames)
		}
	case AssertStored:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for stored", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
