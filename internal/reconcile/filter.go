package reconcile

import (
	"github.com/roach88/oddsync/internal/record"
)

// Criteria narrows the base view. Nil fields pass everything; set fields
// combine as a conjunction. TimeStart and TimeEnd bound CapturedAt in epoch
// milliseconds, inclusive.
type Criteria struct {
	ValueMin  *float64       `json:"valueMin,omitempty" yaml:"valueMin,omitempty"`
	ValueMax  *float64       `json:"valueMax,omitempty" yaml:"valueMax,omitempty"`
	TimeStart *int64         `json:"timeStart,omitempty" yaml:"timeStart,omitempty"`
	TimeEnd   *int64         `json:"timeEnd,omitempty" yaml:"timeEnd,omitempty"`
	Source    *record.Source `json:"source,omitempty" yaml:"source,omitempty"`
}

// IsZero reports whether no field is set.
func (c Criteria) IsZero() bool {
	return c.ValueMin == nil && c.ValueMax == nil &&
		c.TimeStart == nil && c.TimeEnd == nil && c.Source == nil
}

// Matches reports whether r passes every set field.
func (c Criteria) Matches(r record.Record) bool {
	if c.ValueMin != nil && r.Value < *c.ValueMin {
		return false
	}
	if c.ValueMax != nil && r.Value > *c.ValueMax {
		return false
	}
	if c.TimeStart != nil && r.CapturedAt < *c.TimeStart {
		return false
	}
	if c.TimeEnd != nil && r.CapturedAt > *c.TimeEnd {
		return false
	}
	if c.Source != nil && r.Source != *c.Source {
		return false
	}
	return true
}

// Apply returns the records that match, in their original order. The result
// never aliases records.
func (c Criteria) Apply(records []record.Record) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// derive computes the filtered view for base under c.
func derive(base []record.Record, c *Criteria) []record.Record {
	if c == nil {
		return base
	}
	return c.Apply(base)
}
