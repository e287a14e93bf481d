package record

import (
	"time"
)

// DefaultMinValue is the smallest value a record may carry unless
// configured otherwise.
const DefaultMinValue = 1.0

// DateLayout is the layout of Record.CaptureDate.
const DateLayout = "2006-01-02"

// Source identifies where a record entered the system.
type Source string

const (
	// SourceManual marks records parsed from operator text.
	SourceManual Source = "manual"
	// SourceRealtimeSync marks records received from another process.
	SourceRealtimeSync Source = "realtime-sync"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceRealtimeSync:
		return true
	}
	return false
}

// Record is one captured numeric observation.
type Record struct {
	ID          int64   `json:"id,omitempty"`
	Key         string  `json:"key,omitempty"`
	Value       float64 `json:"value"`
	TimeOfDay   string  `json:"timeOfDay,omitempty"`
	CapturedAt  int64   `json:"capturedAt"`
	Source      Source  `json:"source"`
	CaptureDate string  `json:"captureDate"`
}

// HasTime reports whether the record carries a time of day.
func (r Record) HasTime() bool {
	return r.TimeOfDay != ""
}

// CapturedTime returns CapturedAt as a time.Time.
func (r Record) CapturedTime() time.Time {
	return time.UnixMilli(r.CapturedAt)
}

// New builds a record stamped at now.
func New(value float64, timeOfDay string, source Source, key string, now time.Time) Record {
	return Record{
		Key:         key,
		Value:       value,
		TimeOfDay:   timeOfDay,
		CapturedAt:  now.UnixMilli(),
		Source:      source,
		CaptureDate: now.Format(DateLayout),
	}
}

// Values extracts the numeric values of records, preserving order.
func Values(records []Record) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Value
	}
	return out
}

// Clone returns a copy of records that shares no backing array.
func Clone(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
