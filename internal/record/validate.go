package record

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// ValidationError reports input that cannot become a record.
//
// Validation errors are recoverable: a rejected line or remote record is
// counted or logged and processing continues with the rest.
type ValidationError struct {
	// Code identifies the failure category.
	Code ValidationCode

	// Message is a human-readable description.
	Message string

	// Line is the 1-based input line, 0 when not applicable.
	Line int
}

// ValidationCode categorizes validation errors.
type ValidationCode string

const (
	// ErrCodeBelowMinimum indicates a value under the configured minimum.
	ErrCodeBelowMinimum ValidationCode = "BELOW_MINIMUM"

	// ErrCodeNotANumber indicates a NaN or infinite value.
	ErrCodeNotANumber ValidationCode = "NOT_A_NUMBER"

	// ErrCodeBadTime indicates a malformed time of day.
	ErrCodeBadTime ValidationCode = "BAD_TIME"

	// ErrCodeBadSource indicates an unknown provenance.
	ErrCodeBadSource ValidationCode = "BAD_SOURCE"

	// ErrCodeNoRecords indicates an input that produced nothing usable.
	ErrCodeNoRecords ValidationCode = "NO_RECORDS"

	// ErrCodeUnparsable indicates a line no pattern matched.
	ErrCodeUnparsable ValidationCode = "UNPARSABLE"
)

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Code, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var clockPattern = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

// ValidTime reports whether s is a clock time in H:MM or HH:MM form.
func ValidTime(s string) bool {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return h <= 23 && minute <= 59
}

// CheckValue validates a bare value against minimum.
func CheckValue(v, minimum float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Code: ErrCodeNotANumber, Message: fmt.Sprintf("value %v is not a finite number", v)}
	}
	if v < minimum {
		return &ValidationError{Code: ErrCodeBelowMinimum, Message: fmt.Sprintf("value %v below minimum %v", v, minimum)}
	}
	return nil
}

// Validate checks the invariants every stored or viewed record must hold.
func Validate(r Record, minimum float64) error {
	if err := CheckValue(r.Value, minimum); err != nil {
		return err
	}
	if r.TimeOfDay != "" && !ValidTime(r.TimeOfDay) {
		return &ValidationError{Code: ErrCodeBadTime, Message: fmt.Sprintf("time of day %q is not HH:MM", r.TimeOfDay)}
	}
	if !r.Source.Valid() {
		return &ValidationError{Code: ErrCodeBadSource, Message: fmt.Sprintf("unknown source %q", r.Source)}
	}
	return nil
}
