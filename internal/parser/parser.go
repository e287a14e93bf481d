// Package parser turns operator-pasted free text into candidate records.
//
// Parsing is pure and line oriented: a bad line is counted and skipped,
// it never aborts the rest of the input.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/oddsync/internal/record"
)

var (
	// value, optional trailing x, optional trailing time
	leadingPattern = regexp.MustCompile(`^([0-9]+\.?[0-9]*)x?\s*([0-9]{1,2}:[0-9]{2})?`)
	// value, whitespace, mandatory time
	spacedPattern = regexp.MustCompile(`^([0-9]+\.?[0-9]*)\s+([0-9]{1,2}:[0-9]{2})$`)
)

// Rejection describes one line that produced no record.
type Rejection struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Result is the outcome of parsing one block of text.
type Result struct {
	Records        []record.Record `json:"records"`
	ErrorCount     int             `json:"errorCount"`
	TotalLineCount int             `json:"totalLineCount"`
	Rejected       []Rejection     `json:"rejected,omitempty"`
}

// Parser converts text into records stamped with its clock and keys.
// A Parser holds no per-call state and is safe for concurrent use.
type Parser struct {
	minValue float64
	clock    record.Clock
	keys     record.KeyGenerator
}

// Option configures a Parser.
type Option func(*Parser)

// WithMinValue sets the smallest accepted value (default record.DefaultMinValue).
func WithMinValue(v float64) Option {
	return func(p *Parser) {
		p.minValue = v
	}
}

// WithClock sets the clock used for capture stamps.
func WithClock(c record.Clock) Option {
	return func(p *Parser) {
		p.clock = c
	}
}

// WithKeys sets the capture key generator.
func WithKeys(k record.KeyGenerator) Option {
	return func(p *Parser) {
		p.keys = k
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		minValue: record.DefaultMinValue,
		clock:    record.SystemClock{},
		keys:     record.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MinValue returns the configured minimum.
func (p *Parser) MinValue() float64 {
	return p.minValue
}

// Parse splits text into lines and parses each one.
//
// Empty lines are dropped before counting. Comment lines (# or //) count
// towards TotalLineCount but are neither records nor errors.
func (p *Parser) Parse(text string) Result {
	res := Result{Records: []record.Record{}}

	// NFKC folds full-width digits and colons into ASCII
	text = norm.NFKC.String(text)

	lineNo := 0
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lineNo++
		res.TotalLineCount++

		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		r, ok := p.parseLine(line)
		if !ok {
			res.ErrorCount++
			res.Rejected = append(res.Rejected, Rejection{Line: lineNo, Text: line})
			continue
		}
		res.Records = append(res.Records, r)
	}

	return res
}

// ParseLine parses a single line. It reports false when the line is not a
// valid record.
func (p *Parser) ParseLine(line string) (record.Record, bool) {
	line = strings.TrimSpace(norm.NFKC.String(line))
	if line == "" {
		return record.Record{}, false
	}
	return p.parseLine(line)
}

func (p *Parser) parseLine(line string) (record.Record, bool) {
	line = strings.ReplaceAll(line, "×", "x")

	for _, pattern := range []*regexp.Regexp{leadingPattern, spacedPattern} {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil || record.CheckValue(value, p.minValue) != nil {
			continue
		}
		tod, ok := normalizeTime(m[2])
		if !ok {
			continue
		}
		return p.build(value, tod), true
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(line, "x", "", 1)), 64)
	if err != nil || record.CheckValue(value, p.minValue) != nil {
		return record.Record{}, false
	}
	return p.build(value, ""), true
}

func (p *Parser) build(value float64, tod string) record.Record {
	return record.New(value, tod, record.SourceManual, p.keys.Generate(), p.clock.Now())
}

// normalizeTime pads single-digit hours so stored times sort lexically.
// An empty input is a valid "no time".
func normalizeTime(s string) (string, bool) {
	if s == "" {
		return "", true
	}
	if !record.ValidTime(s) {
		return "", false
	}
	if len(s) == 4 {
		s = "0" + s
	}
	return s, true
}
