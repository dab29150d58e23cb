// Package expect checks produced text against declared expectations: count ranges
// over characters, words, sentences, lines, paragraphs or pages, and a required
// output format.
package expect

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Unit is a countable unit of text.
type Unit string

const (
	Characters Unit = "CHARACTERS"
	Words      Unit = "WORDS"
	Sentences  Unit = "SENTENCES"
	Lines      Unit = "LINES"
	Paragraphs Unit = "PARAGRAPHS"
	Pages      Unit = "PAGES"
)

// Units lists every unit in the order they are checked and printed.
var Units = []Unit{Characters, Words, Sentences, Lines, Paragraphs, Pages}

// ParseUnit accepts singular or plural unit names, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasSuffix(u, "S") {
		u += "S"
	}
	for _, known := range Units {
		if Unit(u) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// Format is a required output format.
type Format string

// FormatJSON requires the output to be a valid JSON document.
const FormatJSON Format = "JSON"

// Range is an inclusive count range; nil bounds are open.
type Range struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Expectations are the constraints a template output must satisfy.
type Expectations struct {
	Counts map[Unit]Range `json:"counts,omitempty"`
	Format Format         `json:"format,omitempty"`
}

// IsEmpty reports whether there is no constraint at all.
func (e *Expectations) IsEmpty() bool {
	return e == nil || (len(e.Counts) == 0 && e.Format == "")
}

// SetMin sets the lower bound for unit.
func (e *Expectations) SetMin(unit Unit, n int) {
	r := e.rangeFor(unit)
	r.Min = &n
	e.Counts[unit] = r
}

// SetMax sets the upper bound for unit.
func (e *Expectations) SetMax(unit Unit, n int) {
	r := e.rangeFor(unit)
	r.Max = &n
	e.Counts[unit] = r
}

func (e *Expectations) rangeFor(unit Unit) Range {
	if e.Counts == nil {
		e.Counts = make(map[Unit]Range)
	}
	return e.Counts[unit]
}

// Validate rejects negative bounds and ranges whose minimum exceeds their maximum.
func Validate(e *Expectations) error {
	if e == nil {
		return nil
	}
	for _, unit := range Units {
		r, ok := e.Counts[unit]
		if !ok {
			continue
		}
		if (r.Min != nil && *r.Min < 0) || (r.Max != nil && *r.Max < 0) {
			return fmt.Errorf("expectation on %s has a negative bound", strings.ToLower(string(unit)))
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("expectation on %s has min %d greater than max %d", strings.ToLower(string(unit)), *r.Min, *r.Max)
		}
	}
	switch e.Format {
	case "", FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q", e.Format)
	}
}

// ExpectError names the violated constraint and the observed value.
type ExpectError struct {
	Unit     Unit   `json:"unit,omitempty"`
	Min      *int   `json:"min,omitempty"`
	Max      *int   `json:"max,omitempty"`
	Observed int    `json:"observed,omitempty"`
	Format   Format `json:"format,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (e *ExpectError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("expected %s output: %s", e.Format, e.Detail)
	}
	unit := strings.ToLower(string(e.Unit))
	switch {
	case e.Min != nil && e.Observed < *e.Min:
		return fmt.Sprintf("expected at least %d %s but got %d", *e.Min, unit, e.Observed)
	case e.Max != nil:
		return fmt.Sprintf("expected at most %d %s but got %d", *e.Max, unit, e.Observed)
	default:
		return fmt.Sprintf("unexpected number of %s: %d", unit, e.Observed)
	}
}

// Check returns an *ExpectError for the first violated constraint, or nil.
func Check(e *Expectations, value string) error {
	if e.IsEmpty() {
		return nil
	}
	for _, unit := range Units {
		r, ok := e.Counts[unit]
		if !ok {
			continue
		}
		n := Count(unit, value)
		if (r.Min != nil && n < *r.Min) || (r.Max != nil && n > *r.Max) {
			return &ExpectError{Unit: unit, Min: r.Min, Max: r.Max, Observed: n}
		}
	}
	if e.Format == FormatJSON && !gjson.Valid(strings.TrimSpace(value)) {
		return &ExpectError{Format: FormatJSON, Detail: "value is not valid JSON"}
	}
	return nil
}

// IsPassing is the boolean form of Check.
func IsPassing(e *Expectations, value string) bool {
	return Check(e, value) == nil
}
