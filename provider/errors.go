package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/folio/types"
)

// ErrUnsupported is returned when a provider lacks the requested capability.
var ErrUnsupported = errors.New("capability not supported")

// ProviderCallError is a failed call to one provider.
type ProviderCallError struct {
	Provider string
	Variant  types.ModelVariant
	Model    string
	Err      error
}

func (e *ProviderCallError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Variant != "" {
		fmt.Fprintf(&b, " (%s", strings.ToLower(string(e.Variant)))
		if e.Model != "" {
			b.WriteString(" ")
			b.WriteString(e.Model)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("call failed")
	}
	return b.String()
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// AggregatedFallbackError is returned when no provider could serve a call.
type AggregatedFallbackError struct {
	Message string
	Errors  []error
}

func (e *AggregatedFallbackError) Error() string {
	var b strings.Builder
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString("all execution tools failed")
	}
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *AggregatedFallbackError) Unwrap() []error {
	return e.Errors
}
