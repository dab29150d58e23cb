package types

import (
	"fmt"
	"strings"
)

// ModelVariant is the kind of model call a template needs.
type ModelVariant string

const (
	VariantChat       ModelVariant = "CHAT"
	VariantCompletion ModelVariant = "COMPLETION"
	VariantEmbedding  ModelVariant = "EMBEDDING"
)

// Variants lists every known variant.
var Variants = []ModelVariant{VariantChat, VariantCompletion, VariantEmbedding}

// ParseVariant parses a variant case-insensitively.
func ParseVariant(s string) (ModelVariant, error) {
	v := ModelVariant(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case VariantChat, VariantCompletion, VariantEmbedding:
		return v, nil
	default:
		return "", fmt.Errorf("unknown model variant %q", s)
	}
}

// ModelRequirements describes the model a template wants. Zero fields mean "not specified".
type ModelRequirements struct {
	Variant       ModelVariant `json:"modelVariant,omitempty"`
	ModelName     string       `json:"modelName,omitempty"`
	Temperature   *float64     `json:"temperature,omitempty"`
	SystemMessage string       `json:"systemMessage,omitempty"`
}

// IsZero reports whether no requirement is set.
func (m ModelRequirements) IsZero() bool {
	return m.Variant == "" && m.ModelName == "" && m.Temperature == nil && m.SystemMessage == ""
}

// Merge returns m with every unset field taken from defaults.
func (m ModelRequirements) Merge(defaults ModelRequirements) ModelRequirements {
	if m.Variant == "" {
		m.Variant = defaults.Variant
	}
	if m.ModelName == "" {
		m.ModelName = defaults.ModelName
	}
	if m.Temperature == nil && defaults.Temperature != nil {
		t := *defaults.Temperature
		m.Temperature = &t
	}
	if m.SystemMessage == "" {
		m.SystemMessage = defaults.SystemMessage
	}
	return m
}
