package provider

import (
	"time"

	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/pkg/runstate"
	"github.com/casualjim/folio/types"
	"github.com/go-openapi/strfmt"
)

// Prompt is a fully resolved request for a model.
type Prompt struct {
	Title             string                  `json:"title,omitempty"`
	Content           string                  `json:"content"`
	Parameters        types.Parameters        `json:"parameters,omitempty"`
	ModelRequirements types.ModelRequirements `json:"modelRequirements"`
	Expectations      *expect.Expectations    `json:"expectations,omitempty"`
}

// Variant returns the requested model variant, chat when unspecified.
func (p *Prompt) Variant() types.ModelVariant {
	if p.ModelRequirements.Variant == "" {
		return types.VariantChat
	}
	return p.ModelRequirements.Variant
}

// Timing records when a call started and completed.
type Timing struct {
	Start    strfmt.DateTime `json:"start"`
	Complete strfmt.DateTime `json:"complete"`
}

// Duration returns the elapsed time of the call.
func (t Timing) Duration() time.Duration {
	return time.Time(t.Complete).Sub(time.Time(t.Start))
}

// StartTiming returns a timing whose start is now. Call Done when the call completes.
func StartTiming() Timing {
	return Timing{Start: strfmt.DateTime(time.Now())}
}

// Done stamps the completion time.
func (t Timing) Done() Timing {
	t.Complete = strfmt.DateTime(time.Now())
	return t
}

// PromptResult is the outcome of a chat or completion call.
type PromptResult struct {
	Content   string         `json:"content"`
	ModelName string         `json:"modelName,omitempty"`
	Timing    Timing         `json:"timing"`
	Usage     runstate.Usage `json:"usage"`
}

// EmbeddingResult is the outcome of an embedding call.
type EmbeddingResult struct {
	Vector    []float64      `json:"vector"`
	ModelName string         `json:"modelName,omitempty"`
	Timing    Timing         `json:"timing"`
	Usage     runstate.Usage `json:"usage"`
}

// AvailableModel is a model a provider can serve.
type AvailableModel struct {
	Title   string             `json:"title" yaml:"title"`
	Name    string             `json:"name" yaml:"name"`
	Variant types.ModelVariant `json:"variant" yaml:"variant"`
}

// ComputeUsage fills the text counts for prompt and result and adds the provider reported tokens.
func ComputeUsage(prompt, result string, promptTokens, completionTokens int64, price runstate.Price) runstate.Usage {
	u := runstate.Usage{
		Price:  price,
		Input:  runstate.CountUsage(prompt),
		Output: runstate.CountUsage(result),
	}
	u.Input.Tokens = promptTokens
	u.Output.Tokens = completionTokens
	return u
}

// ModelPrice is the USD price per million tokens.
type ModelPrice struct {
	Prompt     float64 `json:"prompt" yaml:"prompt"`
	Completion float64 `json:"completion" yaml:"completion"`
}

// Pricing maps model names to prices.
type Pricing map[string]ModelPrice

// Price returns the cost of a call. Models without a price yield an uncertain zero price.
func (p Pricing) Price(model string, promptTokens, completionTokens int64) runstate.Price {
	mp, ok := p[model]
	if !ok {
		return runstate.Price{Uncertain: true}
	}
	return runstate.Price{
		Value: (float64(promptTokens)*mp.Prompt + float64(completionTokens)*mp.Completion) / 1_000_000,
	}
}
