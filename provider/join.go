package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/types"
)

// MultiTools joins several providers into one. Each call is sent to the first provider,
// in construction order, that supports the requested variant and lists a model of it.
// When every candidate fails the errors are returned together as an *AggregatedFallbackError.
type MultiTools struct {
	tools   []ExecutionTools
	metrics *Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	models map[int][]AvailableModel
}

var (
	_ ExecutionTools   = (*MultiTools)(nil)
	_ ChatCaller       = (*MultiTools)(nil)
	_ CompletionCaller = (*MultiTools)(nil)
	_ EmbeddingCaller  = (*MultiTools)(nil)
)

// Join creates a MultiTools over tools. An empty set is valid; every call on it fails.
func Join(tools ...ExecutionTools) *MultiTools {
	return &MultiTools{
		tools:  slices.Clone(tools),
		logger: slogx.Component("provider.join"),
		models: make(map[int][]AvailableModel),
	}
}

// WithMetrics records call outcomes in m.
func (mt *MultiTools) WithMetrics(m *Metrics) *MultiTools {
	mt.metrics = m
	return mt
}

// Tools returns the joined providers.
func (mt *MultiTools) Tools() []ExecutionTools {
	return slices.Clone(mt.tools)
}

func (mt *MultiTools) Title() string {
	switch len(mt.tools) {
	case 0:
		return "No execution tools"
	case 1:
		return mt.tools[0].Title()
	}
	titles := make([]string, len(mt.tools))
	for i, t := range mt.tools {
		titles[i] = t.Title()
	}
	return "Multiple providers: " + strings.Join(titles, ", ")
}

// Supports reports whether any joined provider supports variant.
func (mt *MultiTools) Supports(variant types.ModelVariant) bool {
	for _, t := range mt.tools {
		if Supports(t, variant) {
			return true
		}
	}
	return false
}

// ListModels lists the models of every provider. Providers that fail to list are skipped
// and their errors returned joined alongside the models that could be listed.
func (mt *MultiTools) ListModels(ctx context.Context) ([]AvailableModel, error) {
	var (
		all  []AvailableModel
		errs []error
	)
	for i, t := range mt.tools {
		models, err := mt.listModels(ctx, i, t)
		if err != nil {
			errs = append(errs, &ProviderCallError{Provider: t.Title(), Err: err})
			continue
		}
		all = append(all, models...)
	}
	return all, errors.Join(errs...)
}

func (mt *MultiTools) listModels(ctx context.Context, i int, t ExecutionTools) ([]AvailableModel, error) {
	mt.mu.Lock()
	cached, ok := mt.models[i]
	mt.mu.Unlock()
	if ok {
		return cached, nil
	}

	models, err := t.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	mt.mu.Lock()
	mt.models[i] = models
	mt.mu.Unlock()
	return models, nil
}

func (mt *MultiTools) CallChatModel(ctx context.Context, prompt Prompt) (*PromptResult, error) {
	return callFirst(ctx, mt, types.VariantChat, prompt, CallChat)
}

func (mt *MultiTools) CallCompletionModel(ctx context.Context, prompt Prompt) (*PromptResult, error) {
	return callFirst(ctx, mt, types.VariantCompletion, prompt, CallCompletion)
}

func (mt *MultiTools) CallEmbeddingModel(ctx context.Context, prompt Prompt) (*EmbeddingResult, error) {
	return callFirst(ctx, mt, types.VariantEmbedding, prompt, CallEmbedding)
}

func callFirst[R any](
	ctx context.Context,
	mt *MultiTools,
	variant types.ModelVariant,
	prompt Prompt,
	call func(context.Context, ExecutionTools, Prompt) (R, error),
) (R, error) {
	var zero R

	switch len(mt.tools) {
	case 0:
		mt.logger.WarnContext(ctx, "no execution tools configured", slog.String("variant", string(variant)))
		return zero, &AggregatedFallbackError{Message: "no execution tools configured"}
	case 1:
		started := time.Now()
		res, err := call(ctx, mt.tools[0], prompt)
		mt.metrics.observe(mt.tools[0].Title(), variant, started, err)
		return res, err
	}

	var errs []error
	for i, t := range mt.tools {
		if !Supports(t, variant) {
			continue
		}

		models, err := mt.listModels(ctx, i, t)
		if err != nil {
			errs = append(errs, &ProviderCallError{Provider: t.Title(), Variant: variant, Err: fmt.Errorf("list models: %w", err)})
			continue
		}
		if !slices.ContainsFunc(models, func(m AvailableModel) bool { return m.Variant == variant }) {
			continue
		}

		started := time.Now()
		res, err := call(ctx, t, prompt)
		mt.metrics.observe(t.Title(), variant, started, err)
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		mt.logger.DebugContext(ctx, "provider call failed, trying the next one", slog.String("provider", t.Title()), slogx.Error(err))
		var pce *ProviderCallError
		if !errors.As(err, &pce) {
			err = &ProviderCallError{Provider: t.Title(), Variant: variant, Model: prompt.ModelRequirements.ModelName, Err: err}
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return zero, &AggregatedFallbackError{Message: fmt.Sprintf("no execution tools support %s models", strings.ToLower(string(variant)))}
	}
	return zero, &AggregatedFallbackError{Errors: errs}
}
