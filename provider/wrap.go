package provider

import (
	"context"
	"fmt"

	"github.com/casualjim/folio/pkg/runstate"
	"github.com/casualjim/folio/types"
	"golang.org/x/time/rate"
)

// wrapped forwards every capability of the inner provider through a hook.
type wrapped struct {
	inner  ExecutionTools
	before func(ctx context.Context) error
	after  func(usage runstate.Usage)
}

func (w *wrapped) Title() string { return w.inner.Title() }

func (w *wrapped) ListModels(ctx context.Context) ([]AvailableModel, error) {
	return w.inner.ListModels(ctx)
}

func (w *wrapped) Supports(variant types.ModelVariant) bool {
	return Supports(w.inner, variant)
}

func (w *wrapped) CallChatModel(ctx context.Context, prompt Prompt) (*PromptResult, error) {
	if err := w.before(ctx); err != nil {
		return nil, err
	}
	res, err := CallChat(ctx, w.inner, prompt)
	if err == nil {
		w.after(res.Usage)
	}
	return res, err
}

func (w *wrapped) CallCompletionModel(ctx context.Context, prompt Prompt) (*PromptResult, error) {
	if err := w.before(ctx); err != nil {
		return nil, err
	}
	res, err := CallCompletion(ctx, w.inner, prompt)
	if err == nil {
		w.after(res.Usage)
	}
	return res, err
}

func (w *wrapped) CallEmbeddingModel(ctx context.Context, prompt Prompt) (*EmbeddingResult, error) {
	if err := w.before(ctx); err != nil {
		return nil, err
	}
	res, err := CallEmbedding(ctx, w.inner, prompt)
	if err == nil {
		w.after(res.Usage)
	}
	return res, err
}

// Limit throttles every model call of tools with limiter.
func Limit(tools ExecutionTools, limiter *rate.Limiter) ExecutionTools {
	return &wrapped{
		inner: tools,
		before: func(ctx context.Context) error {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
			return nil
		},
		after: func(runstate.Usage) {},
	}
}

// UsageCounter is a provider that keeps a running total of the usage of its calls.
type UsageCounter struct {
	*wrapped
	total *runstate.Aggregator
}

// CountUsage wraps tools so the usage of every successful call is added to a running total.
func CountUsage(tools ExecutionTools) *UsageCounter {
	total := runstate.NewAggregator()
	return &UsageCounter{
		wrapped: &wrapped{
			inner:  tools,
			before: func(context.Context) error { return nil },
			after:  total.Add,
		},
		total: total,
	}
}

// TotalUsage returns the usage of every call made so far.
func (u *UsageCounter) TotalUsage() runstate.Usage {
	return u.total.Usage()
}
