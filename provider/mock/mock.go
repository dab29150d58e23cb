// Package mock provides in-process execution tools for tests and offline runs.
package mock

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/casualjim/folio/pkg/runstate"
	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/types"
	"github.com/fogfish/opts"
)

// Responder produces the content of a chat or completion call.
type Responder func(ctx context.Context, prompt provider.Prompt) (string, error)

// Tools is a scriptable provider. It supports chat and completion when it has a responder,
// and embeddings when it has an embedder.
type Tools struct {
	title     string
	models    []provider.AvailableModel
	listErr   error
	responder Responder
	embedder  func(ctx context.Context, text string) ([]float64, error)
	price     runstate.Price

	calls   atomic.Int64
	mu      sync.Mutex
	prompts []provider.Prompt
}

var (
	_ provider.ExecutionTools   = (*Tools)(nil)
	_ provider.ChatCaller       = (*Tools)(nil)
	_ provider.CompletionCaller = (*Tools)(nil)
	_ provider.EmbeddingCaller  = (*Tools)(nil)
)

var (
	WithTitle  = opts.ForName[Tools, string]("title")
	WithModels = opts.ForName[Tools, []provider.AvailableModel]("models")
	WithPrice  = opts.ForName[Tools, runstate.Price]("price")
)

// WithResponder sets the function answering chat and completion calls.
func WithResponder(r Responder) opts.Option[Tools] {
	return opts.Type[Tools](func(t *Tools) error {
		t.responder = r
		return nil
	})
}

// WithEmbedder sets the function answering embedding calls.
func WithEmbedder(fn func(ctx context.Context, text string) ([]float64, error)) opts.Option[Tools] {
	return opts.Type[Tools](func(t *Tools) error {
		t.embedder = fn
		return nil
	})
}

// WithListError makes ListModels fail.
func WithListError(err error) opts.Option[Tools] {
	return opts.Type[Tools](func(t *Tools) error {
		t.listErr = err
		return nil
	})
}

// New creates mock tools. Without explicit models it lists one model per supported variant.
func New(options ...opts.Option[Tools]) *Tools {
	t := &Tools{title: "Mock"}
	if err := opts.Apply(t, options); err != nil {
		panic(err)
	}
	if t.models == nil {
		for _, v := range types.Variants {
			if t.Supports(v) {
				t.models = append(t.models, provider.AvailableModel{
					Title:   "Mocked " + string(v),
					Name:    "mocked-" + string(v),
					Variant: v,
				})
			}
		}
	}
	return t
}

// Echo answers every prompt with its own content.
func Echo(options ...opts.Option[Tools]) *Tools {
	return New(append([]opts.Option[Tools]{
		WithTitle("Mocked echo"),
		WithResponder(func(_ context.Context, p provider.Prompt) (string, error) {
			return p.Content, nil
		}),
	}, options...)...)
}

// Scripted answers calls with the given contents in order, repeating the last one.
func Scripted(title string, contents ...string) *Tools {
	var n atomic.Int64
	return New(WithTitle(title), WithResponder(func(context.Context, provider.Prompt) (string, error) {
		if len(contents) == 0 {
			return "", errors.New("no scripted responses")
		}
		i := int(n.Add(1) - 1)
		return contents[min(i, len(contents)-1)], nil
	}))
}

// Failing fails every call with err.
func Failing(title string, err error) *Tools {
	return New(
		WithTitle(title),
		WithResponder(func(context.Context, provider.Prompt) (string, error) { return "", err }),
		WithEmbedder(func(context.Context, string) ([]float64, error) { return nil, err }),
	)
}

func (t *Tools) Title() string { return t.title }

func (t *Tools) ListModels(context.Context) ([]provider.AvailableModel, error) {
	if t.listErr != nil {
		return nil, t.listErr
	}
	return slices.Clone(t.models), nil
}

// Supports reports the capabilities configured on t.
func (t *Tools) Supports(variant types.ModelVariant) bool {
	switch variant {
	case types.VariantChat, types.VariantCompletion:
		return t.responder != nil
	case types.VariantEmbedding:
		return t.embedder != nil
	default:
		return false
	}
}

// Calls returns the number of model calls made.
func (t *Tools) Calls() int {
	return int(t.calls.Load())
}

// Prompts returns every prompt received, in call order.
func (t *Tools) Prompts() []provider.Prompt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.prompts)
}

func (t *Tools) record(p provider.Prompt) {
	t.calls.Add(1)
	t.mu.Lock()
	t.prompts = append(t.prompts, p)
	t.mu.Unlock()
}

func (t *Tools) CallChatModel(ctx context.Context, prompt provider.Prompt) (*provider.PromptResult, error) {
	return t.respond(ctx, prompt, types.VariantChat)
}

func (t *Tools) CallCompletionModel(ctx context.Context, prompt provider.Prompt) (*provider.PromptResult, error) {
	return t.respond(ctx, prompt, types.VariantCompletion)
}

func (t *Tools) respond(ctx context.Context, prompt provider.Prompt, variant types.ModelVariant) (*provider.PromptResult, error) {
	if t.responder == nil {
		return nil, &provider.ProviderCallError{Provider: t.title, Variant: variant, Err: provider.ErrUnsupported}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.record(prompt)

	timing := provider.StartTiming()
	content, err := t.responder(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &provider.PromptResult{
		Content:   content,
		ModelName: t.modelName(prompt, variant),
		Timing:    timing.Done(),
		Usage:     provider.ComputeUsage(prompt.Content, content, 0, 0, t.price),
	}, nil
}

func (t *Tools) CallEmbeddingModel(ctx context.Context, prompt provider.Prompt) (*provider.EmbeddingResult, error) {
	if t.embedder == nil {
		return nil, &provider.ProviderCallError{Provider: t.title, Variant: types.VariantEmbedding, Err: provider.ErrUnsupported}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.record(prompt)

	timing := provider.StartTiming()
	vector, err := t.embedder(ctx, prompt.Content)
	if err != nil {
		return nil, err
	}
	return &provider.EmbeddingResult{
		Vector:    vector,
		ModelName: t.modelName(prompt, types.VariantEmbedding),
		Timing:    timing.Done(),
		Usage:     provider.ComputeUsage(prompt.Content, "", 0, 0, t.price),
	}, nil
}

func (t *Tools) modelName(prompt provider.Prompt, variant types.ModelVariant) string {
	if prompt.ModelRequirements.ModelName != "" {
		return prompt.ModelRequirements.ModelName
	}
	for _, m := range t.models {
		if m.Variant == variant {
			return m.Name
		}
	}
	return "mocked"
}

// LengthEmbedder is a deterministic embedder returning rune, word and line counts.
func LengthEmbedder(_ context.Context, text string) ([]float64, error) {
	c := runstate.CountUsage(text)
	return []float64{float64(c.Characters), float64(c.Words), float64(c.Lines)}, nil
}
