// Package compat serves chat, completion and embedding prompts through any OpenAI compatible
// endpoint, including Azure OpenAI deployments and local model servers.
package compat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/types"
	"github.com/sashabaranov/go-openai"
)

// Config describes an OpenAI compatible endpoint.
type Config struct {
	Title      string `yaml:"title" json:"title"`
	BaseURL    string `yaml:"baseUrl" json:"baseUrl,omitempty"`
	APIKey     string `yaml:"apiKey" json:"-"`
	Azure      bool   `yaml:"azure" json:"azure,omitempty"`
	APIVersion string `yaml:"apiVersion" json:"apiVersion,omitempty"`
	// Models replaces model discovery with a fixed list.
	Models     []provider.AvailableModel `yaml:"models" json:"models,omitempty"`
	Pricing    provider.Pricing          `yaml:"pricing" json:"pricing,omitempty"`
	HTTPClient *http.Client              `yaml:"-" json:"-"`
}

// Tools is an execution tools implementation over an OpenAI compatible API.
type Tools struct {
	client  *openai.Client
	title   string
	models  []provider.AvailableModel
	pricing provider.Pricing
}

var (
	_ provider.ExecutionTools   = (*Tools)(nil)
	_ provider.ChatCaller       = (*Tools)(nil)
	_ provider.CompletionCaller = (*Tools)(nil)
	_ provider.EmbeddingCaller  = (*Tools)(nil)
)

// New creates tools for cfg.
func New(cfg Config) (*Tools, error) {
	var clientCfg openai.ClientConfig
	switch {
	case cfg.Azure:
		if cfg.BaseURL == "" {
			return nil, errors.New("azure requires a base url")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	default:
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	title := cfg.Title
	if title == "" {
		title = "OpenAI compatible"
		if cfg.Azure {
			title = "Azure OpenAI"
		}
	}

	return &Tools{
		client:  openai.NewClientWithConfig(clientCfg),
		title:   title,
		models:  slices.Clone(cfg.Models),
		pricing: cfg.Pricing,
	}, nil
}

func (t *Tools) Title() string {
	return t.title
}

func (t *Tools) ListModels(ctx context.Context) ([]provider.AvailableModel, error) {
	if t.models != nil {
		return slices.Clone(t.models), nil
	}

	list, err := t.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	models := make([]provider.AvailableModel, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, provider.AvailableModel{Title: m.ID, Name: m.ID, Variant: provider.GuessVariant(m.ID)})
	}
	return models, nil
}

func (t *Tools) CallChatModel(ctx context.Context, prompt provider.Prompt) (*provider.PromptResult, error) {
	req := prompt.ModelRequirements
	model, err := t.modelFor(req, types.VariantChat)
	if err != nil {
		return nil, err
	}

	var msgs []openai.ChatCompletionMessage
	if req.SystemMessage != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemMessage})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.Content})

	chatReq := openai.ChatCompletionRequest{Model: model, Messages: msgs}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	timing := provider.StartTiming()
	resp, err := t.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, t.callErr(types.VariantChat, model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, t.callErr(types.VariantChat, model, errors.New("no choices returned"))
	}

	content := resp.Choices[0].Message.Content
	return t.result(prompt, content, modelOr(resp.Model, model), timing, resp.Usage), nil
}

func (t *Tools) CallCompletionModel(ctx context.Context, prompt provider.Prompt) (*provider.PromptResult, error) {
	req := prompt.ModelRequirements
	model, err := t.modelFor(req, types.VariantCompletion)
	if err != nil {
		return nil, err
	}

	complReq := openai.CompletionRequest{Model: model, Prompt: prompt.Content}
	if req.Temperature != nil {
		complReq.Temperature = float32(*req.Temperature)
	}

	timing := provider.StartTiming()
	resp, err := t.client.CreateCompletion(ctx, complReq)
	if err != nil {
		return nil, t.callErr(types.VariantCompletion, model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, t.callErr(types.VariantCompletion, model, errors.New("no choices returned"))
	}

	return t.result(prompt, resp.Choices[0].Text, modelOr(resp.Model, model), timing, usageOf(resp.Usage)), nil
}

func (t *Tools) CallEmbeddingModel(ctx context.Context, prompt provider.Prompt) (*provider.EmbeddingResult, error) {
	model, err := t.modelFor(prompt.ModelRequirements, types.VariantEmbedding)
	if err != nil {
		return nil, err
	}

	timing := provider.StartTiming()
	resp, err := t.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{prompt.Content},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, t.callErr(types.VariantEmbedding, model, err)
	}
	if len(resp.Data) == 0 {
		return nil, t.callErr(types.VariantEmbedding, model, errors.New("no embedding returned"))
	}

	vector := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float64(v)
	}
	in := int64(resp.Usage.PromptTokens)
	return &provider.EmbeddingResult{
		Vector:    vector,
		ModelName: model,
		Timing:    timing.Done(),
		Usage:     provider.ComputeUsage(prompt.Content, "", in, 0, t.pricing.Price(model, in, 0)),
	}, nil
}

func (t *Tools) result(prompt provider.Prompt, content, model string, timing provider.Timing, usage openai.Usage) *provider.PromptResult {
	in, out := int64(usage.PromptTokens), int64(usage.CompletionTokens)
	return &provider.PromptResult{
		Content:   content,
		ModelName: model,
		Timing:    timing.Done(),
		Usage:     provider.ComputeUsage(prompt.Content, content, in, out, t.pricing.Price(model, in, out)),
	}
}

// usageOf returns the reported usage, zero when the server left it out.
func usageOf(u *openai.Usage) openai.Usage {
	if u == nil {
		return openai.Usage{}
	}
	return *u
}

// modelFor picks the requested model, or the first configured model of the variant.
func (t *Tools) modelFor(req types.ModelRequirements, variant types.ModelVariant) (string, error) {
	if req.ModelName != "" {
		return req.ModelName, nil
	}
	for _, m := range t.models {
		if m.Variant == variant {
			return m.Name, nil
		}
	}
	if variant == types.VariantChat {
		return openai.GPT4oMini, nil
	}
	return "", t.callErr(variant, "", errors.New("no model name given and no default model configured"))
}

func (t *Tools) callErr(variant types.ModelVariant, model string, err error) error {
	return &provider.ProviderCallError{Provider: t.title, Variant: variant, Model: model, Err: err}
}

func modelOr(reported, requested string) string {
	if reported != "" {
		return reported
	}
	return requested
}
