package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when a prompt does not name a model.
const DefaultModel = openai.ChatModelGPT4oMini

// Provider serves chat prompts through the OpenAI API.
type Provider struct {
	client  *openai.Client
	title   string
	pricing provider.Pricing
}

var (
	_ provider.ExecutionTools = (*Provider)(nil)
	_ provider.ChatCaller     = (*Provider)(nil)
)

func New(options ...option.RequestOption) *Provider {
	client := openai.NewClient(options...)
	return &Provider{
		client: client,
		title:  "OpenAI",
	}
}

// WithTitle renames the provider.
func (p *Provider) WithTitle(title string) *Provider {
	p.title = title
	return p
}

// WithPricing sets the price table used to compute the cost of calls.
func (p *Provider) WithPricing(pricing provider.Pricing) *Provider {
	p.pricing = pricing
	return p
}

func (p *Provider) Title() string {
	return p.title
}

func (p *Provider) ListModels(ctx context.Context) ([]provider.AvailableModel, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]provider.AvailableModel, 0, len(page.Data))
	for _, m := range page.Data {
		if variant := provider.GuessVariant(m.ID); variant == types.VariantChat {
			models = append(models, provider.AvailableModel{Title: m.ID, Name: m.ID, Variant: variant})
		}
	}
	return models, nil
}

func (p *Provider) buildRequest(prompt *provider.Prompt) openai.ChatCompletionNewParams {
	req := prompt.ModelRequirements
	model := req.ModelName
	if model == "" {
		model = DefaultModel
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(req.SystemMessage) != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemMessage))
	}
	msgs = append(msgs, openai.UserMessage(prompt.Content))

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(model),
		N:        openai.Int(1),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func (p *Provider) CallChatModel(ctx context.Context, prompt provider.Prompt) (*provider.PromptResult, error) {
	params := p.buildRequest(&prompt)
	timing := provider.StartTiming()

	chat, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &provider.ProviderCallError{Provider: p.title, Variant: types.VariantChat, Model: params.Model.Value, Err: err}
	}
	if len(chat.Choices) == 0 {
		return nil, &provider.ProviderCallError{Provider: p.title, Variant: types.VariantChat, Model: chat.Model, Err: fmt.Errorf("no choices returned")}
	}

	content := chat.Choices[0].Message.Content
	in, out := chat.Usage.PromptTokens, chat.Usage.CompletionTokens
	return &provider.PromptResult{
		Content:   content,
		ModelName: chat.Model,
		Timing:    timing.Done(),
		Usage:     provider.ComputeUsage(prompt.Content, content, in, out, p.pricing.Price(chat.Model, in, out)),
	}, nil
}
