package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/folio/types"
)

// ExecutionTools is a model provider. A provider advertises what it can do by also
// implementing ChatCaller, CompletionCaller or EmbeddingCaller.
type ExecutionTools interface {
	Title() string
	ListModels(ctx context.Context) ([]AvailableModel, error)
}

// ChatCaller calls chat models.
type ChatCaller interface {
	CallChatModel(ctx context.Context, prompt Prompt) (*PromptResult, error)
}

// CompletionCaller calls text completion models.
type CompletionCaller interface {
	CallCompletionModel(ctx context.Context, prompt Prompt) (*PromptResult, error)
}

// EmbeddingCaller calls embedding models.
type EmbeddingCaller interface {
	CallEmbeddingModel(ctx context.Context, prompt Prompt) (*EmbeddingResult, error)
}

// capabilityReporter is implemented by wrappers whose method set does not reflect
// the capabilities of the tools they wrap.
type capabilityReporter interface {
	Supports(variant types.ModelVariant) bool
}

// Supports reports whether tools can serve calls of the given variant.
func Supports(tools ExecutionTools, variant types.ModelVariant) bool {
	if cr, ok := tools.(capabilityReporter); ok {
		return cr.Supports(variant)
	}
	return supportsByType(tools, variant)
}

func supportsByType(tools any, variant types.ModelVariant) bool {
	switch variant {
	case types.VariantChat:
		_, ok := tools.(ChatCaller)
		return ok
	case types.VariantCompletion:
		_, ok := tools.(CompletionCaller)
		return ok
	case types.VariantEmbedding:
		_, ok := tools.(EmbeddingCaller)
		return ok
	default:
		return false
	}
}

// CallChat calls the chat capability of tools.
func CallChat(ctx context.Context, tools ExecutionTools, prompt Prompt) (*PromptResult, error) {
	c, ok := tools.(ChatCaller)
	if !ok || !Supports(tools, types.VariantChat) {
		return nil, unsupported(tools, types.VariantChat)
	}
	return c.CallChatModel(ctx, prompt)
}

// CallCompletion calls the completion capability of tools.
func CallCompletion(ctx context.Context, tools ExecutionTools, prompt Prompt) (*PromptResult, error) {
	c, ok := tools.(CompletionCaller)
	if !ok || !Supports(tools, types.VariantCompletion) {
		return nil, unsupported(tools, types.VariantCompletion)
	}
	return c.CallCompletionModel(ctx, prompt)
}

// CallEmbedding calls the embedding capability of tools.
func CallEmbedding(ctx context.Context, tools ExecutionTools, prompt Prompt) (*EmbeddingResult, error) {
	c, ok := tools.(EmbeddingCaller)
	if !ok || !Supports(tools, types.VariantEmbedding) {
		return nil, unsupported(tools, types.VariantEmbedding)
	}
	return c.CallEmbeddingModel(ctx, prompt)
}

// Call dispatches a prompt to the chat or completion capability matching its variant.
func Call(ctx context.Context, tools ExecutionTools, prompt Prompt) (*PromptResult, error) {
	switch v := prompt.Variant(); v {
	case types.VariantChat:
		return CallChat(ctx, tools, prompt)
	case types.VariantCompletion:
		return CallCompletion(ctx, tools, prompt)
	default:
		return nil, fmt.Errorf("%w: %s prompts do not produce text", ErrUnsupported, v)
	}
}

func unsupported(tools ExecutionTools, variant types.ModelVariant) error {
	return &ProviderCallError{Provider: tools.Title(), Variant: variant, Err: ErrUnsupported}
}

// GuessVariant infers the variant of a model from its name, for APIs that do not report it.
func GuessVariant(model string) types.ModelVariant {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "embed"):
		return types.VariantEmbedding
	case strings.Contains(name, "instruct"), strings.HasPrefix(name, "davinci"), strings.HasPrefix(name, "babbage"):
		return types.VariantCompletion
	default:
		return types.VariantChat
	}
}
