// Package provider is the boundary between pipelines and model APIs.
//
// A provider implements ExecutionTools and advertises its capabilities by also
// implementing ChatCaller, CompletionCaller or EmbeddingCaller. Callers go
// through Call, CallChat, CallCompletion and CallEmbedding, which fail with
// ErrUnsupported when the capability is missing.
//
// Join combines providers into a MultiTools. A call goes to the first provider,
// in join order, that supports the prompt's variant; the next one is tried when
// it fails. When every candidate fails the call returns an
// *AggregatedFallbackError listing each *ProviderCallError.
//
//	tools := provider.Join(openai.New(option.WithAPIKey(key)), compat.New(local))
//	result, err := provider.Call(ctx, tools, provider.Prompt{
//		Content:           "Summarize {text}",
//		ModelRequirements: types.ModelRequirements{Variant: types.VariantChat},
//	})
//
// Limit and CountUsage wrap any provider to throttle its calls or total their usage.
package provider
