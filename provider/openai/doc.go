/*
Package openai implements chat execution tools on top of the official OpenAI client.

The tools list the account's models and serve chat prompts. Each result carries the token
usage reported by the API, text counts for both sides of the call, and a price when the
model appears in the configured pricing table.

	tools := openai.New(option.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
	result, err := tools.CallChatModel(ctx, provider.Prompt{Content: "Hello"})

Use option.WithBaseURL to point the tools at an OpenAI compatible endpoint.
*/
package openai
