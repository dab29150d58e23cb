package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/types"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func setupTestServer(t *testing.T, handler http.HandlerFunc) *Provider {
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
	})

	return New(
		option.WithBaseURL(server.URL+"/v1/"),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
}

func TestNew(t *testing.T) {
	p := New(option.WithAPIKey("k"))
	assert.NotNil(t, p.client)
	assert.Equal(t, "OpenAI", p.Title())
	assert.Equal(t, "Azure", p.WithTitle("Azure").Title())
}

func TestProvider_buildRequest(t *testing.T) {
	p := New(option.WithAPIKey("k"))
	temp := 0.3

	params := p.buildRequest(&provider.Prompt{
		Content: "Hello",
		ModelRequirements: types.ModelRequirements{
			ModelName:     "gpt-4o",
			Temperature:   &temp,
			SystemMessage: "Be brief",
		},
	})
	assert.Equal(t, "gpt-4o", params.Model.Value)
	assert.Len(t, params.Messages.Value, 2)
	assert.InDelta(t, 0.3, params.Temperature.Value, 1e-9)

	params = p.buildRequest(&provider.Prompt{Content: "Hello"})
	assert.Equal(t, DefaultModel, params.Model.Value)
	assert.Len(t, params.Messages.Value, 1)
	assert.False(t, params.Temperature.Present)
}

func TestProvider_CallChatModel(t *testing.T) {
	p := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "user", gjson.GetBytes(body, "messages.0.role").String())
		assert.Contains(t, string(body), "Write a haiku")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "Old pond. Frog jumps in."},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
		})
	})
	p.WithPricing(provider.Pricing{"gpt-4o-mini": {Prompt: 1_000_000, Completion: 1_000_000}})

	res, err := p.CallChatModel(context.Background(), provider.Prompt{Content: "Write a haiku"})
	require.NoError(t, err)
	assert.Equal(t, "Old pond. Frog jumps in.", res.Content)
	assert.Equal(t, "gpt-4o-mini", res.ModelName)
	assert.Equal(t, int64(12), res.Usage.Input.Tokens)
	assert.Equal(t, int64(8), res.Usage.Output.Tokens)
	assert.Equal(t, int64(5), res.Usage.Output.Words)
	assert.InDelta(t, 20, res.Usage.Price.Value, 1e-9)
	assert.False(t, res.Usage.Price.Uncertain)
}

func TestProvider_CallChatModel_Error(t *testing.T) {
	p := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := p.CallChatModel(context.Background(), provider.Prompt{Content: "x"})
	var pce *provider.ProviderCallError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, "OpenAI", pce.Provider)
	assert.Equal(t, types.VariantChat, pce.Variant)
}

func TestProvider_ListModels(t *testing.T) {
	p := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"id":"gpt-4o","object":"model","created":1,"owned_by":"openai"},
			{"id":"text-embedding-3-small","object":"model","created":1,"owned_by":"openai"},
			{"id":"gpt-3.5-turbo-instruct","object":"model","created":1,"owned_by":"openai"}
		]}`))
	})

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []provider.AvailableModel{{Title: "gpt-4o", Name: "gpt-4o", Variant: types.VariantChat}}, models)
}
