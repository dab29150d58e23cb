package compat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func setupTestServer(t *testing.T, cfg Config, handler http.HandlerFunc) *Tools {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL + "/v1"
	if cfg.Azure {
		cfg.BaseURL = server.URL
	}
	cfg.APIKey = "test-key"
	tools, err := New(cfg)
	require.NoError(t, err)
	return tools
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestTools_CallChatModel(t *testing.T) {
	tools := setupTestServer(t, Config{Title: "Local"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "llama3", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "system", gjson.GetBytes(body, "messages.0.role").String())
		assert.Equal(t, "Summarize this", gjson.GetBytes(body, "messages.1.content").String())

		writeJSON(w, `{"id":"1","object":"chat.completion","model":"llama3","choices":[{"index":0,"message":{"role":"assistant","content":"Short summary."}}],"usage":{"prompt_tokens":4,"completion_tokens":3,"total_tokens":7}}`)
	})

	res, err := tools.CallChatModel(context.Background(), provider.Prompt{
		Content:           "Summarize this",
		ModelRequirements: types.ModelRequirements{ModelName: "llama3", SystemMessage: "Be terse"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Short summary.", res.Content)
	assert.Equal(t, "llama3", res.ModelName)
	assert.Equal(t, int64(4), res.Usage.Input.Tokens)
	assert.Equal(t, int64(3), res.Usage.Output.Tokens)
	assert.Equal(t, int64(2), res.Usage.Output.Words)
	assert.True(t, res.Usage.Price.Uncertain)
}

func TestTools_CallCompletionModel(t *testing.T) {
	tools := setupTestServer(t, Config{
		Models:  []provider.AvailableModel{{Name: "gpt-3.5-turbo-instruct", Variant: types.VariantCompletion}},
		Pricing: provider.Pricing{"gpt-3.5-turbo-instruct": {Prompt: 2_000_000, Completion: 0}},
	}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "Once upon", gjson.GetBytes(body, "prompt").String())
		writeJSON(w, `{"id":"2","object":"text_completion","model":"gpt-3.5-turbo-instruct","choices":[{"index":0,"text":" a time"}],"usage":{"prompt_tokens":2,"completion_tokens":2,"total_tokens":4}}`)
	})

	res, err := tools.CallCompletionModel(context.Background(), provider.Prompt{Content: "Once upon"})
	require.NoError(t, err)
	assert.Equal(t, " a time", res.Content)
	assert.InDelta(t, 4, res.Usage.Price.Value, 1e-9)

	t.Run("without usage", func(t *testing.T) {
		tools := setupTestServer(t, Config{
			Models: []provider.AvailableModel{{Name: "instruct", Variant: types.VariantCompletion}},
		}, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"id":"5","object":"text_completion","model":"instruct","choices":[{"index":0,"text":"there was"}]}`)
		})

		res, err := tools.CallCompletionModel(context.Background(), provider.Prompt{Content: "Once upon"})
		require.NoError(t, err)
		assert.Equal(t, "there was", res.Content)
		assert.Zero(t, res.Usage.Input.Tokens)
		assert.Zero(t, res.Usage.Output.Tokens)
		assert.Equal(t, int64(2), res.Usage.Output.Words)
	})
}

func TestTools_CallEmbeddingModel(t *testing.T) {
	tools := setupTestServer(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		writeJSON(w, `{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25]}],"usage":{"prompt_tokens":3,"total_tokens":3}}`)
	})

	res, err := tools.CallEmbeddingModel(context.Background(), provider.Prompt{
		Content:           "folio",
		ModelRequirements: types.ModelRequirements{ModelName: "text-embedding-3-small"},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.25}, res.Vector)
	assert.Equal(t, int64(3), res.Usage.Input.Tokens)

	_, err = tools.CallEmbeddingModel(context.Background(), provider.Prompt{Content: "no model"})
	var pce *provider.ProviderCallError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, types.VariantEmbedding, pce.Variant)
}

func TestTools_ListModels(t *testing.T) {
	tools := setupTestServer(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		writeJSON(w, `{"object":"list","data":[{"id":"llama3","object":"model"},{"id":"nomic-embed-text","object":"model"}]}`)
	})

	models, err := tools.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []provider.AvailableModel{
		{Title: "llama3", Name: "llama3", Variant: types.VariantChat},
		{Title: "nomic-embed-text", Name: "nomic-embed-text", Variant: types.VariantEmbedding},
	}, models)

	fixed, err := New(Config{Models: []provider.AvailableModel{{Name: "x", Variant: types.VariantChat}}})
	require.NoError(t, err)
	models, err = fixed.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 1)
}

func TestTools_Errors(t *testing.T) {
	tools := setupTestServer(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	})

	_, err := tools.CallChatModel(context.Background(), provider.Prompt{Content: "x"})
	var pce *provider.ProviderCallError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, "OpenAI compatible", pce.Provider)
	assert.Contains(t, err.Error(), "slow down")
}

func TestTools_Azure(t *testing.T) {
	tools := setupTestServer(t, Config{Azure: true, APIVersion: "2024-06-01"}, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/openai/deployments/"), r.URL.Path)
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		writeJSON(w, `{"id":"3","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`)
	})
	assert.Equal(t, "Azure OpenAI", tools.Title())

	res, err := tools.CallChatModel(context.Background(), provider.Prompt{Content: "x", ModelRequirements: types.ModelRequirements{ModelName: "gpt-4o"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)

	_, err = New(Config{Azure: true})
	assert.Error(t, err)
}

func TestTools_Join(t *testing.T) {
	failing := setupTestServer(t, Config{Title: "Down", Models: []provider.AvailableModel{{Name: "m", Variant: types.VariantChat}}}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	working := setupTestServer(t, Config{Title: "Up", Models: []provider.AvailableModel{{Name: "m", Variant: types.VariantChat}}}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id":"4","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"fallback"}}],"usage":{}}`)
	})

	res, err := provider.Join(failing, working).CallChatModel(context.Background(), provider.Prompt{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Content)
}
