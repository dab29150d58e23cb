package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/provider/compat"
	"github.com/casualjim/folio/provider/mock"
	"github.com/casualjim/folio/provider/openai"
	"github.com/casualjim/folio/remote"
	"github.com/casualjim/folio/storage"
	"github.com/casualjim/folio/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
providers:
  - kind: openai
    apiKey: ${FOLIO_TEST_KEY}
  - kind: compat
    title: Local
    baseUrl: http://localhost:11434/v1
    models:
      - name: llama3
        variant: CHAT
    pricing:
      llama3:
        prompt: 0.1
        completion: 0.2
  - kind: mock
storage:
  kind: memory
executor:
  maxParallel: 3
knowledge:
  maxPieceChars: 400
  skipInvalidSources: true
server:
  port: 9000
  path: /run
  inactivityTimeout: 30s
  rateLimit: 2
`

func TestParse(t *testing.T) {
	t.Setenv("FOLIO_TEST_KEY", "sk-test")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "defaults survive partial files")
	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, ProviderOpenAI, cfg.Providers[0].Kind)
	assert.Equal(t, "sk-test", cfg.Providers[0].APIKey)
	assert.Equal(t, "Local", cfg.Providers[1].Title)
	require.Len(t, cfg.Providers[1].Models, 1)
	assert.Equal(t, types.VariantChat, cfg.Providers[1].Models[0].Variant)
	assert.InDelta(t, 0.2, cfg.Providers[1].Pricing["llama3"].Completion, 1e-9)

	assert.Equal(t, 3, cfg.Executor.MaxParallel)
	assert.Equal(t, 30*time.Second, cfg.Server.InactivityTimeout)
	assert.Equal(t, "/run", cfg.Server.Path)

	ko := cfg.KnowledgeOptions()
	assert.Equal(t, 400, ko.MaxPieceChars)
	assert.True(t, ko.SkipInvalidSources)
	assert.Equal(t, 4, ko.MaxParallel)

	assert.Len(t, cfg.ServerOptions(), 5)
	srv := remote.NewServer(func(context.Context, uuid.UUID) (provider.ExecutionTools, error) {
		return mock.Echo(), nil
	}, cfg.ServerOptions()...)
	assert.Equal(t, ":9000", srv.Addr())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "unknown provider", yaml: "providers:\n  - kind: bard\n", want: "Kind"},
		{name: "missing provider kind", yaml: "providers:\n  - title: x\n", want: "required"},
		{name: "badger without dir", yaml: "storage:\n  kind: badger\n", want: "Dir"},
		{name: "bad log level", yaml: "log:\n  level: loud\n", want: "Level"},
		{name: "port out of range", yaml: "server:\n  port: 70000\n", want: "Port"},
		{name: "relative path", yaml: "server:\n  path: run\n", want: "Path"},
		{name: "bad nats url", yaml: "nats:\n  url: not a url\n", want: "URL"},
		{name: "malformed yaml", yaml: "providers: [", want: "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing default file yields defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		t.Chdir(t.TempDir())
		_, err := Load("nope.yaml")
		assert.ErrorContains(t, err, "failed to read config")
	})

	t.Run("reads .env", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		t.Setenv("FOLIO_DOTENV_KEY", "")
		require.NoError(t, os.Unsetenv("FOLIO_DOTENV_KEY"))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FOLIO_DOTENV_KEY=from-dotenv\n"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("providers:\n  - kind: compat\n    apiKey: ${FOLIO_DOTENV_KEY}\n"), 0o600))

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", cfg.Providers[0].APIKey)
	})
}

func TestTools(t *testing.T) {
	cfg, err := Parse([]byte("providers:\n  - kind: openai\n    apiKey: sk\n  - kind: compat\n  - kind: mock\n    title: Fake\n"))
	require.NoError(t, err)

	tools, err := cfg.Tools()
	require.NoError(t, err)
	joined := tools.Tools()
	require.Len(t, joined, 3)
	assert.IsType(t, &openai.Provider{}, joined[0])
	assert.IsType(t, &compat.Tools{}, joined[1])
	assert.IsType(t, &mock.Tools{}, joined[2])
	assert.Equal(t, "Fake", joined[2].Title())
	assert.Equal(t, "OpenAI compatible", joined[1].Title())
}

func TestOpenStorage(t *testing.T) {
	cfg := Default()
	s, err := cfg.OpenStorage()
	require.NoError(t, err)
	assert.IsType(t, &storage.Memory{}, s)

	cfg.Storage = Storage{Kind: storage.KindBadger, Dir: filepath.Join(t.TempDir(), "cache")}
	s, err = cfg.OpenStorage()
	require.NoError(t, err)
	b, ok := s.(*storage.Badger)
	require.True(t, ok)
	require.NoError(t, b.Close())

	cfg.Storage = Storage{Kind: storage.KindLocalStorage}
	_, err = cfg.OpenStorage()
	var mismatch *storage.EnvironmentMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
