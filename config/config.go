// Package config loads the folio configuration file.
//
// The file is YAML. ${VAR} references are expanded from the environment before
// parsing, after loading a .env file from the working directory when one exists.
//
//	providers:
//	  - kind: openai
//	    apiKey: ${OPENAI_API_KEY}
//	  - kind: compat
//	    title: Local
//	    baseUrl: http://localhost:11434/v1
//	storage:
//	  kind: badger
//	  dir: ~/.folio/cache
//	server:
//	  port: 4460
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/casualjim/folio/executor"
	"github.com/casualjim/folio/knowledge"
	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/provider/compat"
	"github.com/casualjim/folio/remote"
	"github.com/casualjim/folio/storage"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "folio.yaml"

// ProviderKind names an execution tools implementation.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderCompat ProviderKind = "compat"
	ProviderMock   ProviderKind = "mock"
)

// Config is the root of the configuration file.
type Config struct {
	Log       Log        `yaml:"log"`
	Providers []Provider `yaml:"providers" validate:"dive"`
	Storage   Storage    `yaml:"storage"`
	Executor  Executor   `yaml:"executor"`
	Knowledge Knowledge  `yaml:"knowledge"`
	Server    Server     `yaml:"server"`
	NATS      NATS       `yaml:"nats"`
}

type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Provider configures one set of execution tools. Providers are joined in file order.
type Provider struct {
	Kind          ProviderKind `yaml:"kind" validate:"required,oneof=openai compat mock"`
	compat.Config `yaml:",inline"`
}

type Storage struct {
	Kind storage.Kind `yaml:"kind" validate:"omitempty,oneof=memory badger localStorage sessionStorage"`
	Dir  string       `yaml:"dir" validate:"required_if=Kind badger"`
}

type Executor struct {
	MaxParallel int `yaml:"maxParallel" validate:"gte=0"`
}

type Knowledge struct {
	MaxParallel        int    `yaml:"maxParallel" validate:"gte=0"`
	MaxPieceChars      int    `yaml:"maxPieceChars" validate:"gte=0"`
	SkipInvalidSources bool   `yaml:"skipInvalidSources"`
	EmbeddingModel     string `yaml:"embeddingModel"`
}

type Server struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port" validate:"gte=0,lte=65535"`
	Path              string        `yaml:"path" validate:"omitempty,startswith=/"`
	InactivityTimeout time.Duration `yaml:"inactivityTimeout" validate:"gte=0"`
	// RateLimit caps the model calls per second of a session; zero disables it.
	RateLimit float64 `yaml:"rateLimit" validate:"gte=0"`
	RateBurst int     `yaml:"rateBurst" validate:"gte=0"`
	// Token, when set, must be presented as a bearer token by connecting clients.
	Token string `yaml:"token"`
}

// NATS enables the NATS session broker when URL is set.
type NATS struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log:     Log{Level: "info", Format: "console"},
		Storage: Storage{Kind: storage.KindMemory},
		Executor: Executor{
			MaxParallel: executor.DefaultMaxParallel,
		},
		Knowledge: Knowledge{
			MaxParallel:   knowledge.DefaultMaxParallel,
			MaxPieceChars: knowledge.DefaultMaxPieceChars,
		},
		Server: Server{
			Port:              remote.DefaultPort,
			Path:              remote.DefaultPath,
			InactivityTimeout: remote.DefaultInactivityTimeout,
		},
	}
}

// Load reads the configuration at path. An empty path reads DefaultFile when it
// exists and returns the defaults otherwise.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ServerOptions returns the server settings as remote options.
func (c *Config) ServerOptions() []remote.Option {
	var options []remote.Option
	if c.Server.Host != "" {
		options = append(options, remote.WithHost(c.Server.Host))
	}
	if c.Server.Port != 0 {
		options = append(options, remote.WithPort(c.Server.Port))
	}
	if c.Server.Path != "" {
		options = append(options, remote.WithPath(c.Server.Path))
	}
	if c.Server.InactivityTimeout > 0 {
		options = append(options, remote.WithInactivityTimeout(c.Server.InactivityTimeout))
	}
	if c.Executor.MaxParallel > 0 {
		options = append(options, remote.WithMaxParallel(c.Executor.MaxParallel))
	}
	if c.Server.RateLimit > 0 {
		burst := max(c.Server.RateBurst, 1)
		options = append(options, remote.WithRateLimit(rate.Limit(c.Server.RateLimit), burst))
	}
	return options
}

// KnowledgeOptions returns the knowledge preparation settings.
func (c *Config) KnowledgeOptions() knowledge.Options {
	o := knowledge.DefaultOptions()
	if c.Knowledge.MaxParallel > 0 {
		o.MaxParallel = c.Knowledge.MaxParallel
	}
	if c.Knowledge.MaxPieceChars > 0 {
		o.MaxPieceChars = c.Knowledge.MaxPieceChars
	}
	o.SkipInvalidSources = c.Knowledge.SkipInvalidSources
	o.EmbeddingModel = c.Knowledge.EmbeddingModel
	return o
}

// OpenStorage opens the configured storage backend.
func (c *Config) OpenStorage() (storage.Storage, error) {
	if c.Storage.Kind == storage.KindBadger {
		if err := os.MkdirAll(c.Storage.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
	}
	return storage.New(c.Storage.Kind, c.Storage.Dir)
}

// Tools builds the configured providers, joined in file order.
func (c *Config) Tools() (*provider.MultiTools, error) {
	tools := make([]provider.ExecutionTools, 0, len(c.Providers))
	for i, p := range c.Providers {
		t, err := p.Build()
		if err != nil {
			return nil, fmt.Errorf("provider %d (%s): %w", i, p.Kind, err)
		}
		tools = append(tools, t)
	}
	return provider.Join(tools...), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
