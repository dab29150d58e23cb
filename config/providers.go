package config

import (
	"fmt"

	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/provider/compat"
	"github.com/casualjim/folio/provider/mock"
	"github.com/casualjim/folio/provider/openai"
	"github.com/openai/openai-go/option"
)

// Build creates the execution tools described by p.
func (p Provider) Build() (provider.ExecutionTools, error) {
	switch p.Kind {
	case ProviderOpenAI:
		var options []option.RequestOption
		if p.APIKey != "" {
			options = append(options, option.WithAPIKey(p.APIKey))
		}
		if p.BaseURL != "" {
			options = append(options, option.WithBaseURL(p.BaseURL))
		}
		tools := openai.New(options...).WithPricing(p.Pricing)
		if p.Title != "" {
			tools.WithTitle(p.Title)
		}
		return tools, nil
	case ProviderCompat:
		return compat.New(p.Config)
	case ProviderMock:
		tools := mock.Echo()
		if p.Title != "" {
			tools = mock.Echo(mock.WithTitle(p.Title))
		}
		return tools, nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
	}
}
