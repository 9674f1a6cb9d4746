package llm

import (
	"context"
	"fmt"

	"github.com/harun/fablebot/pkg/prompt"
	"github.com/harun/fablebot/pkg/transcript"
)

// PromptedGenerator prepends the current game master prompt to every call.
// The prompt is never stored in the transcript, so prompt edits apply to running games.
type PromptedGenerator struct {
	provider Provider
	source   prompt.Source
}

// NewPromptedGenerator wraps provider with the prompt from source
func NewPromptedGenerator(provider Provider, source prompt.Source) *PromptedGenerator {
	return &PromptedGenerator{provider: provider, source: source}
}

// Name returns the wrapped provider's name
func (g *PromptedGenerator) Name() string {
	return g.provider.Name()
}

// Generate calls the provider with the system prompt followed by messages
func (g *PromptedGenerator) Generate(ctx context.Context, messages []transcript.Message) (string, error) {
	text := ""
	if g.source != nil {
		text = g.source.Current()
	}
	if text == "" {
		return g.provider.Generate(ctx, messages)
	}

	full := make([]transcript.Message, 0, len(messages)+1)
	full = append(full, transcript.Message{Role: transcript.RoleSystem, Content: text})
	full = append(full, messages...)
	return g.provider.Generate(ctx, full)
}

// ProviderConfig selects and configures a backend
type ProviderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Options  Options
}

// NewProvider builds the provider named by cfg.Provider
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Options), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Options), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}
