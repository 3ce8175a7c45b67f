package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/ducks/llm-tui/config"
	"github.com/ducks/llm-tui/errors"
)

// Registry maps provider names to adapters. It is built once at startup;
// lookups after that are read-only.
type Registry struct {
	providers map[ProviderID]Provider
}

// NewRegistry constructs adapters for every backend the configuration can
// support. Backends whose construction fails (for example Bedrock without an
// AWS environment) are skipped with a log line rather than failing startup.
func NewRegistry(ctx context.Context, cfg *config.Config, log *zap.Logger) *Registry {
	r := &Registry{providers: map[ProviderID]Provider{}}

	r.Register(NewOllamaProvider(cfg.Ollama.URL, log))

	if cfg.Anthropic.APIKey != "" {
		r.Register(NewAnthropicProvider(cfg.Anthropic.APIKey, log))
	}

	if bedrock, err := NewBedrockProvider(ctx, log); err == nil {
		r.Register(bedrock)
	} else {
		log.Debug("bedrock unavailable", zap.Error(err))
	}

	if cfg.OpenAI.APIKey != "" {
		r.Register(NewOpenAIProvider(cfg.OpenAI.APIKey, log))
	}

	if cfg.Gemini.APIKey != "" {
		if gemini, err := NewGeminiProvider(ctx, cfg.Gemini.APIKey, log); err == nil {
			r.Register(gemini)
		} else {
			log.Debug("gemini unavailable", zap.Error(err))
		}
	}

	return r
}

// Register adds or replaces the adapter for a provider name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get resolves a provider by id.
func (r *Registry) Get(id ProviderID) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, errors.New("provider %q is not configured", id)
	}
	return p, nil
}

// Available returns the ids of registered providers that currently report
// themselves usable.
func (r *Registry) Available() []ProviderID {
	var out []ProviderID
	for id, p := range r.providers {
		if p.IsAvailable() {
			out = append(out, id)
		}
	}
	return out
}
