package consensus

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
)

// NewAdapter builds the adapter for one backend from its configuration.
// The HTTP client carries the configured timeout, which bounds every call
// the adapter makes. A positive RateLimit throttles calls to that many per
// second.
func NewAdapter(id provider.ID, pc config.ProviderConfig) (provider.Adapter, error) {
	p, err := NewProvider(id, pc)
	if err != nil {
		return nil, err
	}
	llm := provider.NewLLM(id, p, pc.Settings())
	if pc.RateLimit > 0 {
		llm.WithLimiter(rate.NewLimiter(rate.Limit(pc.RateLimit), 1))
	}
	return llm, nil
}

// NewProvider builds the raw chat-completion client for one backend.
func NewProvider(id provider.ID, pc config.ProviderConfig) (provider.Provider, error) {
	client := &http.Client{Timeout: pc.Timeout}

	switch id {
	case provider.OpenAIID:
		opts := []provider.OpenAIOption{provider.WithOpenAIHTTPClient(client)}
		if pc.BaseURL != "" {
			opts = append(opts, provider.WithOpenAIBaseURL(pc.BaseURL))
		}
		return provider.NewOpenAI(pc.APIKey, opts...)
	case provider.GeminiID:
		opts := []provider.GoogleOption{provider.WithGoogleHTTPClient(client)}
		if pc.BaseURL != "" {
			opts = append(opts, provider.WithGoogleBaseURL(pc.BaseURL))
		}
		return provider.NewGoogle(pc.APIKey, opts...)
	case provider.ClaudeID:
		opts := []provider.AnthropicOption{provider.WithAnthropicHTTPClient(client)}
		if pc.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(pc.BaseURL))
		}
		return provider.NewAnthropic(pc.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
}

// NewFromConfig builds an engine over every enabled backend that has an API
// key. Enabled backends without a key are skipped with a warning; Validate
// reports them as configuration errors.
func NewFromConfig(cfg config.Config, opts ...Option) (*Engine, error) {
	e := New(cfg, nil, opts...)

	reg := provider.NewRegistry()
	for _, id := range cfg.Orchestration().Enabled {
		pc := cfg.Providers[id]
		if pc.APIKey == "" {
			e.logger.Warn("provider enabled without API key, skipping", "provider", id)
			continue
		}
		a, err := NewAdapter(id, pc)
		if err != nil {
			return nil, fmt.Errorf("initializing %s: %w", id, err)
		}
		reg.Register(a)
		e.logger.Debug("provider initialized", "provider", id, "model", pc.Model)
	}

	e.adapters = reg.Adapters()
	e.logger.Info("consensus engine ready",
		"providers", reg.IDs(),
		"threshold", cfg.ConsensusThreshold)
	return e, nil
}
