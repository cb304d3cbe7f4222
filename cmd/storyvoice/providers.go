package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/storyvoice/internal/config"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/resilience"
	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	"github.com/MrWong99/storyvoice/pkg/provider/llm/anyllm"
	"github.com/MrWong99/storyvoice/pkg/provider/llm/openai"
)

// registerBuiltinProviders wires all built-in LLM factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai talks to the API directly so organisation and timeout options
	// are honoured.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if raw := optString(entry.Options, "timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(d))
		}
		if n := optInt(entry.Options, "context_window"); n > 0 {
			opts = append(opts, openai.WithContextWindow(n))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// The remaining hosted backends share the same pattern: optional APIKey
	// plus optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			opts := anyllmOptions(entry)
			if entry.APIKey != "" {
				opts = append(opts, anyllm.WithAPIKey(entry.APIKey))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		p, err := anyllm.New("ollama", entry.Model, anyllmOptions(entry)...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// anyllmOptions returns the options every any-llm-go backend shares.
func anyllmOptions(entry config.ProviderEntry) []anyllm.Option {
	var opts []anyllm.Option
	if entry.BaseURL != "" {
		opts = append(opts, anyllm.WithBaseURL(entry.BaseURL))
	}
	if n := optInt(entry.Options, "context_window"); n > 0 {
		opts = append(opts, anyllm.WithContextWindow(n))
	}
	return opts
}

// buildProvider instantiates the configured primary LLM. When fallbacks are
// configured the primary and every fallback are wrapped in a
// [resilience.LLMFallback] with one circuit breaker per backend.
func buildProvider(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}
	if len(cfg.Providers.Fallbacks) == 0 {
		return primary, nil
	}

	cb := cfg.CircuitBreaker
	fb := resilience.NewLLMFallback(primary, entryLabel(cfg.Providers.LLM), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			HalfOpenMax:  cb.HalfOpenMax,
		},
		OnFailover: func(ctx context.Context, failed string) {
			m.RecordFailover(ctx, failed)
			slog.WarnContext(ctx, "llm provider failed, trying next", "provider", failed)
		},
	})
	for i, entry := range cfg.Providers.Fallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("providers.fallbacks[%d]: %w", i, err)
		}
		fb.AddFallback(entryLabel(entry), p)
	}
	slog.Info("llm failover chain", "providers", fb.Names())
	return fb, nil
}

// providerChain returns the labels of the primary and fallback providers in
// failover order.
func providerChain(cfg *config.Config) []string {
	chain := []string{entryLabel(cfg.Providers.LLM)}
	for _, e := range cfg.Providers.Fallbacks {
		chain = append(chain, entryLabel(e))
	}
	return chain
}

// entryLabel names a provider entry for logs and metrics.
func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

// optString extracts a string value from a provider options map.
// Returns "" if the key is absent or not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optInt extracts an integer value from a provider options map. YAML
// decodes whole numbers as int; JSON-style floats are truncated.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
