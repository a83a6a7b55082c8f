package llm

import (
	"fmt"
	"log/slog"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
)

// NewProvider builds the adapter for one configured provider.
func NewProvider(pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch domain.ProviderName(pc.Type) {
	case domain.ProviderGemini:
		return NewGeminiProvider(pc, logger), nil
	case domain.ProviderDeepSeek:
		return NewDeepSeekProvider(pc, logger), nil
	case domain.ProviderGroq:
		return NewGroqProvider(pc, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

// BuildRegistry constructs every provider that has an API key, wrapping each
// in a circuit breaker when enabled. Providers without a key are skipped
// with a warning so the server can run with a subset of backends.
func BuildRegistry(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		if pc.APIKey == "" {
			logger.Warn("llm provider has no api key, skipping", "provider", pc.Name)
			continue
		}
		p, err := NewProvider(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if cfg.CircuitBreaker.Enabled {
			p = WithCircuitBreaker(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
		logger.Info("llm provider registered", "provider", pc.Name, "type", pc.Type, "model", pc.Model)
	}
	return reg, nil
}
