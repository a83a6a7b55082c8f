package llm

import (
	"context"
	"log/slog"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1"
	groqModel   = "llama3-70b-8192"
)

// GroqProvider serves Groq through its OpenAI-compatible endpoint.
// It answers in one piece: callers that want a stream get a single delta.
type GroqProvider struct {
	api *OpenAIProvider
}

// NewGroqProvider creates the Groq backend.
func NewGroqProvider(cfg config.ProviderConfig, logger *slog.Logger) *GroqProvider {
	return &GroqProvider{api: NewOpenAIProvider(cfg, groqBaseURL, groqModel, logger)}
}

// Chat implements domain.LLMProvider.
func (p *GroqProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Stream = false
	return p.api.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *GroqProvider) Name() string { return p.api.Name() }

var _ domain.LLMProvider = (*GroqProvider)(nil)
