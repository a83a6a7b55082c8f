package domain

import (
	"context"
	"fmt"
)

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "gemini", "deepseek").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
type StreamDelta struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
	// Err is set on the terminal delta when the stream broke before the
	// provider signalled completion. Content received so far remains valid.
	Err error `json:"-"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	// The channel is closed after the final delta.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}

// ProviderName identifies one of the supported model backends.
type ProviderName string

const (
	ProviderGemini   ProviderName = "gemini"
	ProviderDeepSeek ProviderName = "deepseek"
	ProviderGroq     ProviderName = "groq"
)

// AllProviders lists every supported backend.
var AllProviders = []ProviderName{ProviderGemini, ProviderDeepSeek, ProviderGroq}

// ParseProviderName validates s against the closed provider set.
// Unknown values are a caller error, never a fallback.
func ParseProviderName(s string) (ProviderName, error) {
	for _, p := range AllProviders {
		if string(p) == s {
			return p, nil
		}
	}
	return "", NewDomainError("ParseProviderName", ErrInvalidProvider, fmt.Sprintf("%q", s))
}
