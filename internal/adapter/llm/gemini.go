package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
	"egyptoai/internal/infra/tracer"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com"
	geminiModel   = "gemini-2.0-flash"
)

// GeminiProvider implements domain.StreamingLLMProvider for the Google Gemini API.
type GeminiProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGeminiProvider creates a provider for the Google Gemini API.
func NewGeminiProvider(cfg config.ProviderConfig, logger *slog.Logger) *GeminiProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = geminiModel
	}

	return &GeminiProvider{
		name:    cfg.Name,
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.ProviderAttr(p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, req.Model)

	respBody, err := doJSONRequest(ctx, p.client, url, body, p.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: unmarshal response: %w", domain.ErrProviderError, err)
	}
	if len(gemResp.Candidates) == 0 {
		err := fmt.Errorf("%w: response has no candidates", domain.ErrProviderError)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromGeminiResponse(gemResp)
	result.Model = req.Model
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return p.name }

// The key travels in a header so it never shows up in URL logs.
func (p *GeminiProvider) headers() map[string]string {
	return map[string]string{"x-goog-api-key": p.apiKey}
}

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *streamError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ChatStream implements domain.StreamingLLMProvider. Gemini closes the body
// after the last chunk instead of sending a terminal marker.
func (p *GeminiProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, req.Model)

	httpResp, err := doStreamRequest(ctx, p.client, url, body, p.headers())
	if err != nil {
		return nil, err
	}

	return parseSSEStream(ctx, p.logger, httpResp.Body, parseGeminiChunk), nil
}

func parseGeminiChunk(data []byte) (*domain.StreamDelta, error) {
	var chunk geminiResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Error != nil {
		return chunk.Error.delta(), nil
	}

	delta := &domain.StreamDelta{}
	if len(chunk.Candidates) > 0 {
		delta.Content = joinParts(chunk.Candidates[0].Content.Parts)
	}
	if chunk.UsageMetadata != nil {
		delta.Usage = &domain.Usage{
			PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
			CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      chunk.UsageMetadata.TotalTokenCount,
		}
	}
	if delta.Content == "" && delta.Usage == nil {
		return nil, nil
	}
	return delta, nil
}

func toGeminiRequest(req domain.ChatRequest) geminiRequest {
	gemReq := geminiRequest{}

	var system []geminiPart
	for _, m := range withPersona(req.Messages) {
		if m.Role == domain.RoleSystem {
			system = append(system, geminiPart{Text: m.Content})
			continue
		}

		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		gemReq.Contents = append(gemReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	gemReq.SystemInstruction = &geminiContent{Parts: system}

	if req.MaxTokens > 0 || req.Temperature > 0 {
		gc := &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature > 0 {
			t := req.Temperature
			gc.Temperature = &t
		}
		gemReq.GenerationConfig = gc
	}

	return gemReq
}

func fromGeminiResponse(resp geminiResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{
		CreatedAt: time.Now(),
	}

	if resp.UsageMetadata != nil {
		result.Usage = domain.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	result.Message = domain.Message{
		Role:      domain.RoleAssistant,
		Timestamp: result.CreatedAt,
	}
	if len(resp.Candidates) > 0 {
		result.Message.Content = joinParts(resp.Candidates[0].Content.Parts)
	}
	return result
}

func joinParts(parts []geminiPart) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.Text)
	}
	return b.String()
}
