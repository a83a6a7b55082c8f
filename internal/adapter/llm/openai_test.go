package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.Default()
}

func newDeepSeekForTest(baseURL string) *OpenAIProvider {
	return NewDeepSeekProvider(config.ProviderConfig{
		Name:    "deepseek",
		Type:    "deepseek",
		BaseURL: baseURL,
		APIKey:  "test-key",
	}, newTestLogger())
}

func TestOpenAIProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "deepseek-chat" {
			t.Errorf("model = %q, want default deepseek-chat", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != domain.PersonaPrompt {
			t.Errorf("persona not prepended: %+v", req.Messages)
		}
		if req.Messages[1].Content != "فين الأهرامات؟" {
			t.Errorf("user content = %q", req.Messages[1].Content)
		}

		resp := openaiResponse{
			ID:    "chatcmpl-123",
			Model: "deepseek-chat",
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: "في الجيزة يا باشا"},
				FinishReason: "stop",
			}},
			Usage: openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	resp, err := newDeepSeekForTest(server.URL).Chat(context.Background(), domain.ChatRequest{
		Messages: domain.UserMessage("فين الأهرامات؟"),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "في الجيزة يا باشا" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Message.Role != domain.RoleAssistant {
		t.Errorf("role = %q", resp.Message.Role)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestOpenAIProviderChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	}))
	defer server.Close()

	_, err := newDeepSeekForTest(server.URL).Chat(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi")})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("expected ErrProviderError, got %v", err)
	}
}

func TestOpenAIProviderChatHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"rate limited"}`)
	}))
	defer server.Close()

	_, err := newDeepSeekForTest(server.URL).Chat(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi")})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Errorf("expected ErrRateLimit, got %v", err)
	}
}

func TestOpenAIProviderChatBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer server.Close()

	_, err := newDeepSeekForTest(server.URL).Chat(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi")})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("expected ErrProviderError, got %v", err)
	}
}

func TestOpenAIProviderChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream flags not set: %+v", req)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","choices":[{"delta":{"role":"assistant"},"finish_reason":null}]}`,
			`{"id":"1","choices":[{"delta":{"content":"أهلا"},"finish_reason":null}]}`,
			`{"id":"1","choices":[{"delta":{"content":" بيك\nفي مصر"},"finish_reason":null}]}`,
			`{"id":"1","choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"1","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	ch, err := newDeepSeekForTest(server.URL).ChatStream(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi")})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var b strings.Builder
	var usage *domain.Usage
	var done bool
	for d := range ch {
		if d.Err != nil {
			t.Fatalf("unexpected stream error: %v", d.Err)
		}
		b.WriteString(d.Content)
		if d.Usage != nil {
			usage = d.Usage
		}
		done = done || d.Done
	}
	if b.String() != "أهلا بيك\nفي مصر" {
		t.Errorf("streamed = %q", b.String())
	}
	if usage == nil || usage.TotalTokens != 8 {
		t.Errorf("usage = %+v", usage)
	}
	if !done {
		t.Error("expected a Done delta")
	}
}

func TestOpenAIProviderChatStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"bad key"}`)
	}))
	defer server.Close()

	_, err := newDeepSeekForTest(server.URL).ChatStream(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi")})
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestOpenAIProviderConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newDeepSeekForTest(url).Chat(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi")})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("expected ErrProviderError, got %v", err)
	}
}

func TestOpenAIProviderChatStreamErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"choices\":[{\"delta\":{\"content\":\"أهلا\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"Internal server error\",\"type\":\"server_error\"}}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	ch, err := newDeepSeekForTest(server.URL).ChatStream(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi")})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var deltas []domain.StreamDelta
	for d := range ch {
		deltas = append(deltas, d)
	}
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want content then error: %+v", len(deltas), deltas)
	}
	if deltas[0].Content != "أهلا" {
		t.Errorf("first delta = %+v", deltas[0])
	}
	last := deltas[1]
	if !last.Done || !errors.Is(last.Err, domain.ErrProviderError) {
		t.Fatalf("last delta = %+v, want terminal provider error", last)
	}
	if !strings.Contains(last.Err.Error(), "Internal server error") || !strings.Contains(last.Err.Error(), "server_error") {
		t.Errorf("err = %v, want upstream message and type", last.Err)
	}
}

func TestParseOpenAIChunkSkipsEmpty(t *testing.T) {
	d, err := parseOpenAIChunk([]byte(`{"choices":[{"delta":{"role":"assistant"}}]}`))
	if err != nil || d != nil {
		t.Errorf("got %+v, %v; want nil, nil", d, err)
	}
	if _, err := parseOpenAIChunk([]byte(`{bad`)); err == nil {
		t.Error("expected error for malformed chunk")
	}
}

func TestNewDeepSeekDefaults(t *testing.T) {
	p := NewDeepSeekProvider(config.ProviderConfig{Name: "deepseek"}, newTestLogger())
	if p.baseURL != deepseekBaseURL || p.model != deepseekModel {
		t.Errorf("defaults = %q %q", p.baseURL, p.model)
	}
}

func TestGroqProviderChatOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("groq must not request streaming")
		}
		if req.Model != groqModel {
			t.Errorf("model = %q", req.Model)
		}
		fmt.Fprint(w, `{"id":"g","model":"llama3-70b-8192","choices":[{"message":{"role":"assistant","content":"تمام"}}]}`)
	}))
	defer server.Close()

	var p domain.LLMProvider = NewGroqProvider(config.ProviderConfig{Name: "groq", BaseURL: server.URL, APIKey: "k"}, newTestLogger())
	if _, ok := p.(domain.StreamingLLMProvider); ok {
		t.Fatal("groq provider should not implement streaming")
	}
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Messages: domain.UserMessage("hi"), Stream: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "تمام" || p.Name() != "groq" {
		t.Errorf("resp = %+v name = %q", resp, p.Name())
	}
}
