// Package transcribe turns uploaded voice notes into prompts via Whisper.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
)

// Whisper implements domain.Transcriber on the OpenAI audio API.
type Whisper struct {
	api    *openai.Client
	model  string
	logger *slog.Logger
}

var _ domain.Transcriber = (*Whisper)(nil)

// NewWhisper creates a transcriber. An empty model defaults to whisper-1.
func NewWhisper(cfg config.TranscribeConfig, client *http.Client, logger *slog.Logger) *Whisper {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if client != nil {
		oc.HTTPClient = client
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{
		api:    openai.NewClientWithConfig(oc),
		model:  model,
		logger: logger,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}
	resp, err := w.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		w.logger.Warn("transcription failed", "file", filename, "error", err)
		return "", fmt.Errorf("%w: %w", domain.ErrTranscription, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
