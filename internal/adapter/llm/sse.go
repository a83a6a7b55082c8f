package llm

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"

	"egyptoai/internal/domain"
)

// maxSSELine bounds a single upstream SSE line.
const maxSSELine = 1 << 20

// streamError is the error object providers may send in place of a chunk
// once the stream is already open. OpenAI fills Type, Gemini fills Status.
type streamError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Status  string `json:"status,omitempty"`
}

// delta turns the upstream error into a terminal delta.
func (e *streamError) delta() *domain.StreamDelta {
	kind := cmp.Or(e.Status, e.Type, "error")
	return &domain.StreamDelta{
		Done: true,
		Err:  fmt.Errorf("%w: upstream %s: %s", domain.ErrProviderError, kind, e.Message),
	}
}

// parseSSEStream reads SSE-formatted lines from body and converts each data
// payload into a StreamDelta using the provider-specific parseLine function.
//
// The channel is closed when the stream ends or ctx is cancelled. A transport
// failure is reported as a final delta with Done set and Err non-nil. A clean
// end of body without a terminal marker simply closes the channel.
func parseSSEStream(ctx context.Context, logger *slog.Logger, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 || line[0] == ':' {
				continue
			}
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))

			if bytes.Equal(data, []byte("[DONE]")) {
				select {
				case ch <- domain.StreamDelta{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			delta, err := parseLine(data)
			if err != nil {
				logger.Debug("skipping malformed stream chunk", "error", err)
				continue
			}
			if delta == nil {
				continue
			}

			select {
			case ch <- *delta:
			case <-ctx.Done():
				return
			}

			if delta.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- domain.StreamDelta{Done: true, Err: fmt.Errorf("%w: stream read: %w", domain.ErrProviderError, err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
