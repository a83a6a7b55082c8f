// Package sse frames streamed replies as server-sent events for the client.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrStreamClosed is returned by every call after End or SendError.
var ErrStreamClosed = errors.New("sse: stream closed")

const doneFrame = "event: done\ndata: END\n\n"

// Transport writes one SSE response. It is safe for concurrent use, though
// the chat lifecycle drives it from a single goroutine.
type Transport struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu     sync.Mutex
	opened bool
	closed bool
}

// New wraps w.
func New(w http.ResponseWriter) *Transport {
	return &Transport{w: w, rc: http.NewResponseController(w)}
}

// Open sends the event-stream headers and a 200 status. Calling it again
// is a no-op.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStreamClosed
	}
	if t.opened {
		return nil
	}
	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	// Streams outlive the server's write timeout.
	_ = t.rc.SetWriteDeadline(time.Time{})
	t.w.WriteHeader(http.StatusOK)
	t.opened = true
	return t.flush()
}

// Opened reports whether headers have been sent.
func (t *Transport) Opened() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

// Send writes one data event. Embedded newlines become multi-line data.
func (t *Transport) Send(delta string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStreamClosed
	}
	if !t.opened {
		return errors.New("sse: send before open")
	}
	if _, err := fmt.Fprint(t.w, frame(delta)); err != nil {
		t.closed = true
		return fmt.Errorf("sse write: %w", err)
	}
	return t.flush()
}

// End writes the done event and closes the stream.
func (t *Transport) End() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStreamClosed
	}
	t.closed = true
	if _, err := fmt.Fprint(t.w, doneFrame); err != nil {
		return fmt.Errorf("sse write: %w", err)
	}
	return t.flush()
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SendError reports a failure. Before Open it is a plain JSON response with
// status; afterwards it is an in-band data event and status is ignored.
// Either way the stream is closed.
func (t *Transport) SendError(status int, message, details string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStreamClosed
	}
	t.closed = true

	if !t.opened {
		t.w.Header().Set("Content-Type", "application/json")
		t.w.WriteHeader(status)
		return json.NewEncoder(t.w).Encode(errorBody{Error: message, Details: details})
	}

	raw, err := json.Marshal(errorBody{Error: message})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", raw); err != nil {
		return fmt.Errorf("sse write: %w", err)
	}
	return t.flush()
}

func (t *Transport) flush() error {
	if err := t.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("sse flush: %w", err)
	}
	return nil
}

// frame renders text as one event. CRLF and CR are normalised first so a
// conforming client rejoins the data lines into the original text.
func frame(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
