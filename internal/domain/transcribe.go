package domain

import (
	"context"
	"io"
)

// Transcriber converts recorded speech into text.
type Transcriber interface {
	// Transcribe reads audio and returns the spoken text. filename carries
	// the extension the upstream uses to detect the container format.
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
