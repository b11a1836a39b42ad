// Package transcribe provides the speech-to-text collaborator boundary.
package transcribe

import (
	"context"
	"errors"
)

// ErrNotImplemented signals that a response needs speech-to-text but no
// provider integration is configured. Ingestion surfaces it to the caller
// as a distinct condition, never a generic failure.
var ErrNotImplemented = errors.New("transcription is not implemented: store transcripts with responses or configure a speech-to-text provider")

// Transcriber converts an audio recording to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Unavailable is the Transcriber used when no provider is configured.
type Unavailable struct{}

// Transcribe always fails with ErrNotImplemented.
func (Unavailable) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return "", ErrNotImplemented
}

var _ Transcriber = Unavailable{}
