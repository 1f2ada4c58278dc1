package stt

import "context"

// Provider transcribes a WAV-encoded audio chunk. Bytes in, text out, or
// failure; chunk failures are recoverable at the session level.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	Close() error
}
