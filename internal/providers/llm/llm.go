package llm

import "context"

// Provider is the answer-generation collaborator: a system prompt and a user
// prompt in, completed text out, or failure. Per-question failures are
// recoverable at the session level.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
	Close() error
}
