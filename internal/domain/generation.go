package domain

import "context"

// Completer produces a single completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error)
}

// Completion is the answer text with the usage of the call.
type Completion struct {
	Text  string
	Usage UsageStats
}
