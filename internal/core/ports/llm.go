package ports

import (
	"context"
)

// CompletionRequest is a single-turn request to the language model.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// Completion is the model's answer.
type Completion struct {
	Model        string
	Content      string
	FinishReason string
	TotalTokens  int
}

// Completer calls the downstream language model. Every call is a privileged
// operation and must only happen after the gate has allowed access.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
