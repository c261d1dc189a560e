package port

import "context"

// ModelProvider abstracts the language-model inference call.
type ModelProvider interface {
	// ModelName returns the identifier of the model being used.
	ModelName() string

	// Generate sends a fully built system prompt and returns the reply text.
	Generate(ctx context.Context, systemPrompt string) (string, error)
}
