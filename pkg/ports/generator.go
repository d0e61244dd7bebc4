package ports

import "context"

// GenerateOptions bound a single text generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// Generator defines the text generation collaborator used by the Planner,
// Composer and Summarizer. Implementations must be substitutable; a
// fixed-response variant exists for deterministic testing.
type Generator interface {
	// Generate produces text for the given prompt. It must honor context
	// cancellation; timeout policy is the implementation's responsibility.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}
