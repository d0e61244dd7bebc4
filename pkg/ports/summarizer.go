package ports

import (
	"context"

	"github.com/aretw0/quartet/pkg/domain"
)

// Summarizer compresses a session's full message history into a compact
// running summary of roughly targetTokens tokens.
type Summarizer interface {
	Summarize(ctx context.Context, messages []domain.Message, targetTokens int) (string, error)
}
