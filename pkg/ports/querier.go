package ports

import (
	"context"

	"github.com/aretw0/quartet/pkg/domain"
)

// FindResult is the envelope returned by Find. LatencyMs is measured by
// the implementation, covering just the query.
type FindResult struct {
	Status    string           `json:"status"`
	Count     int              `json:"count"`
	Data      []domain.Message `json:"data"`
	LatencyMs int64            `json:"latencyMs"`
}

// Querier is the bounded query collaborator the Executor calls as a tool.
// Only the messages collection is queryable; insert and aggregate
// concerns are served by the typed Store.
type Querier interface {
	// Find runs one bounded query. On failure it returns a non-nil error
	// alongside an envelope with Status set to domain.StatusError and the
	// measured latency, so the caller can log the attempt.
	Find(ctx context.Context, collection string, filter map[string]any, limit int) (FindResult, error)
}
