package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// QueryTool implements ports.Querier over the message store. It is the
// only data access the Executor has.
type QueryTool struct {
	store  ports.Store
	logger *slog.Logger
}

// NewQueryTool wraps a store for Executor queries.
func NewQueryTool(store ports.Store, logger *slog.Logger) *QueryTool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QueryTool{store: store, logger: logger}
}

// Find implements ports.Querier. On failure the returned envelope still
// carries the error status and measured latency, so callers can log the
// attempt.
func (q *QueryTool) Find(ctx context.Context, collection string, filter map[string]any, limit int) (ports.FindResult, error) {
	start := time.Now()

	fail := func(err error) (ports.FindResult, error) {
		res := ports.FindResult{
			Status:    domain.StatusError,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		q.logger.Warn("query failed", "collection", collection, "error", err)
		return res, err
	}

	if collection != domain.CollectionMessages {
		return fail(fmt.Errorf("unknown collection %q", collection))
	}
	sessionID, _ := filter["sessionId"].(string)
	if sessionID == "" {
		return fail(fmt.Errorf("filter requires a sessionId"))
	}

	msgs, err := q.store.Messages(ctx, sessionID, limit)
	if err != nil {
		return fail(fmt.Errorf("find %s: %w", collection, err))
	}

	return ports.FindResult{
		Status:    domain.StatusOK,
		Count:     len(msgs),
		Data:      msgs,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
