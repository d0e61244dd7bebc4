package ports

import (
	"context"

	"github.com/aretw0/quartet/pkg/domain"
)

// Store defines the persistence port for conversations and their
// artifacts. Implementations exist for memory, Redis and SQLite; all of
// them must pass RunStoreContract.
type Store interface {
	// GetOrCreateSession returns the session, creating it with an empty
	// summary when it does not exist yet.
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (domain.Session, error)

	// GetSession returns the session or domain.ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)

	// ListSessions returns every session, most recently updated first.
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// DeleteSession removes a session and all its dependent records.
	// Deleting an absent session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// SaveMessage persists one message and returns its assigned ID.
	SaveMessage(ctx context.Context, msg domain.Message) (string, error)

	// Messages returns a session's messages ordered by time ascending.
	// A positive limit returns only the most recent limit messages, still
	// in ascending order.
	Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// CountMessages returns the total number of messages in a session.
	CountMessages(ctx context.Context, sessionID string) (int64, error)

	// Summary returns the session's running summary, or "" when none
	// exists.
	Summary(ctx context.Context, sessionID string) (string, error)

	// SetSummary upserts the session's running summary.
	SetSummary(ctx context.Context, sessionID, userID, summary string) error

	// SaveSuggestions persists the suggestions attached to one assistant
	// message.
	SaveSuggestions(ctx context.Context, rec domain.SuggestionRecord) error

	// SuggestionsByMessage returns the suggestions for a message, or
	// domain.ErrSuggestionsNotFound.
	SuggestionsByMessage(ctx context.Context, messageID string) (domain.SuggestionRecord, error)

	// SuggestionsBySession returns up to limit suggestion records for a
	// session, newest first.
	SuggestionsBySession(ctx context.Context, sessionID string, limit int) ([]domain.SuggestionRecord, error)

	// SaveMetrics persists the latency profile of one completed request.
	SaveMetrics(ctx context.Context, rec domain.MetricsRecord) error

	// SessionMetrics aggregates a session's metrics records. Sessions
	// without records yield a zero-valued aggregate with nil averages.
	SessionMetrics(ctx context.Context, sessionID string) (domain.SessionMetrics, error)

	// SaveToolCall persists one Executor tool call log entry.
	SaveToolCall(ctx context.Context, rec domain.ToolCallRecord) error

	// Totals reports store-wide counters for the vitals surface.
	Totals(ctx context.Context) (domain.Totals, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
