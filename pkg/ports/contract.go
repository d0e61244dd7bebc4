package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/quartet/pkg/domain"
)

// RunStoreContract runs a suite of tests to verify that a Store
// implementation adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	uniqueID := func(prefix string) string {
		return fmt.Sprintf("contract-%s-%d", prefix, time.Now().UnixNano())
	}

	messageAt := func(sessionID, role, content string, ts time.Time) domain.Message {
		return domain.Message{
			SessionID: sessionID,
			UserID:    "user-contract",
			Role:      role,
			Content:   content,
			Metadata:  map[string]any{},
			CreatedAt: ts,
			Timestamp: float64(ts.UnixNano()) / 1e9,
		}
	}

	t.Run("Sessions", func(t *testing.T) {
		sessionID := uniqueID("session")

		created, err := store.GetOrCreateSession(ctx, sessionID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, sessionID, created.SessionID)
		assert.Equal(t, "user-1", created.UserID)
		assert.Empty(t, created.Summary)
		assert.False(t, created.CreatedAt.IsZero())

		// Second call returns the existing session.
		again, err := store.GetOrCreateSession(ctx, sessionID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, created.SessionID, again.SessionID)

		got, err := store.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, sessionID, got.SessionID)

		_, err = store.GetSession(ctx, "missing-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Messages", func(t *testing.T) {
		sessionID := uniqueID("messages")
		_, err := store.GetOrCreateSession(ctx, sessionID, "user-1")
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			msg := messageAt(sessionID, domain.RoleUser, fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Second))
			id, err := store.SaveMessage(ctx, msg)
			require.NoError(t, err)
			assert.NotEmpty(t, id, "SaveMessage should assign an ID")
		}

		all, err := store.Messages(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, msg := range all {
			assert.Equal(t, fmt.Sprintf("message %d", i), msg.Content, "messages should be ascending by time")
		}

		// A positive limit returns the most recent N, still ascending.
		recent, err := store.Messages(ctx, sessionID, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "message 3", recent[0].Content)
		assert.Equal(t, "message 4", recent[1].Content)

		count, err := store.CountMessages(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)

		empty, err := store.Messages(ctx, "missing-"+sessionID, 0)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Summary", func(t *testing.T) {
		sessionID := uniqueID("summary")
		_, err := store.GetOrCreateSession(ctx, sessionID, "user-1")
		require.NoError(t, err)

		summary, err := store.Summary(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, summary)

		err = store.SetSummary(ctx, sessionID, "user-1", "talked about databases")
		require.NoError(t, err)

		summary, err = store.Summary(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "talked about databases", summary)

		// The session record reflects the summary as well.
		sess, err := store.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "talked about databases", sess.Summary)
	})

	t.Run("Suggestions", func(t *testing.T) {
		sessionID := uniqueID("suggestions")

		_, err := store.SuggestionsByMessage(ctx, "missing-message")
		assert.ErrorIs(t, err, domain.ErrSuggestionsNotFound)

		for i := 0; i < 3; i++ {
			rec := domain.SuggestionRecord{
				SessionID:   sessionID,
				UserID:      "user-1",
				MessageID:   fmt.Sprintf("%s-msg-%d", sessionID, i),
				Suggestions: []string{"one?", "two?", "three?"},
				CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, store.SaveSuggestions(ctx, rec))
		}

		got, err := store.SuggestionsByMessage(ctx, sessionID+"-msg-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"one?", "two?", "three?"}, got.Suggestions)
		assert.Equal(t, sessionID, got.SessionID)

		// Newest first, bounded by limit.
		list, err := store.SuggestionsBySession(ctx, sessionID, 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, sessionID+"-msg-2", list[0].MessageID)
		assert.Equal(t, sessionID+"-msg-1", list[1].MessageID)
	})

	t.Run("Metrics", func(t *testing.T) {
		sessionID := uniqueID("metrics")

		// No records yet: zero-valued aggregate with nil averages.
		agg, err := store.SessionMetrics(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), agg.TotalRequests)
		assert.Nil(t, agg.AvgTTFTMs)
		assert.Nil(t, agg.AvgTotalTimeMs)
		assert.Equal(t, int64(0), agg.TotalToolCalls)

		ttft1, ttft2 := int64(100), int64(300)
		records := []domain.MetricsRecord{
			{SessionID: sessionID, UserID: "user-1", MessageID: "m1", TTFTMs: &ttft1, TotalMs: 200, ToolCallCount: 2, AgentTimings: map[string]int64{"planner": 10}, Timestamp: base},
			{SessionID: sessionID, UserID: "user-1", MessageID: "m2", TTFTMs: &ttft2, TotalMs: 400, ToolCallCount: 1, AgentTimings: map[string]int64{"planner": 12}, Timestamp: base.Add(time.Minute)},
			{SessionID: sessionID, UserID: "user-1", MessageID: "m3", TTFTMs: nil, TotalMs: 600, ToolCallCount: 0, AgentTimings: map[string]int64{}, Timestamp: base.Add(2 * time.Minute)},
		}
		for _, rec := range records {
			require.NoError(t, store.SaveMetrics(ctx, rec))
		}

		agg, err = store.SessionMetrics(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), agg.TotalRequests)
		require.NotNil(t, agg.AvgTTFTMs)
		// Nil TTFTs are excluded from the average.
		assert.InDelta(t, 200.0, *agg.AvgTTFTMs, 0.01)
		require.NotNil(t, agg.AvgTotalTimeMs)
		assert.InDelta(t, 400.0, *agg.AvgTotalTimeMs, 0.01)
		assert.Equal(t, int64(3), agg.TotalToolCalls)
	})

	t.Run("List and delete sessions", func(t *testing.T) {
		keepID := uniqueID("keep")
		dropID := uniqueID("drop")
		_, err := store.GetOrCreateSession(ctx, keepID, "user-1")
		require.NoError(t, err)
		_, err = store.GetOrCreateSession(ctx, dropID, "user-1")
		require.NoError(t, err)

		_, err = store.SaveMessage(ctx, messageAt(dropID, domain.RoleUser, "to be removed", base))
		require.NoError(t, err)

		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(sessions))
		for _, sess := range sessions {
			ids = append(ids, sess.SessionID)
		}
		assert.Contains(t, ids, keepID)
		assert.Contains(t, ids, dropID)

		require.NoError(t, store.DeleteSession(ctx, dropID))

		_, err = store.GetSession(ctx, dropID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		msgs, err := store.Messages(ctx, dropID, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs, "messages must go with their session")

		sessions, err = store.ListSessions(ctx)
		require.NoError(t, err)
		for _, sess := range sessions {
			assert.NotEqual(t, dropID, sess.SessionID)
		}

		// Idempotent.
		assert.NoError(t, store.DeleteSession(ctx, dropID))
	})

	t.Run("Tool calls and totals", func(t *testing.T) {
		sessionID := uniqueID("tools")
		_, err := store.GetOrCreateSession(ctx, sessionID, "user-1")
		require.NoError(t, err)

		before, err := store.Totals(ctx)
		require.NoError(t, err)

		rec := domain.ToolCallRecord{
			SessionID: sessionID,
			UserID:    "user-1",
			MessageID: "m1",
			Tool:      domain.ToolFind,
			Args:      map[string]any{"collection": domain.CollectionMessages, "limit": 50},
			Status:    domain.StatusOK,
			LatencyMs: 4,
			Timestamp: base,
		}
		require.NoError(t, store.SaveToolCall(ctx, rec))

		after, err := store.Totals(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.ToolCalls+1, after.ToolCalls)
		assert.GreaterOrEqual(t, after.Sessions, before.Sessions)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
