package quartet_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/quartet"
	memstore "github.com/aretw0/quartet/pkg/adapters/memory"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

func newTestEngine(t *testing.T) (*quartet.Engine, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore()
	eng, err := quartet.New(
		quartet.WithStore(store),
		quartet.WithPace(0),
	)
	require.NoError(t, err)
	return eng, store
}

func TestEngineAskStreamsAndPersists(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	var collector ports.Collector
	err := eng.Ask(ctx, "s-basic", "u1", "Tell me about Go", &collector)
	require.NoError(t, err)

	events := collector.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventAgent, events[0].Type)
	assert.Equal(t, domain.EventDone, events[len(events)-1].Type)

	done, ok := collector.Done()
	require.True(t, ok)
	assert.NotEmpty(t, done.FullText)
	assert.Len(t, done.Suggestions, 3)
	require.NotNil(t, done.Timings.TTFTMs)

	// Token payloads reassemble into the full answer.
	var streamed strings.Builder
	for _, ev := range events {
		if ev.Type == domain.EventToken {
			streamed.WriteString(ev.Data.(domain.TokenPayload).Text)
		}
	}
	assert.Equal(t, done.FullText, streamed.String())

	// One user and one assistant message were persisted.
	msgs, err := store.Messages(ctx, "s-basic", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Tell me about Go", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, done.FullText, msgs[1].Content)
	assert.Equal(t, done.Suggestions, msgs[1].Metadata["suggestions"])
	assert.NotNil(t, msgs[1].Metadata["ttftMs"])

	// The assistant message links the suggestions and metrics records.
	sugg, err := store.SuggestionsByMessage(ctx, msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, done.Suggestions, sugg.Suggestions)

	sm, err := store.SessionMetrics(ctx, "s-basic")
	require.NoError(t, err)
	assert.EqualValues(t, 1, sm.TotalRequests)
	require.NotNil(t, sm.AvgTotalTimeMs)
}

func TestEngineAskRepliesFromHistory(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	var first ports.Collector
	require.NoError(t, eng.Ask(ctx, "s-hist", "u1", "Tell me about Go", &first))

	// The follow-up references earlier conversation, so the Executor
	// queries history and the stream carries live tool activity.
	var second ports.Collector
	require.NoError(t, eng.Ask(ctx, "s-hist", "u1", "What did I say before?", &second))

	var started, completed int
	for _, ev := range second.Events() {
		switch ev.Type {
		case domain.EventToolCallStarted:
			started++
			payload := ev.Data.(domain.ToolCallStartedPayload)
			assert.Equal(t, domain.ToolFind, payload.Tool)
			assert.Equal(t, domain.CollectionMessages, payload.Args["collection"])
		case domain.EventToolCallCompleted:
			completed++
			assert.True(t, ev.Data.(domain.ToolCallCompletedPayload).OK)
		}
	}
	require.Equal(t, 2, started)
	require.Equal(t, 2, completed)

	// Each streamed call was also persisted, linked to the assistant
	// message of the second ask.
	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, totals.ToolCalls)
	assert.EqualValues(t, 4, totals.Messages)

	msgs, err := store.Messages(ctx, "s-hist", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleAssistant, msgs[3].Role)
}

func TestEngineAskRejectsMissingFields(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	var collector ports.Collector
	err := eng.Ask(ctx, "", "u1", "Hello", &collector)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	err = eng.Ask(ctx, "s1", "u1", "", &collector)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Empty(t, collector.Events())
}

func TestEngineAskCancelledMidStreamSkipsPersistence(t *testing.T) {
	eng, store := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := 0
	sink := ports.SinkFunc(func(_ context.Context, ev domain.Event) error {
		if ev.Type == domain.EventToken {
			tokens++
			cancel()
		}
		return nil
	})

	err := eng.Ask(ctx, "s-cancel", "u1", "Tell me about Go", sink)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, tokens)

	// The user message predates the pipeline and survives; nothing
	// else was written.
	n, err := store.CountMessages(context.Background(), "s-cancel")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	sm, err := store.SessionMetrics(context.Background(), "s-cancel")
	require.NoError(t, err)
	assert.EqualValues(t, 0, sm.TotalRequests)
}

// assistantSaveFailer lets the user message through and rejects the
// assistant message, forcing the post-stream persistence path to fail.
type assistantSaveFailer struct {
	ports.Store
}

func (s assistantSaveFailer) SaveMessage(ctx context.Context, msg domain.Message) (string, error) {
	if msg.Role == domain.RoleAssistant {
		return "", errors.New("disk full")
	}
	return s.Store.SaveMessage(ctx, msg)
}

func TestEngineAskPersistFailureEmitsError(t *testing.T) {
	store := memstore.NewStore()
	eng, err := quartet.New(
		quartet.WithStore(assistantSaveFailer{Store: store}),
		quartet.WithPace(0),
	)
	require.NoError(t, err)

	var collector ports.Collector
	err = eng.Ask(context.Background(), "s-fail", "u1", "Tell me about Go", &collector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// The stream ends with a single error event instead of done.
	_, hasDone := collector.Done()
	assert.False(t, hasDone)
	errPayload, hasErr := collector.Err()
	require.True(t, hasErr)
	assert.Contains(t, errPayload.Error, "disk full")

	events := collector.Events()
	assert.Equal(t, domain.EventError, events[len(events)-1].Type)
}
