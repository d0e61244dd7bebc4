package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/quartet/pkg/adapters/memory"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emailPattern = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`

func TestPIIMasksMessageContent(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	store := middleware.NewPIIMiddleware([]string{emailPattern})(backend)

	_, err := store.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, domain.Message{
		SessionID: "s1", UserID: "u1", Role: domain.RoleUser,
		Content: "reach me at bob@example.com or alice@example.org",
	})
	require.NoError(t, err)

	msgs, err := backend.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "reach me at *** or ***", msgs[0].Content)
}

func TestPIIMasksSummaryAndSuggestions(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	store := middleware.NewPIIMiddleware([]string{emailPattern})(backend)

	_, err := store.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)

	require.NoError(t, store.SetSummary(ctx, "s1", "u1", "user is bob@example.com"))
	summary, err := backend.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "user is ***", summary)

	require.NoError(t, store.SaveSuggestions(ctx, domain.SuggestionRecord{
		SessionID: "s1", UserID: "u1", MessageID: "m1",
		Suggestions: []string{"Email bob@example.com?"},
	}))
	rec, err := backend.SuggestionsByMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Email ***?"}, rec.Suggestions)
}

func TestPIILeavesReadsAlone(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	store := middleware.NewPIIMiddleware([]string{emailPattern})(backend)

	_, err := backend.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = backend.SaveMessage(ctx, domain.Message{
		SessionID: "s1", UserID: "u1", Role: domain.RoleUser,
		Content: "stored before masking was on: carol@example.com",
	})
	require.NoError(t, err)

	msgs, err := store.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "carol@example.com")
}

func TestChainOrdersMiddlewares(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()

	key := testKey(3)
	chain := middleware.Chain(
		middleware.NewPIIMiddleware([]string{emailPattern}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)
	store := chain(backend)

	_, err := store.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, domain.Message{
		SessionID: "s1", UserID: "u1", Role: domain.RoleUser,
		Content: "ping dave@example.com about the rollout",
	})
	require.NoError(t, err)

	// Masking happens before sealing, so the decrypted read is masked.
	msgs, err := store.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ping *** about the rollout", msgs[0].Content)

	raw, err := backend.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	assert.NotContains(t, raw[0].Content, "dave@example.com")
	assert.NotContains(t, raw[0].Content, "***")
}
