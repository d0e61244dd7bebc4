package middleware_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/quartet/pkg/adapters/memory"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/persistence/middleware"
	"github.com/aretw0/quartet/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func encryptedStore(t *testing.T, backend ports.Store, cfg middleware.EncryptionConfig) ports.Store {
	t.Helper()
	return middleware.NewEncryptionMiddleware(cfg)(backend)
}

func TestEncryptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	store := encryptedStore(t, backend, middleware.EncryptionConfig{ActiveKey: testKey(1)})

	_, err := store.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)

	id, err := store.SaveMessage(ctx, domain.Message{
		SessionID: "s1",
		UserID:    "u1",
		Role:      domain.RoleUser,
		Content:   "my account number is 12345",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// The middleware sees plaintext.
	msgs, err := store.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "my account number is 12345", msgs[0].Content)

	// The backend sees only the envelope.
	raw, err := backend.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.True(t, strings.HasPrefix(raw[0].Content, "enc1:"), "content not sealed: %q", raw[0].Content)
	assert.NotContains(t, raw[0].Content, "12345")
}

func TestEncryptionSummaryAndSuggestions(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	store := encryptedStore(t, backend, middleware.EncryptionConfig{ActiveKey: testKey(1)})

	_, err := store.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)

	require.NoError(t, store.SetSummary(ctx, "s1", "u1", "user prefers tea"))

	summary, err := store.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "user prefers tea", summary)

	rawSummary, err := backend.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rawSummary, "enc1:"))

	// GetSession carries the summary too, so it must come back plain.
	sess, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "user prefers tea", sess.Summary)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "user prefers tea", sessions[0].Summary)

	rec := domain.SuggestionRecord{
		SessionID:   "s1",
		UserID:      "u1",
		MessageID:   "m1",
		Suggestions: []string{"Ask about green tea?", "Switch to coffee?"},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.SaveSuggestions(ctx, rec))

	got, err := store.SuggestionsByMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, rec.Suggestions, got.Suggestions)

	rawRec, err := backend.SuggestionsByMessage(ctx, "m1")
	require.NoError(t, err)
	for _, s := range rawRec.Suggestions {
		assert.True(t, strings.HasPrefix(s, "enc1:"))
	}

	bySession, err := store.SuggestionsBySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, rec.Suggestions, bySession[0].Suggestions)
}

func TestEncryptionKeyRotation(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()

	oldStore := encryptedStore(t, backend, middleware.EncryptionConfig{ActiveKey: testKey(1)})
	_, err := oldStore.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = oldStore.SaveMessage(ctx, domain.Message{
		SessionID: "s1", UserID: "u1", Role: domain.RoleUser, Content: "sealed under the old key",
	})
	require.NoError(t, err)

	// New active key with the old key as fallback still reads old data.
	rotated := encryptedStore(t, backend, middleware.EncryptionConfig{
		ActiveKey:    testKey(2),
		FallbackKeys: [][]byte{testKey(1)},
	})
	msgs, err := rotated.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "sealed under the old key", msgs[0].Content)

	// An unrelated key cannot.
	wrong := encryptedStore(t, backend, middleware.EncryptionConfig{ActiveKey: testKey(9)})
	_, err = wrong.Messages(ctx, "s1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed with all available keys")
}

func TestEncryptionPlaintextPassthrough(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()

	// Records written before encryption was enabled.
	_, err := backend.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = backend.SaveMessage(ctx, domain.Message{
		SessionID: "s1", UserID: "u1", Role: domain.RoleUser, Content: "plain old message",
	})
	require.NoError(t, err)

	store := encryptedStore(t, backend, middleware.EncryptionConfig{ActiveKey: testKey(1)})
	msgs, err := store.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "plain old message", msgs[0].Content)
}

func TestEncryptionRequiresFullKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}
