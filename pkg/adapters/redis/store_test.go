package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/quartet/pkg/adapters/redis"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newTestRedis(t)
	store := redis.NewFromClient(client)
	ports.RunStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newTestRedis(t)

	// Create store with 1s TTL
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	sessionID := "session-ttl"

	_, err := store.GetOrCreateSession(ctx, sessionID, "user-1")
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, domain.NewMessage(sessionID, "user-1", domain.RoleUser, "hello", nil))
	require.NoError(t, err)

	// Visible immediately
	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].SessionID)

	// Fast Forward time in miniredis (for Key Expiration)
	mr.FastForward(2 * time.Second)

	_, err = store.GetSession(ctx, sessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	msgs, err := store.Messages(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The index is pruned lazily when listing.
	sessions, err = store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newTestRedis(t)

	// Custom Prefix
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	_, err := store.GetOrCreateSession(ctx, "my-session", "user-1")
	require.NoError(t, err)

	// Verify keys in Redis directly
	assert.True(t, mr.Exists("custom:app:session:my-session"), "Expected session key with custom prefix")
	assert.True(t, mr.Exists("custom:app:sessions"), "Expected index key with custom prefix")

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "my-session", sessions[0].SessionID)
}

func TestRedisStore_MessageLimit(t *testing.T) {
	_, client := newTestRedis(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		content := string(rune('a' + i))
		_, err := store.SaveMessage(ctx, domain.NewMessage("s1", "u1", domain.RoleUser, content, nil))
		require.NoError(t, err)
	}

	recent, err := store.Messages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "d", recent[1].Content)
}

func TestLocker_MutualExclusion(t *testing.T) {
	_, client := newTestRedis(t)
	locker := redis.NewLocker(client, "quartet:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s1", 10*time.Second)
	require.NoError(t, err)

	// A second holder cannot acquire while the lock is held.
	shortCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, "s1", 10*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))

	unlock2, err := locker.Lock(ctx, "s1", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestLocker_ExpiredLockNotReleasedByOldHolder(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := redis.NewLocker(client, "quartet:")
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "s1", 1*time.Second)
	require.NoError(t, err)

	// The first holder's lock expires and someone else takes it.
	mr.FastForward(2 * time.Second)
	unlock2, err := locker.Lock(ctx, "s1", 10*time.Second)
	require.NoError(t, err)

	// Releasing the stale handle must not free the new holder's lock.
	require.NoError(t, unlock1(ctx))
	assert.True(t, mr.Exists("quartet:lock:s1"))

	require.NoError(t, unlock2(ctx))
	assert.False(t, mr.Exists("quartet:lock:s1"))
}
