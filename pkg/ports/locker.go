package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency
// control. It allows the session manager to serialize asks on one session
// across multiple service replicas.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key
	// (a session ID). It blocks until the lock is acquired or the context
	// is canceled; held locks expire after ttl as a crash safety net.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
