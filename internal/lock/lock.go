// Package lock provides short-lived advisory locks keyed by work identity.
//
// Locks are the pipeline's sole guard against duplicate concurrent work.
// They are deliberately weak: a holder that crashes simply lets the TTL
// expire, and a lock can expire while its holder is still running if the
// TTL was set below the real task duration. Handlers stay idempotent so
// either failure mode only costs duplicate effort, never correctness.
package lock

import (
	"context"
	"time"
)

// Manager is the distributed lock and counter capability. Any key-value
// store with an atomic conditional set suffices as a backend.
type Manager interface {
	// TryAcquire sets the lock atomically only if absent (or expired) and
	// reports whether this caller now holds it. Not reentrant.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Held reports whether the lock is currently held without acquiring
	// it. The answer is advisory; the lock may change hands immediately
	// after.
	Held(ctx context.Context, key string) (bool, error)

	// Release clears the lock. Releasing a lock that already expired is
	// not an error.
	Release(ctx context.Context, key string) error

	// SetCounter initializes a countdown counter.
	SetCounter(ctx context.Context, key string, n int64) error

	// Decrement atomically decrements a counter and returns the remaining
	// value.
	Decrement(ctx context.Context, key string) (int64, error)
}
