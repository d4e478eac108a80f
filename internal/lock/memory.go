package lock

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
)

// Memory is an in-process Manager backed by go-cache. cache.Add is an
// atomic set-if-absent with TTL, which is exactly the conditional-set
// contract TryAcquire needs. Suitable for single-process runs and tests;
// distributed deployments use the Postgres manager.
type Memory struct {
	c *cache.Cache

	// go-cache increments error on missing keys instead of creating them,
	// so counter initialization needs its own guard.
	mu sync.Mutex
}

// NewMemory creates an in-process lock manager.
func NewMemory() *Memory {
	return &Memory{c: cache.New(cache.NoExpiration, time.Minute)}
}

// TryAcquire implements Manager.
func (m *Memory) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := m.c.Add(key, "locked", ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Held implements Manager.
func (m *Memory) Held(_ context.Context, key string) (bool, error) {
	_, held := m.c.Get(key)
	return held, nil
}

// Release implements Manager.
func (m *Memory) Release(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// SetCounter implements Manager.
func (m *Memory) SetCounter(_ context.Context, key string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(key, n, cache.NoExpiration)
	return nil
}

// Decrement implements Manager.
func (m *Memory) Decrement(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining, err := m.c.DecrementInt64(key, 1)
	if err != nil {
		return 0, eris.Wrapf(err, "lock: decrement %s", key)
	}
	return remaining, nil
}
