package lock

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/notablehumans/ingest/internal/db"
)

// Postgres is a Manager backed by a shared keyed table. The conditional
// INSERT ... ON CONFLICT ... WHERE expired is the atomic set-if-absent the
// contract requires; expired rows are reclaimed in the same statement, so
// no background sweeper is needed for correctness.
type Postgres struct {
	pool db.Pool
}

// NewPostgres creates a lock manager on an existing pool. The work_locks
// and counters tables are part of the store migration.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const tryAcquireSQL = `
INSERT INTO work_locks (key, expires_at) VALUES ($1, now() + make_interval(secs => $2))
ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE work_locks.expires_at <= now()`

// TryAcquire implements Manager.
func (p *Postgres) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := p.pool.Exec(ctx, tryAcquireSQL, key, ttl.Seconds())
	if err != nil {
		return false, eris.Wrapf(err, "lock: acquire %s", key)
	}
	return tag.RowsAffected() == 1, nil
}

// Held implements Manager.
func (p *Postgres) Held(ctx context.Context, key string) (bool, error) {
	var held bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM work_locks WHERE key = $1 AND expires_at > now())`, key).Scan(&held)
	if err != nil {
		return false, eris.Wrapf(err, "lock: check %s", key)
	}
	return held, nil
}

// Release implements Manager.
func (p *Postgres) Release(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM work_locks WHERE key = $1`, key); err != nil {
		return eris.Wrapf(err, "lock: release %s", key)
	}
	return nil
}

// SetCounter implements Manager.
func (p *Postgres) SetCounter(ctx context.Context, key string, n int64) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO counters (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, n)
	if err != nil {
		return eris.Wrapf(err, "lock: set counter %s", key)
	}
	return nil
}

// Decrement implements Manager.
func (p *Postgres) Decrement(ctx context.Context, key string) (int64, error) {
	var remaining int64
	err := p.pool.QueryRow(ctx,
		`UPDATE counters SET value = value - 1 WHERE key = $1 RETURNING value`, key).Scan(&remaining)
	if err != nil {
		return 0, eris.Wrapf(err, "lock: decrement %s", key)
	}
	return remaining, nil
}
