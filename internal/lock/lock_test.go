package lock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TryAcquire_MutualExclusion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, "dayLock:January:20", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TryAcquire(ctx, "dayLock:January:20", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Release(ctx, "dayLock:January:20"))

	ok, err = m.TryAcquire(ctx, "dayLock:January:20", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_Held(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	held, err := m.Held(ctx, "dayLock:March:14")
	require.NoError(t, err)
	assert.False(t, held)

	ok, err := m.TryAcquire(ctx, "dayLock:March:14", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	held, err = m.Held(ctx, "dayLock:March:14")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestMemory_TryAcquire_ExpiresAfterTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, "queryLock:abc", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	ok, err = m.TryAcquire(ctx, "queryLock:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_TryAcquire_Concurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	var acquired int32
	var mu sync.Mutex
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.TryAcquire(ctx, "batchLock:xyz", time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), acquired)
}

func TestMemory_Counter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetCounter(ctx, "wikiBatches:run1", 3))

	for want := int64(2); want >= 0; want-- {
		got, err := m.Decrement(ctx, "wikiBatches:run1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMemory_Decrement_MissingCounter(t *testing.T) {
	m := NewMemory()
	_, err := m.Decrement(context.Background(), "wikiBatches:unknown")
	require.Error(t, err)
}

func TestBatchHash_OrderIndependent(t *testing.T) {
	a := BatchHash([]string{"Albert Einstein", "Marie Curie"})
	b := BatchHash([]string{"Marie Curie", "Albert Einstein"})
	assert.Equal(t, a, b)

	c := BatchHash([]string{"Marie Curie"})
	assert.NotEqual(t, a, c)
}

func TestBatchHash_UnicodeNormalization(t *testing.T) {
	// Same title in composed and decomposed form hashes identically.
	composed := "André Gide"
	decomposed := "André Gide"
	assert.Equal(t, BatchHash([]string{composed}), BatchHash([]string{decomposed}))
}

func TestKeys_Namespace(t *testing.T) {
	assert.Equal(t, "dayLock:January:20", DayKey("January", 20))
	assert.Equal(t, "wikiBatches:run1", CounterKey("run1"))

	// Zero window: pure content hash, no suffix.
	key := BatchKey("cafe", 0)
	assert.Equal(t, "batchLock:cafe", key)

	// Windowed keys differ across windows but are stable within one.
	now := time.Now()
	s1 := windowSuffix(now, time.Minute)
	s2 := windowSuffix(now.Add(time.Minute), time.Minute)
	assert.NotEqual(t, s1, s2)
	assert.Equal(t, s1, windowSuffix(now, time.Minute))
}

func TestQueryKey_HashesBody(t *testing.T) {
	k1 := QueryKey("SELECT ?item WHERE {}", 0)
	k2 := QueryKey("SELECT ?other WHERE {}", 0)
	assert.NotEqual(t, k1, k2)
	assert.Contains(t, k1, "queryLock:")
}

func TestPostgres_TryAcquire(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewPostgres(mock)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO work_locks`).
		WithArgs("dayLock:January:20", float64(30)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := p.TryAcquire(ctx, "dayLock:January:20", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second caller: conditional update matches no rows.
	mock.ExpectExec(`INSERT INTO work_locks`).
		WithArgs("dayLock:January:20", float64(30)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = p.TryAcquire(ctx, "dayLock:January:20", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReleaseAndCounter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewPostgres(mock)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("batchLock:abc").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	held, err := p.Held(ctx, "batchLock:abc")
	require.NoError(t, err)
	assert.True(t, held)

	mock.ExpectExec(`DELETE FROM work_locks`).
		WithArgs("batchLock:abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, p.Release(ctx, "batchLock:abc"))

	mock.ExpectExec(`INSERT INTO counters`).
		WithArgs("wikiBatches:run1", int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, p.SetCounter(ctx, "wikiBatches:run1", 4))

	mock.ExpectQuery(`UPDATE counters SET value = value - 1`).
		WithArgs("wikiBatches:run1").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(int64(3)))
	remaining, err := p.Decrement(ctx, "wikiBatches:run1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func ExampleBatchHash() {
	fmt.Println(len(BatchHash([]string{"Albert Einstein"})))
	// Output: 64
}
