package boltkv

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-email-gate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*KVStore, *time.Time) {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestKVStore_CheckAndSet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, e.Exists())

	ok, err := s.AtomicCheckAndSet(ctx, []domain.KVCheck{{Key: "k"}}, []domain.KVWrite{{Key: "k", Value: []byte("v1")}})
	require.NoError(t, err)
	require.True(t, ok)

	e, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), e.Value)

	ok, err = s.AtomicCheckAndSet(ctx,
		[]domain.KVCheck{{Key: "k", ExpectedVersion: "stale"}},
		[]domain.KVWrite{{Key: "k", Value: []byte("x")}, {Key: "side", Value: []byte("y")}})
	require.NoError(t, err)
	assert.False(t, ok)
	side, _ := s.Get(ctx, "side")
	assert.False(t, side.Exists())

	ok, err = s.AtomicCheckAndSet(ctx, []domain.KVCheck{{Key: "k", ExpectedVersion: e.Version}}, []domain.KVWrite{{Key: "k", Value: []byte("v2")}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKVStore_TTLAndSweep(t *testing.T) {
	ctx := context.Background()
	s, now := newTestStore(t)

	_, err := s.AtomicCheckAndSet(ctx, nil, []domain.KVWrite{
		{Key: "short", Value: []byte("a"), TTL: time.Minute},
		{Key: "forever", Value: []byte("b")},
	})
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	e, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, e.Exists())

	ok, err := s.AtomicCheckAndSet(ctx, []domain.KVCheck{{Key: "short"}}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e, _ = s.Get(ctx, "forever")
	assert.True(t, e.Exists())
}

func TestKVStore_ConcurrentIncrementsSerialize(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AtomicCheckAndSet(ctx, []domain.KVCheck{{Key: "once"}}, []domain.KVWrite{{Key: "once", Value: []byte("x")}})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
