// Package memory implements the KV contract in process memory. It backs tests
// and local development; it is not shared between replicas.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-email-gate/internal/domain"
)

type item struct {
	value     []byte
	version   string
	expiresAt time.Time
}

func (it item) live(now time.Time) bool {
	return it.expiresAt.IsZero() || now.Before(it.expiresAt)
}

// KVStore is a mutex-guarded map with versioned entries and lazy expiry.
type KVStore struct {
	mu    sync.Mutex
	items map[string]item
	seq   uint64
	now   func() time.Time
}

// NewKVStore returns an empty store. A nil clock uses time.Now.
func NewKVStore(now func() time.Time) *KVStore {
	if now == nil {
		now = time.Now
	}
	return &KVStore{items: make(map[string]item), now: now}
}

func (s *KVStore) Get(ctx context.Context, key string) (domain.KVEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.KVEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok || !it.live(s.now()) {
		return domain.KVEntry{}, nil
	}
	return domain.KVEntry{Value: append([]byte(nil), it.value...), Version: it.version}, nil
}

func (s *KVStore) AtomicCheckAndSet(ctx context.Context, checks []domain.KVCheck, writes []domain.KVWrite) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, c := range checks {
		current := ""
		if it, ok := s.items[c.Key]; ok && it.live(now) {
			current = it.version
		}
		if current != c.ExpectedVersion {
			return false, nil
		}
	}
	for _, w := range writes {
		s.seq++
		it := item{value: append([]byte(nil), w.Value...), version: strconv.FormatUint(s.seq, 10)}
		if w.TTL > 0 {
			it.expiresAt = now.Add(w.TTL)
		}
		s.items[w.Key] = it
	}
	return true, nil
}

// Len counts live keys.
func (s *KVStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for _, it := range s.items {
		if it.live(now) {
			n++
		}
	}
	return n
}
