// Package boltkv implements the KV contract on a local BoltDB file. Bolt allows
// one writer at a time, so each check-and-set is a single Update transaction.
package boltkv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/pkg/id"
	jsoniter "github.com/json-iterator/go"
)

var bucketKV = []byte("kv")

type record struct {
	Value     []byte `json:"value"`
	Version   string `json:"version"`
	ExpiresAt int64  `json:"expiresAt,omitempty"` // unix nanoseconds, 0 = never
}

func (r record) live(now time.Time) bool {
	return r.ExpiresAt == 0 || now.UnixNano() < r.ExpiresAt
}

type KVStore struct {
	db  *bolt.DB
	now func() time.Time
}

// Open creates the file and bucket if needed.
func Open(path string) (*KVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &KVStore{db: db, now: time.Now}, nil
}

func (s *KVStore) Close() error { return s.db.Close() }

func (s *KVStore) Get(ctx context.Context, key string) (domain.KVEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.KVEntry{}, err
	}
	var out domain.KVEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, ok, err := read(tx.Bucket(bucketKV), key)
		if err != nil || !ok || !rec.live(s.now()) {
			return err
		}
		out = domain.KVEntry{Value: rec.Value, Version: rec.Version}
		return nil
	})
	return out, err
}

func (s *KVStore) AtomicCheckAndSet(ctx context.Context, checks []domain.KVCheck, writes []domain.KVWrite) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	committed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		now := s.now()
		for _, c := range checks {
			rec, ok, err := read(b, c.Key)
			if err != nil {
				return err
			}
			current := ""
			if ok && rec.live(now) {
				current = rec.Version
			}
			if current != c.ExpectedVersion {
				return nil
			}
		}
		for _, w := range writes {
			rec := record{Value: w.Value, Version: id.New()}
			if w.TTL > 0 {
				rec.ExpiresAt = now.Add(w.TTL).UnixNano()
			}
			b2, err := jsoniter.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(w.Key), b2); err != nil {
				return err
			}
		}
		committed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return committed, nil
}

// Sweep deletes expired records and returns how many were removed.
func (s *KVStore) Sweep() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		now := s.now()
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec record
			if err := jsoniter.Unmarshal(v, &rec); err != nil || !rec.live(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func read(b *bolt.Bucket, key string) (record, bool, error) {
	v := b.Get([]byte(key))
	if v == nil {
		return record{}, false, nil
	}
	var rec record
	if err := jsoniter.Unmarshal(v, &rec); err != nil {
		return record{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, true, nil
}
