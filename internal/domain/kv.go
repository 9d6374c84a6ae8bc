package domain

import (
	"context"
	"time"
)

// KVEntry is the result of a read. An empty Version means the key is absent
// or its TTL has elapsed.
type KVEntry struct {
	Value   []byte
	Version string
}

// Exists reports whether the entry was present when read.
func (e KVEntry) Exists() bool { return e.Version != "" }

// KVCheck asserts that Key still carries ExpectedVersion at commit time.
// An empty ExpectedVersion asserts the key is absent.
type KVCheck struct {
	Key             string
	ExpectedVersion string
}

// KVWrite replaces the value at Key. A zero TTL means the key never expires.
type KVWrite struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// KVStore is the atomic read-version / conditional-write contract shared by
// the rate limiter and the recovery-code flow. AtomicCheckAndSet applies every
// write only if every check holds; otherwise nothing changes and committed is false.
type KVStore interface {
	Get(ctx context.Context, key string) (KVEntry, error)
	AtomicCheckAndSet(ctx context.Context, checks []KVCheck, writes []KVWrite) (committed bool, err error)
}
