// Package id mints the version tokens KV backends attach to every write.
package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tokens minted in the same millisecond stay unique and ordered.
var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// New returns a fresh version token.
func New() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
