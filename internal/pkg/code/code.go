// Package code generates and checks short, human-typeable recovery codes.
package code

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
)

const (
	// Length is the number of symbols in a code.
	Length = 8
	// SaltSize is the number of random bytes mixed into each hash.
	SaltSize = 16
	// MaxValidationAttempts bounds wrong guesses against one issued code.
	MaxValidationAttempts = 3
	// TTL is how long an issued code stays valid.
	TTL = 5 * time.Minute
)

// Alphabet excludes O, 0, I, 1 and L, which leaves 31 symbols (26+10-5), not
// 32, so Generate draws with rejection sampling instead of byte % 32.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// bytes at or above this bound are rejected so every symbol is equally likely.
var sampleLimit = 256 - 256%len(Alphabet)

var random io.Reader = rand.Reader

// Generate returns a fresh code drawn from the CSPRNG.
func Generate() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := io.ReadFull(random, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= sampleLimit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// FormatForDisplay renders an 8-symbol code as XXXX-XXXX. Anything else is returned unchanged.
func FormatForDisplay(code string) string {
	if len(code) != Length {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// NormalizeInput strips hyphens and whitespace and uppercases what is left.
func NormalizeInput(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// ValidateFormat reports whether code normalizes to exactly Length alphabet symbols.
func ValidateFormat(code string) bool {
	n := NormalizeInput(code)
	if len(n) != Length {
		return false
	}
	for i := 0; i < len(n); i++ {
		if strings.IndexByte(Alphabet, n[i]) < 0 {
			return false
		}
	}
	return true
}

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return salt, nil
}

// Hash is SHA-256 over the code bytes followed by the salt.
func Hash(code string, salt []byte) []byte {
	h := sha256.New()
	h.Write([]byte(code))
	h.Write(salt)
	return h.Sum(nil)
}

// ConstantTimeEquals compares two equal-length byte slices without branching
// on their contents. Lengths are fixed by protocol and not secret.
func ConstantTimeEquals(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// ValidateVerificationCode checks a submitted code against the stored hash and salt.
// Malformed input fails before any hashing.
func ValidateVerificationCode(submitted string, storedHash, storedSalt []byte) bool {
	if !ValidateFormat(submitted) {
		return false
	}
	if len(storedHash) != sha256.Size || len(storedSalt) == 0 {
		return false
	}
	return ConstantTimeEquals(Hash(NormalizeInput(submitted), storedSalt), storedHash)
}

// CalculateExpiry returns now + TTL.
func CalculateExpiry(now time.Time) time.Time { return now.Add(TTL) }

// IsExpired reports whether expiresAt is at or before now.
func IsExpired(expiresAt, now time.Time) bool { return !now.Before(expiresAt) }
