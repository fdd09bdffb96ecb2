// Package orderkey generates fractional lexicographic keys used to order
// commands. A new key can always be placed between two neighbours, so moving
// an item only rewrites that item's key.
//
// Keys are strings over 'a'..'z' that never end in 'a'. The empty string is
// not a key itself; as a bound it means "before everything" for prev and
// "after everything" for next.
package orderkey

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minDigit = 'a'
	maxDigit = 'z'

	// Virtual digits used for missing positions.
	lowSentinel  int = 0
	highSentinel int = maxDigit - minDigit + 2
)

var (
	// ErrInvalidKey is returned for keys outside the key alphabet or ending in 'a'.
	ErrInvalidKey = errors.New("invalid order key")
	// ErrOutOfOrder is returned when prev does not sort strictly before next.
	ErrOutOfOrder = errors.New("order keys out of order")
)

// Midpoint returns a key k with prev < k < next. An empty prev is the lowest
// bound and an empty next the highest. Inputs are expected to be valid keys
// with prev < next; use Between when they come from outside.
func Midpoint(prev, next string) string {
	var b strings.Builder
	b.Grow(max(len(prev), len(next)) + 1)

	nextUnbounded := next == ""
	for i := 0; ; i++ {
		p := lowSentinel
		if i < len(prev) {
			p = digit(prev[i])
		}
		n := highSentinel
		if !nextUnbounded && i < len(next) {
			n = digit(next[i])
		}

		switch {
		case p == n:
			b.WriteByte(prev[i])
		case n-p > 1:
			mid := (p + n + 1) / 2
			b.WriteByte(char(mid))
			if char(mid) == minDigit {
				// A key cannot end in 'a', there would be no room below it.
				b.WriteByte(char((lowSentinel + highSentinel + 1) / 2))
			}
			return b.String()
		case i < len(prev):
			// Adjacent digits: keep prev's digit, anything after it is
			// already below next.
			b.WriteByte(prev[i])
			nextUnbounded = true
		default:
			// prev is exhausted and next has an 'a' here.
			b.WriteByte(minDigit)
		}
	}
}

// Between validates both bounds and returns Midpoint(prev, next).
func Between(prev, next string) (string, error) {
	if prev != "" {
		if err := Validate(prev); err != nil {
			return "", err
		}
	}
	if next != "" {
		if err := Validate(next); err != nil {
			return "", err
		}
		if prev >= next {
			return "", fmt.Errorf("%w: %q >= %q", ErrOutOfOrder, prev, next)
		}
	}
	return Midpoint(prev, next), nil
}

// Validate reports whether key is a usable order key.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for i := 0; i < len(key); i++ {
		if key[i] < minDigit || key[i] > maxDigit {
			return fmt.Errorf("%w: %q has byte %q at %d", ErrInvalidKey, key, key[i], i)
		}
	}
	if key[len(key)-1] == minDigit {
		return fmt.Errorf("%w: %q ends in %q", ErrInvalidKey, key, minDigit)
	}
	return nil
}

func digit(c byte) int { return int(c-minDigit) + 1 }

func char(d int) byte { return byte(d-1) + minDigit }
