// Package keys builds the cache keys tiles are stored under.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "mbt"

const maxStoreTextLen = 64

// Tile returns the key for the tile at (z, x, y) of the named store. The
// readable store segment is sanitised and truncated, so the xxhash of the
// raw name keeps distinct stores apart.
func Tile(store string, z, x, y int) string {
	return fmt.Sprintf("%s:%d/%d/%d", StorePrefix(store), z, x, y)
}

// StorePrefix is the shared prefix of every tile key of a store.
func StorePrefix(store string) string {
	raw := strings.TrimSpace(store)
	safe := sanitize(raw)
	if len(safe) > maxStoreTextLen {
		safe = safe[:maxStoreTextLen]
	}
	return fmt.Sprintf("%s:%s:s=%016x", prefix, safe, xxhash.Sum64String(raw))
}

// Hash is the 64-bit digest of a key, used to shard in-memory structures.
func Hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including non-ASCII and ':') becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
