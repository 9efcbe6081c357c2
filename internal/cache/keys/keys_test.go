package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Tile("world", 3, 1, 2)
	k2 := Tile(" world ", 3, 1, 2)
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
	if !strings.HasSuffix(k1, ":3/1/2") {
		t.Fatalf("address segment missing: %s", k1)
	}
	if !strings.HasPrefix(k1, StorePrefix("world")) {
		t.Fatalf("key %s does not start with store prefix", k1)
	}
}

func TestDifference_AddressAndStore(t *testing.T) {
	if Tile("world", 3, 1, 2) == Tile("world", 3, 2, 1) {
		t.Fatalf("x and y must not commute")
	}
	// same sanitised text, different raw names
	if Tile("a:b", 0, 0, 0) == Tile("a/b", 0, 0, 0) {
		t.Fatalf("stores that sanitise alike must still differ")
	}
}

func TestUnicodeSafety_NoPanicAndHashPresent(t *testing.T) {
	k := Tile("Göteborg 雪 tiles", 0, 0, 0)
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !regexp.MustCompile(`^mbt:[A-Za-z0-9_.\-]*:s=[0-9a-f]{16}:0/0/0$`).MatchString(k) {
		t.Fatalf("unexpected key shape: %s", k)
	}
}

func TestLongStoreNamesAreTruncated(t *testing.T) {
	k := StorePrefix(strings.Repeat("x", 500))
	if len(k) > len("mbt:")+maxStoreTextLen+len(":s=")+16 {
		t.Fatalf("prefix too long: %d", len(k))
	}
}
