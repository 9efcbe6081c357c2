package schema

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseVersion(t *testing.T) {
	cases := map[string]Version{"1.0": V1_0, " 1.1 ": V1_1}
	for in, want := range cases {
		got, err := ParseVersion(in)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseVersion(%q)=%v want %v", in, got, want)
		}
	}

	for _, in := range []string{"1.3", "1", "1.00"} {
		_, err := ParseVersion(in)
		var uv *UnsupportedVersionError
		if !errors.As(err, &uv) || uv.Version != in {
			t.Fatalf("expected UnsupportedVersionError for %q, got %v", in, err)
		}
	}
}

func TestVersionText(t *testing.T) {
	var v Version
	if err := v.UnmarshalText([]byte("1.1")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	b, _ := v.MarshalText()
	if string(b) != "1.1" {
		t.Fatalf("MarshalText=%q", b)
	}
	if Version(9).Valid() {
		t.Fatalf("Version(9) should be invalid")
	}
}

func TestDDL(t *testing.T) {
	for _, v := range Supported {
		stmts, err := DDL(v)
		if err != nil {
			t.Fatalf("DDL(%v): %v", v, err)
		}
		if len(stmts) != 4 {
			t.Fatalf("DDL(%v) returned %d statements", v, len(stmts))
		}
		joined := strings.Join(stmts, ";")
		for _, col := range TileColumns {
			if !strings.Contains(joined, col) {
				t.Fatalf("DDL(%v) does not mention %s", v, col)
			}
		}
		if !strings.Contains(stmts[3], "UNIQUE INDEX tiles_index") {
			t.Fatalf("tiles index missing: %s", stmts[3])
		}
	}
	if _, err := DDL(Version(7)); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestIsValidation(t *testing.T) {
	wrapped := fmt.Errorf("open: %w", &InvalidTilesError{MissingColumn: ColTileRow})
	if !IsValidation(wrapped) {
		t.Fatalf("wrapped InvalidTilesError should be a validation error")
	}
	if IsValidation(errors.New("disk on fire")) {
		t.Fatalf("plain error should not be a validation error")
	}
	me := &InvalidMetadataError{Field: "bounds", Reason: "bad", Err: errors.New("inner")}
	if !strings.Contains(me.Error(), `"bounds"`) || errors.Unwrap(me) == nil {
		t.Fatalf("unexpected metadata error: %v", me)
	}
}
