package identifier

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	n := NewDefault()

	cases := []struct {
		name string
		typ  Type
		raw  string
		want string
	}{
		{"email lowercased and trimmed", TypeEmail, "  A@Example.COM ", "a@example.com"},
		{"username lowercased", TypeUsername, "Alice", "alice"},
		{"phone strips formatting", TypePhone, "+1 (415) 555-0100", "+14155550100"},
		{"phone gets default prefix", TypePhone, "138 0013 8000", "+8613800138000"},
		{"external kept as-is", TypeExternal, " gh|12345 ", "gh|12345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Normalize(tc.typ, tc.raw)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeRejections(t *testing.T) {
	n := NewDefault()

	cases := []struct {
		name string
		typ  Type
		raw  string
	}{
		{"empty value", TypeEmail, "   "},
		{"unsupported type", Type("PASSPORT"), "x"},
		{"phone with letters", TypePhone, "call-me"},
		{"plus only", TypePhone, "+"},
		{"plus not leading", TypePhone, "138+000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := n.Normalize(tc.typ, tc.raw); !errors.Is(err, ErrInvalidIdentifier) {
				t.Fatalf("expected invalid-identifier, got %v", err)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewDefault()

	for _, tc := range []struct {
		typ Type
		raw string
	}{
		{TypeEmail, " A@Example.com "},
		{TypePhone, "138 0013 8000"},
	} {
		once, err := n.Normalize(tc.typ, tc.raw)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		twice, err := n.Normalize(tc.typ, once)
		if err != nil {
			t.Fatalf("re-normalize: %v", err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q vs %q", once, twice)
		}
	}
}
