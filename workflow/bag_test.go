package workflow

import (
	"errors"
	"testing"
)

func TestBagStringAccess(t *testing.T) {
	bag := AsBag(map[string]any{"name": "alice", "n": 3})

	if s, err := bag.String("name"); err != nil || s != "alice" {
		t.Errorf("String(name) = %q, %v", s, err)
	}
	if _, err := bag.String("missing"); !errors.Is(err, ErrBagMissing) {
		t.Errorf("missing key: err = %v, want ErrBagMissing", err)
	}
	if _, err := bag.String("n"); !errors.Is(err, ErrBagType) {
		t.Errorf("wrong type: err = %v, want ErrBagType", err)
	}
}

func TestBagBoolDefault(t *testing.T) {
	bag := AsBag(map[string]any{"set": true, "str": "yes"})

	if v, err := bag.BoolDefault("set", false); err != nil || !v {
		t.Errorf("present key: %v, %v", v, err)
	}
	if v, err := bag.BoolDefault("absent", true); err != nil || !v {
		t.Errorf("absent key should yield default: %v, %v", v, err)
	}
	// A present value of the wrong type is an error, not the default.
	if _, err := bag.BoolDefault("str", false); !errors.Is(err, ErrBagType) {
		t.Errorf("wrong type: err = %v, want ErrBagType", err)
	}
}

func TestBagInt64AbsorbsJSONNumbers(t *testing.T) {
	bag := AsBag(map[string]any{
		"i64":   int64(42),
		"int":   7,
		"json":  float64(1000),
		"frac":  float64(1.5),
		"other": "12",
	})

	for key, want := range map[string]int64{"i64": 42, "int": 7, "json": 1000} {
		if n, err := bag.Int64(key); err != nil || n != want {
			t.Errorf("Int64(%s) = %d, %v, want %d", key, n, err, want)
		}
	}
	if _, err := bag.Int64("frac"); !errors.Is(err, ErrBagType) {
		t.Errorf("fractional number: err = %v, want ErrBagType", err)
	}
	if _, err := bag.Int64("other"); !errors.Is(err, ErrBagType) {
		t.Errorf("string number: err = %v, want ErrBagType", err)
	}
}

func TestBagStringMap(t *testing.T) {
	bag := AsBag(map[string]any{})
	bag.PutStringMap("payload", map[string]string{"a": "1", "b": "2"})

	got, err := bag.StringMap("payload")
	if err != nil {
		t.Fatalf("StringMap: %v", err)
	}
	if got["a"] != "1" || got["b"] != "2" || len(got) != 2 {
		t.Errorf("StringMap = %v", got)
	}

	// A mixed-type map read back as strings is a loud failure.
	bag = AsBag(map[string]any{"mixed": map[string]any{"a": "1", "b": 2}})
	if _, err := bag.StringMap("mixed"); !errors.Is(err, ErrBagType) {
		t.Errorf("mixed map: err = %v, want ErrBagType", err)
	}
}

func TestBagPutAnyRejectsUnsafeValues(t *testing.T) {
	bag := AsBag(map[string]any{})

	ok := map[string]any{
		"tokens": map[string]any{"accessToken": "x", "expiresIn": int64(900)},
		"list":   []any{"a", true, float64(1)},
	}
	for key, v := range ok {
		if err := bag.PutAny(key, v); err != nil {
			t.Errorf("PutAny(%s): %v", key, err)
		}
	}

	type opaque struct{ X int }
	bad := map[string]any{
		"struct": opaque{X: 1},
		"chan":   make(chan int),
		"nested": map[string]any{"inner": opaque{}},
	}
	for key, v := range bad {
		if err := bag.PutAny(key, v); !errors.Is(err, ErrBagValue) {
			t.Errorf("PutAny(%s): err = %v, want ErrBagValue", key, err)
		}
	}
}

func TestBagDeleteAndHas(t *testing.T) {
	bag := AsBag(map[string]any{})
	bag.PutString("k", "v")
	if !bag.Has("k") {
		t.Fatal("Has after Put = false")
	}
	bag.Delete("k")
	if bag.Has("k") {
		t.Fatal("Has after Delete = true")
	}
}
