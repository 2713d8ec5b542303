package workflow

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrBagMissing is returned when a required bag key is absent.
	ErrBagMissing = errors.New("bag key missing")
	// ErrBagType is returned when a bag value has a different kind than the
	// accessor asked for. A type-mismatched fetch is an error, never a
	// silent zero value.
	ErrBagType = errors.New("bag value type mismatch")
	// ErrBagValue is returned when a value put into the bag is not
	// JSON-safe.
	ErrBagValue = errors.New("bag value not json-safe")
)

// Bag is the mutable scratch space threaded through a workflow's steps. It
// is persisted inside the continuation token, so values are restricted to
// JSON-safe scalars, string-keyed maps, and lists thereof. After a token
// round-trip all numbers come back as float64; the typed accessors absorb
// that.
type Bag struct {
	m map[string]any
}

// AsBag wraps an existing state map. The map is shared, not copied.
func AsBag(m map[string]any) Bag {
	return Bag{m: m}
}

func (b Bag) Has(key string) bool {
	_, ok := b.m[key]
	return ok
}

func (b Bag) Delete(key string) {
	delete(b.m, key)
}

// Snapshot returns the underlying map. Callers must treat it as read-only.
func (b Bag) Snapshot() map[string]any {
	return b.m
}

func (b Bag) PutString(key, value string) {
	b.m[key] = value
}

func (b Bag) String(key string) (string, error) {
	v, ok := b.m[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBagMissing, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrBagType, key, v)
	}
	return s, nil
}

func (b Bag) PutBool(key string, value bool) {
	b.m[key] = value
}

func (b Bag) Bool(key string) (bool, error) {
	v, ok := b.m[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrBagMissing, key)
	}
	bv, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrBagType, key, v)
	}
	return bv, nil
}

// BoolDefault reads a bool, treating a missing key as def. A present value
// of the wrong type is still an error.
func (b Bag) BoolDefault(key string, def bool) (bool, error) {
	if !b.Has(key) {
		return def, nil
	}
	return b.Bool(key)
}

func (b Bag) PutInt64(key string, value int64) {
	b.m[key] = value
}

// Int64 reads an integer value. int, int64, and integral float64 (the JSON
// decode form) are all accepted; anything else is a type error.
func (b Bag) Int64(key string) (int64, error) {
	v, ok := b.m[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrBagMissing, key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %s holds non-integral number", ErrBagType, key)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, want integer", ErrBagType, key, v)
	}
}

// PutStringMap stores a copy of a string map.
func (b Bag) PutStringMap(key string, value map[string]string) {
	m := make(map[string]any, len(value))
	for k, v := range value {
		m[k] = v
	}
	b.m[key] = m
}

// StringMap reads a map whose values are all strings. Any non-string entry
// is a type error, not an empty result.
func (b Bag) StringMap(key string) (map[string]string, error) {
	v, ok := b.m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBagMissing, key)
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want map", ErrBagType, key, v)
	}
	out := make(map[string]string, len(raw))
	for k, ev := range raw {
		s, ok := ev.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%s] is %T, want string", ErrBagType, key, k, ev)
		}
		out[k] = s
	}
	return out, nil
}

// PutAny stores an arbitrary value after checking it is JSON-safe.
func (b Bag) PutAny(key string, value any) error {
	if !jsonSafe(value) {
		return fmt.Errorf("%w: %s", ErrBagValue, key)
	}
	b.m[key] = value
	return nil
}

func jsonSafe(v any) bool {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64:
		return true
	case []any:
		for _, e := range t {
			if !jsonSafe(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range t {
			if !jsonSafe(e) {
				return false
			}
		}
		return true
	case map[string]string, []string:
		return true
	default:
		return false
	}
}
