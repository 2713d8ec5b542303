// Package identifier normalizes login identifiers so the same real-world
// address always maps to one stored key, regardless of how the user typed it.
package identifier

import (
	"errors"
	"fmt"
	"strings"
)

// Type classifies a login identifier.
type Type string

const (
	TypeEmail    Type = "EMAIL"
	TypeUsername Type = "USERNAME"
	TypePhone    Type = "PHONE"
	// TypeExternal is an opaque subject id from a federated provider.
	TypeExternal Type = "EXTERNAL"
)

// ErrInvalidIdentifier is returned for empty values or unsupported types.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Normalizer canonicalizes a raw identifier of a given type.
type Normalizer interface {
	Normalize(typ Type, raw string) (string, error)
}

// Default implements the canonical normalization rules. Stateless.
type Default struct {
	// DefaultPhonePrefix is prepended to national numbers without a
	// country code. Empty disables the rewrite.
	DefaultPhonePrefix string
}

// NewDefault returns a normalizer with the standard phone prefix.
func NewDefault() *Default {
	return &Default{DefaultPhonePrefix: "+86"}
}

func (n *Default) Normalize(typ Type, raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidIdentifier)
	}

	switch typ {
	case TypeEmail, TypeUsername:
		return strings.ToLower(value), nil
	case TypePhone:
		return n.normalizePhone(value)
	case TypeExternal:
		return value, nil
	default:
		return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidIdentifier, typ)
	}
}

func (n *Default) normalizePhone(value string) (string, error) {
	var b strings.Builder
	b.Grow(len(value))
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
			// Formatting noise, dropped.
		default:
			return "", fmt.Errorf("%w: bad phone character %q", ErrInvalidIdentifier, r)
		}
	}

	phone := b.String()
	if phone == "" || phone == "+" {
		return "", fmt.Errorf("%w: empty phone", ErrInvalidIdentifier)
	}
	if !strings.HasPrefix(phone, "+") && n.DefaultPhonePrefix != "" {
		phone = n.DefaultPhonePrefix + phone
	}
	return phone, nil
}
