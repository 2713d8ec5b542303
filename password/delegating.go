package password

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAlgorithm is returned when a stored hash carries no tag or a
// tag no registered algorithm matches.
var ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")

// Hasher is one hashing algorithm.
type Hasher interface {
	// ID is the tag written in front of stored hashes, without braces.
	ID() string
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsRehash(encodedHash string) (bool, error)
}

// Delegating routes verification by the stored hash's algorithm tag and
// hashes with the configured default. Safe for concurrent use.
type Delegating struct {
	defaultID string
	hashers   map[string]Hasher
}

// NewDelegating registers the given hashers; the first one is the default
// used for new hashes.
func NewDelegating(hashers ...Hasher) (*Delegating, error) {
	if len(hashers) == 0 {
		return nil, errors.New("at least one hasher required")
	}

	d := &Delegating{
		defaultID: hashers[0].ID(),
		hashers:   make(map[string]Hasher, len(hashers)),
	}
	for _, h := range hashers {
		if h.ID() == "" {
			return nil, errors.New("hasher with empty id")
		}
		if _, dup := d.hashers[h.ID()]; dup {
			return nil, fmt.Errorf("duplicate hasher id %q", h.ID())
		}
		d.hashers[h.ID()] = h
	}
	return d, nil
}

// NewDefaultDelegating returns Argon2id-by-default with bcrypt verification
// for migrated credentials.
func NewDefaultDelegating() (*Delegating, error) {
	argon, err := NewArgon2(DefaultArgon2Config())
	if err != nil {
		return nil, err
	}
	bc, err := NewBcrypt(0)
	if err != nil {
		return nil, err
	}
	return NewDelegating(argon, bc)
}

// Hash hashes with the default algorithm and prepends its tag.
func (d *Delegating) Hash(password string) (string, error) {
	encoded, err := d.hashers[d.defaultID].Hash(password)
	if err != nil {
		return "", err
	}
	return "{" + d.defaultID + "}" + encoded, nil
}

// Verify strips the tag, routes to the matching algorithm, and reports the
// comparison result. Untagged or unknown-tagged hashes fail loudly rather
// than falling through to a guess.
func (d *Delegating) Verify(password, storedHash string) (bool, error) {
	id, encoded, err := splitTag(storedHash)
	if err != nil {
		return false, err
	}
	h, ok := d.hashers[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, id)
	}
	return h.Verify(password, encoded)
}

// NeedsRehash reports whether a verified credential should be re-hashed:
// either its algorithm is not the default or its parameters are weaker
// than the default algorithm's current config.
func (d *Delegating) NeedsRehash(storedHash string) (bool, error) {
	id, encoded, err := splitTag(storedHash)
	if err != nil {
		return false, err
	}
	if id != d.defaultID {
		return true, nil
	}
	return d.hashers[id].NeedsRehash(encoded)
}

func splitTag(storedHash string) (id, encoded string, err error) {
	if !strings.HasPrefix(storedHash, "{") {
		return "", "", fmt.Errorf("%w: missing tag", ErrUnknownAlgorithm)
	}
	end := strings.IndexByte(storedHash, '}')
	if end < 2 {
		return "", "", fmt.Errorf("%w: malformed tag", ErrUnknownAlgorithm)
	}
	return storedHash[1:end], storedHash[end+1:], nil
}
