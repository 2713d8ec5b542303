package workflow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTokenMalformed is returned for tokens that do not even have the
	// expected payload.signature shape.
	ErrTokenMalformed = errors.New("state token malformed")
	// ErrTokenSignature is returned when the signature does not match the
	// payload. Decode fails closed; there is no partial state.
	ErrTokenSignature = errors.New("state token signature mismatch")
	// ErrTokenPayload is returned when a correctly signed payload does not
	// decode into a valid state.
	ErrTokenPayload = errors.New("state token payload invalid")
)

// Codec encodes workflow state to and from an opaque continuation token
// safe for URL and JSON transport.
type Codec interface {
	Encode(state *State) (string, error)
	Decode(token string) (*State, error)
}

// HMACCodec is the production codec: base64url(JSON(state)) as payload,
// base64url(HMAC-SHA256(payload, secret)) as signature, joined by a dot.
// Verification uses a constant-time comparison.
type HMACCodec struct {
	secret []byte
}

// NewHMACCodec builds a signing codec. The secret must be at least 16 bytes.
func NewHMACCodec(secret []byte) (*HMACCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("state token secret too short (need >= 16 bytes)")
	}
	c := &HMACCodec{secret: make([]byte, len(secret))}
	copy(c.secret, secret)
	return c, nil
}

func (c *HMACCodec) Encode(state *State) (string, error) {
	payload, err := encodeStatePayload(state)
	if err != nil {
		return "", err
	}
	sig := base64.RawURLEncoding.EncodeToString(c.sign(payload))
	return payload + "." + sig, nil
}

func (c *HMACCodec) Decode(token string) (*State, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok || payload == "" || sig == "" || strings.Contains(sig, ".") {
		return nil, ErrTokenMalformed
	}

	actual, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature encoding", ErrTokenMalformed)
	}

	if !hmac.Equal(c.sign(payload), actual) {
		return nil, ErrTokenSignature
	}

	return decodeStatePayload(payload)
}

func (c *HMACCodec) sign(payload string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// UnsafeBase64Codec encodes state as plain base64url JSON with no integrity
// protection.
//
// UNSAFE: a client can forge arbitrary bag contents; a fabricated
// "otp.verified" flag or user id grants unauthorized capability. Use only in
// tests or behind a trust boundary that signs the token some other way.
type UnsafeBase64Codec struct{}

func (UnsafeBase64Codec) Encode(state *State) (string, error) {
	return encodeStatePayload(state)
}

func (UnsafeBase64Codec) Decode(token string) (*State, error) {
	if token == "" || strings.Contains(token, ".") {
		return nil, ErrTokenMalformed
	}
	return decodeStatePayload(token)
}

func encodeStatePayload(state *State) (string, error) {
	if state == nil {
		return "", errors.New("nil state")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("state encode: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeStatePayload(payload string) (*State, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: bad payload encoding", ErrTokenMalformed)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenPayload, err)
	}
	if state.WorkflowID == "" || state.StepIndex < 0 {
		return nil, fmt.Errorf("%w: inconsistent state", ErrTokenPayload)
	}
	if state.Bag == nil {
		state.Bag = map[string]any{}
	}
	return &state, nil
}
