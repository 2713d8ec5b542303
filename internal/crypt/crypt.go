// Package crypt holds the small cryptographic primitives shared by the token
// service and the workflow steps: opaque secret generation, one-way hashing,
// and device-fingerprint hashing. No I/O, no policy.
package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// OpaqueTokenBytes is the entropy of a refresh secret before encoding.
	OpaqueTokenBytes = 48

	// noDevice stands in for a missing fingerprint so device-scoped keys
	// stay well-formed. Matches what callers persist, never compared to a
	// real hash.
	noDevice = "no_device"
)

// NewOpaqueToken returns a base64url-encoded random secret of n bytes.
func NewOpaqueToken(n int) (string, error) {
	if n < 32 {
		return "", errors.New("opaque token entropy below 32 bytes")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL hashes s with SHA-256 and encodes the digest as
// unpadded base64url. Used as the store key for opaque secrets; the store
// never sees the secret itself.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// DeviceHash one-way hashes a client device fingerprint. Empty fingerprints
// map to a fixed sentinel so issuance without a fingerprint still scopes to
// a single pseudo-device.
func DeviceHash(fingerprint string) string {
	if fingerprint == "" {
		return noDevice
	}
	return SHA256Base64URL(fingerprint)
}

// NewOTP returns a random numeric code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
