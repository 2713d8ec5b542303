package crypt

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNewOpaqueToken(t *testing.T) {
	tok, err := NewOpaqueToken(OpaqueTokenBytes)
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("token is not unpadded base64url: %v", err)
	}
	if len(raw) != OpaqueTokenBytes {
		t.Errorf("entropy = %d bytes, want %d", len(raw), OpaqueTokenBytes)
	}

	other, err := NewOpaqueToken(OpaqueTokenBytes)
	if err != nil {
		t.Fatal(err)
	}
	if tok == other {
		t.Error("two tokens are identical")
	}

	if _, err := NewOpaqueToken(16); err == nil {
		t.Error("low-entropy token accepted")
	}
}

func TestSHA256Base64URLIsStable(t *testing.T) {
	a := SHA256Base64URL("secret-value")
	b := SHA256Base64URL("secret-value")
	if a != b {
		t.Error("same input hashed differently")
	}
	if a == SHA256Base64URL("secret-velue") {
		t.Error("different inputs collided")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Errorf("hash %q is not urlsafe", a)
	}
}

func TestDeviceHashSentinel(t *testing.T) {
	if got := DeviceHash(""); got != "no_device" {
		t.Errorf("empty fingerprint = %q", got)
	}
	if DeviceHash("fp-1") == DeviceHash("fp-2") {
		t.Error("distinct fingerprints collided")
	}
	if DeviceHash("fp-1") != DeviceHash("fp-1") {
		t.Error("device hash not stable")
	}
}

func TestNewOTP(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", digits, err)
		}
		if len(code) != digits {
			t.Errorf("NewOTP(%d) = %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Errorf("NewOTP(%d) produced non-digit %q", digits, code)
				break
			}
		}
	}

	for _, digits := range []int{0, 3, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Errorf("NewOTP(%d) accepted", digits)
		}
	}
}
