package password

import (
	"errors"
	"strings"
	"testing"
)

// Low-cost parameters so the suite stays fast. Still above the enforced
// minimums.
func testArgon2(t *testing.T) *Argon2 {
	t.Helper()
	a, err := NewArgon2(Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new argon2: %v", err)
	}
	return a
}

func TestArgon2HashVerify(t *testing.T) {
	a := testArgon2(t)

	hash, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected encoding %q", hash)
	}

	ok, err := a.Verify("correct horse battery", hash)
	if err != nil || !ok {
		t.Fatalf("verify correct password: ok=%v err=%v", ok, err)
	}
	ok, err = a.Verify("wrong password xx", hash)
	if err != nil || ok {
		t.Fatalf("verify wrong password: ok=%v err=%v", ok, err)
	}
}

func TestArgon2SaltsDiffer(t *testing.T) {
	a := testArgon2(t)

	h1, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestArgon2NeedsRehashOnStrongerConfig(t *testing.T) {
	weak := testArgon2(t)
	hash, err := weak.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	strong, err := NewArgon2(Argon2Config{
		Memory:      16 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new argon2: %v", err)
	}

	needs, err := strong.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("needs rehash: %v", err)
	}
	if !needs {
		t.Fatal("weaker hash should need rehash")
	}

	needs, err = weak.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("needs rehash: %v", err)
	}
	if needs {
		t.Fatal("hash at current parameters should not need rehash")
	}
}

func TestArgon2RejectsMalformedPHC(t *testing.T) {
	a := testArgon2(t)
	for _, bad := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=8192,t=1,p=1$short$short",
		"$argon2i$v=19$m=8192,t=1,p=1$" + strings.Repeat("A", 24) + "$" + strings.Repeat("A", 44),
		"$argon2id$v=18$m=8192,t=1,p=1$" + strings.Repeat("A", 24) + "$" + strings.Repeat("A", 44),
	} {
		if _, err := a.Verify("x", bad); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}

func TestDelegatingTagsAndRoutes(t *testing.T) {
	d, err := NewDelegating(testArgon2(t))
	if err != nil {
		t.Fatalf("new delegating: %v", err)
	}

	hash, err := d.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "{argon2id}$argon2id$") {
		t.Fatalf("missing algorithm tag: %q", hash)
	}

	ok, err := d.Verify("correct horse battery", hash)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}
}

func TestDelegatingVerifiesLegacyBcrypt(t *testing.T) {
	bc, err := NewBcrypt(4)
	if err != nil {
		t.Fatalf("new bcrypt: %v", err)
	}
	bcHash, err := bc.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}

	d, err := NewDelegating(testArgon2(t), bc)
	if err != nil {
		t.Fatalf("new delegating: %v", err)
	}

	stored := "{bcrypt}" + bcHash
	ok, err := d.Verify("correct horse battery", stored)
	if err != nil || !ok {
		t.Fatalf("legacy verify: ok=%v err=%v", ok, err)
	}

	// Non-default algorithm is upgrade-eligible regardless of cost.
	needs, err := d.NeedsRehash(stored)
	if err != nil {
		t.Fatalf("needs rehash: %v", err)
	}
	if !needs {
		t.Fatal("bcrypt hash should be flagged for rehash")
	}
}

func TestDelegatingUnknownTagFailsLoudly(t *testing.T) {
	d, err := NewDelegating(testArgon2(t))
	if err != nil {
		t.Fatalf("new delegating: %v", err)
	}

	for _, bad := range []string{
		"$argon2id$v=19$...",
		"{scrypt}whatever",
		"{}empty",
		"plaintext",
	} {
		if _, err := d.Verify("x", bad); !errors.Is(err, ErrUnknownAlgorithm) {
			t.Fatalf("expected unknown-algorithm for %q, got %v", bad, err)
		}
	}
}
