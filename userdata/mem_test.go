package userdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppcloud/idp/identifier"
)

func seedOTP(t *testing.T, m *Mem, id string, expires time.Time) {
	t.Helper()
	err := m.CreateOTP(context.Background(), &OTPChallenge{
		TenantID:  "t-1",
		ID:        id,
		Target:    "a@example.com",
		Purpose:   "register",
		CodeHash:  "good-hash",
		ExpiresAt: expires,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create otp: %v", err)
	}
}

func TestUserAndIdentifierLifecycle(t *testing.T) {
	m := NewMem()
	ctx := context.Background()

	user := &User{TenantID: "t-1", ID: "u-1", Status: UserStatusActive, CreatedAt: time.Now()}
	if err := m.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := m.CreateUser(ctx, user); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	ident := &Identifier{TenantID: "t-1", Type: identifier.TypeEmail, Norm: "a@example.com", UserID: "u-1"}
	if err := m.SaveIdentifier(ctx, ident); err != nil {
		t.Fatalf("save identifier: %v", err)
	}

	// Same identifier bound to another user is a conflict.
	claim := &Identifier{TenantID: "t-1", Type: identifier.TypeEmail, Norm: "a@example.com", UserID: "u-2"}
	if err := m.SaveIdentifier(ctx, claim); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	if err := m.MarkIdentifierVerified(ctx, "t-1", identifier.TypeEmail, "a@example.com"); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	got, err := m.FindIdentifier(ctx, "t-1", identifier.TypeEmail, "a@example.com")
	if err != nil {
		t.Fatalf("find identifier: %v", err)
	}
	if !got.Verified || got.UserID != "u-1" {
		t.Fatalf("unexpected identifier: %+v", got)
	}

	// Tenant isolation.
	if _, err := m.FindIdentifier(ctx, "t-2", identifier.TypeEmail, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("identifier leaked across tenants: %v", err)
	}
}

func TestPasswordFailCounter(t *testing.T) {
	m := NewMem()
	ctx := context.Background()

	rec := &PasswordRecord{TenantID: "t-1", UserID: "u-1", Hash: "{argon2id}x"}
	if err := m.SavePassword(ctx, rec); err != nil {
		t.Fatalf("save password: %v", err)
	}

	for want := 1; want <= 3; want++ {
		n, err := m.BumpPasswordFail(ctx, "t-1", "u-1")
		if err != nil {
			t.Fatalf("bump: %v", err)
		}
		if n != want {
			t.Fatalf("fail count %d, want %d", n, want)
		}
	}
	if err := m.ClearPasswordFail(ctx, "t-1", "u-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := m.FindPassword(ctx, "t-1", "u-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.FailCount != 0 {
		t.Fatalf("fail count not cleared: %d", got.FailCount)
	}
}

func TestUpsertDeviceSeen(t *testing.T) {
	m := NewMem()
	ctx := context.Background()

	first := time.Now().Add(-time.Hour)
	d, err := m.UpsertDeviceSeen(ctx, "t-1", "u-1", "dev-1", first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if d.SeenCount != 1 || !d.FirstSeen.Equal(first) {
		t.Fatalf("unexpected first upsert: %+v", d)
	}

	later := time.Now()
	d, err = m.UpsertDeviceSeen(ctx, "t-1", "u-1", "dev-1", later)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if d.SeenCount != 2 || !d.FirstSeen.Equal(first) || !d.LastSeen.Equal(later) {
		t.Fatalf("unexpected second upsert: %+v", d)
	}
}

func TestVerifyOTPSingleWinner(t *testing.T) {
	m := NewMem()
	seedOTP(t, m, "ch-1", time.Now().Add(5*time.Minute))

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := m.VerifyOTP(context.Background(), "t-1", "ch-1", "good-hash", time.Now())
			if err != nil {
				t.Errorf("verify: %v", err)
				return
			}
			if res.OK {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one verify winner, got %d", wins)
	}

	res, err := m.VerifyOTP(context.Background(), "t-1", "ch-1", "good-hash", time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.OK || res.Reason != ReasonOTPAlreadyPassed {
		t.Fatalf("expected already-passed, got %+v", res)
	}
}

func TestVerifyOTPAttemptsExhaust(t *testing.T) {
	m := NewMem()
	seedOTP(t, m, "ch-1", time.Now().Add(5*time.Minute))
	ctx := context.Background()

	for i := 0; i < DefaultOTPMaxAttempts; i++ {
		res, err := m.VerifyOTP(ctx, "t-1", "ch-1", "wrong-hash", time.Now())
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.OK {
			t.Fatal("wrong code verified")
		}
		want := ReasonOTPCodeMismatch
		if i == DefaultOTPMaxAttempts-1 {
			want = ReasonOTPAttemptsExceeded
		}
		if res.Reason != want {
			t.Fatalf("attempt %d: reason %q, want %q", i, res.Reason, want)
		}
	}

	// Exhaustion is permanent even with the right code.
	res, err := m.VerifyOTP(ctx, "t-1", "ch-1", "good-hash", time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.OK || res.Reason != ReasonOTPAttemptsExceeded {
		t.Fatalf("expected attempts-exceeded, got %+v", res)
	}
}

func TestVerifyOTPExpiry(t *testing.T) {
	m := NewMem()
	seedOTP(t, m, "ch-1", time.Now().Add(-time.Second))

	res, err := m.VerifyOTP(context.Background(), "t-1", "ch-1", "good-hash", time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.OK || res.Reason != ReasonOTPExpired {
		t.Fatalf("expected expired, got %+v", res)
	}

	res, err = m.VerifyOTP(context.Background(), "t-1", "missing", "good-hash", time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Reason != ReasonChallengeNotFound {
		t.Fatalf("expected not-found, got %+v", res)
	}
}

func TestConsumeActionTokenOnce(t *testing.T) {
	m := NewMem()
	ctx := context.Background()

	err := m.CreateActionToken(ctx, &ActionToken{
		TenantID:  "t-1",
		Hash:      "tok-hash",
		UserID:    "u-1",
		Purpose:   "password_reset",
		Payload:   map[string]string{"idf": "a@example.com"},
		ExpiresAt: time.Now().Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Wrong purpose does not consume.
	res, err := m.ConsumeActionToken(ctx, "t-1", "tok-hash", "mfa_setup", time.Now())
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if res.OK || res.Reason != ReasonTokenPurposeMismatch {
		t.Fatalf("expected purpose mismatch, got %+v", res)
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := m.ConsumeActionToken(ctx, "t-1", "tok-hash", "password_reset", time.Now())
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if res.OK {
				mu.Lock()
				wins++
				mu.Unlock()
				if res.UserID != "u-1" || res.Payload["idf"] != "a@example.com" {
					t.Errorf("unexpected consume result: %+v", res)
				}
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one consume winner, got %d", wins)
	}
}

func TestConsumeActionTokenExpired(t *testing.T) {
	m := NewMem()
	ctx := context.Background()

	err := m.CreateActionToken(ctx, &ActionToken{
		TenantID:  "t-1",
		Hash:      "tok-hash",
		UserID:    "u-1",
		Purpose:   "password_reset",
		ExpiresAt: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := m.ConsumeActionToken(ctx, "t-1", "tok-hash", "password_reset", time.Now())
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if res.OK || res.Reason != ReasonTokenExpired {
		t.Fatalf("expected expired, got %+v", res)
	}
}
