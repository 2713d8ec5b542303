package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ppcloud/idp/jwt"
	"github.com/ppcloud/idp/store"
)

func newServiceTest(t *testing.T, cfg Config) (*Service, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	manager, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "idp-test",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = time.Hour
	}
	svc, err := NewService(store.NewRefreshStore(rdb, "idp", 0), manager, cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, func() {
		rdb.Close()
		mr.Close()
	}
}

func issueTestPair(t *testing.T, svc *Service) *Pair {
	t.Helper()
	pair, err := svc.Issue(context.Background(), IssueContext{
		TenantID:          "t-1",
		ClientID:          "web",
		UserID:            "u-1",
		DeviceFingerprint: "fp-1",
		AuthMethod:        "password",
		IncludeRefresh:    true,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return pair
}

func TestIssueReturnsVerifiablePair(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()

	pair := issueTestPair(t, svc)
	if pair.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", pair.TokenType)
	}
	if pair.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}
	if pair.ExpiresIn != int64((5 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expires_in %d", pair.ExpiresIn)
	}

	claims, err := svc.VerifyAccess(context.Background(), "t-1", pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.Subject != "u-1" || claims.TenantID != "t-1" || claims.ClientID != "web" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.AuthMethod != "password" {
		t.Fatalf("unexpected auth method %q", claims.AuthMethod)
	}
}

func TestIssueWithoutRefresh(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()

	pair, err := svc.Issue(context.Background(), IssueContext{
		TenantID: "t-1", ClientID: "web", UserID: "u-1",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.RefreshToken != "" {
		t.Fatal("refresh token minted without IncludeRefresh")
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()
	ctx := context.Background()

	pair := issueTestPair(t, svc)

	rc := RefreshContext{
		TenantID: "t-1", ClientID: "web",
		RefreshToken: pair.RefreshToken, DeviceFingerprint: "fp-1",
	}
	next, err := svc.Refresh(ctx, rc)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if next.RefreshToken == "" || next.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must mint a new secret")
	}

	claims, err := svc.VerifyAccess(ctx, "t-1", next.AccessToken)
	if err != nil {
		t.Fatalf("verify rotated access: %v", err)
	}
	if claims.AuthMethod != AuthMethodRefresh {
		t.Fatalf("rotated access should carry %q, got %q", AuthMethodRefresh, claims.AuthMethod)
	}

	// Presenting the rotated-out secret again is theft.
	if _, err := svc.Refresh(ctx, rc); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected reuse sentinel, got %v", err)
	}

	// Reuse revokes the descendant too.
	rc.RefreshToken = next.RefreshToken
	if _, err := svc.Refresh(ctx, rc); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected family revocation, got %v", err)
	}
}

func TestRefreshRejectsWrongClientAndDevice(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()
	ctx := context.Background()

	pair := issueTestPair(t, svc)

	_, err := svc.Refresh(ctx, RefreshContext{
		TenantID: "t-1", ClientID: "mobile",
		RefreshToken: pair.RefreshToken, DeviceFingerprint: "fp-1",
	})
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected invalid for wrong client, got %v", err)
	}

	_, err = svc.Refresh(ctx, RefreshContext{
		TenantID: "t-1", ClientID: "web",
		RefreshToken: pair.RefreshToken, DeviceFingerprint: "fp-other",
	})
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected invalid for wrong device, got %v", err)
	}

	// Those rejections must not consume the token.
	if _, err := svc.Refresh(ctx, RefreshContext{
		TenantID: "t-1", ClientID: "web",
		RefreshToken: pair.RefreshToken, DeviceFingerprint: "fp-1",
	}); err != nil {
		t.Fatalf("legitimate refresh after rejects: %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()

	_, err := svc.Refresh(context.Background(), RefreshContext{
		TenantID: "t-1", ClientID: "web", RefreshToken: "never-issued",
	})
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestDeviceCapRevokesOldest(t *testing.T) {
	svc, done := newServiceTest(t, Config{MaxPerDevice: 2})
	defer done()
	ctx := context.Background()

	first := issueTestPair(t, svc)
	issueTestPair(t, svc)
	issueTestPair(t, svc)

	// Three live tokens on one device with a cap of two: the first is
	// evicted as REVOKED, not silently dropped.
	_, err := svc.Refresh(ctx, RefreshContext{
		TenantID: "t-1", ClientID: "web",
		RefreshToken: first.RefreshToken, DeviceFingerprint: "fp-1",
	})
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected evicted token to be invalid, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()
	ctx := context.Background()

	pair := issueTestPair(t, svc)
	rc := RefreshContext{
		TenantID: "t-1", ClientID: "web",
		RefreshToken: pair.RefreshToken, DeviceFingerprint: "fp-1",
	}

	const workers = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Refresh(ctx, rc); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", wins)
	}
}

func TestRevokeByRefreshTokenIdempotent(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()
	ctx := context.Background()

	pair := issueTestPair(t, svc)

	if err := svc.RevokeByRefreshToken(ctx, "t-1", pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.RevokeByRefreshToken(ctx, "t-1", pair.RefreshToken); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := svc.RevokeByRefreshToken(ctx, "t-1", "never-issued"); err != nil {
		t.Fatalf("unknown revoke: %v", err)
	}

	_, err := svc.Refresh(ctx, RefreshContext{
		TenantID: "t-1", ClientID: "web",
		RefreshToken: pair.RefreshToken, DeviceFingerprint: "fp-1",
	})
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("revoked token must not rotate, got %v", err)
	}
}

func TestRevokeAllCoversEveryDevice(t *testing.T) {
	svc, done := newServiceTest(t, Config{})
	defer done()
	ctx := context.Background()

	web := issueTestPair(t, svc)
	mobile, err := svc.Issue(ctx, IssueContext{
		TenantID: "t-1", ClientID: "mobile", UserID: "u-1",
		DeviceFingerprint: "fp-2", IncludeRefresh: true,
	})
	if err != nil {
		t.Fatalf("issue mobile: %v", err)
	}

	if err := svc.RevokeAll(ctx, "t-1", "u-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	for _, tc := range []struct {
		client, token, fp string
	}{
		{"web", web.RefreshToken, "fp-1"},
		{"mobile", mobile.RefreshToken, "fp-2"},
	} {
		_, err := svc.Refresh(ctx, RefreshContext{
			TenantID: "t-1", ClientID: tc.client,
			RefreshToken: tc.token, DeviceFingerprint: tc.fp,
		})
		if !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("client %s survived revoke-all: %v", tc.client, err)
		}
	}
}

func TestAccessBlacklist(t *testing.T) {
	svc, done := newServiceTest(t, Config{EnableAccessBlacklist: true})
	defer done()
	ctx := context.Background()

	pair := issueTestPair(t, svc)

	if _, err := svc.VerifyAccess(ctx, "t-1", pair.AccessToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.RevokeAccessToken(ctx, "t-1", pair.AccessToken); err != nil {
		t.Fatalf("revoke access: %v", err)
	}
	if _, err := svc.VerifyAccess(ctx, "t-1", pair.AccessToken); !errors.Is(err, ErrAccessRevoked) {
		t.Fatalf("expected revoked sentinel, got %v", err)
	}
}
