package userdata

import (
	"context"
	"sync"
	"time"

	"github.com/ppcloud/idp/identifier"
)

// Mem is the in-memory [Access] implementation. A single mutex guards all
// maps, which trivially gives the conditional updates their atomicity.
type Mem struct {
	mu           sync.Mutex
	users        map[string]*User
	identifiers  map[string]*Identifier
	passwords    map[string]*PasswordRecord
	devices      map[string]*Device
	otps         map[string]*OTPChallenge
	actionTokens map[string]*ActionToken
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		users:        make(map[string]*User),
		identifiers:  make(map[string]*Identifier),
		passwords:    make(map[string]*PasswordRecord),
		devices:      make(map[string]*Device),
		otps:         make(map[string]*OTPChallenge),
		actionTokens: make(map[string]*ActionToken),
	}
}

func scopedKey(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key += "\x00" + p
	}
	return key
}

func (m *Mem) FindUser(_ context.Context, tenantID, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[scopedKey(tenantID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Mem) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopedKey(user.TenantID, user.ID)
	if _, exists := m.users[key]; exists {
		return ErrDuplicate
	}
	cp := *user
	m.users[key] = &cp
	return nil
}

func identKey(tenantID string, typ identifier.Type, norm string) string {
	return scopedKey(tenantID, string(typ), norm)
}

func (m *Mem) FindIdentifier(_ context.Context, tenantID string, typ identifier.Type, norm string) (*Identifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.identifiers[identKey(tenantID, typ, norm)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (m *Mem) SaveIdentifier(_ context.Context, ident *Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identKey(ident.TenantID, ident.Type, ident.Norm)
	if existing, ok := m.identifiers[key]; ok && existing.UserID != ident.UserID {
		return ErrDuplicate
	}
	cp := *ident
	m.identifiers[key] = &cp
	return nil
}

func (m *Mem) MarkIdentifierVerified(_ context.Context, tenantID string, typ identifier.Type, norm string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.identifiers[identKey(tenantID, typ, norm)]
	if !ok {
		return ErrNotFound
	}
	ident.Verified = true
	return nil
}

func (m *Mem) FindPassword(_ context.Context, tenantID, userID string) (*PasswordRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.passwords[scopedKey(tenantID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Mem) SavePassword(_ context.Context, rec *PasswordRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.passwords[scopedKey(rec.TenantID, rec.UserID)] = &cp
	return nil
}

func (m *Mem) BumpPasswordFail(_ context.Context, tenantID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.passwords[scopedKey(tenantID, userID)]
	if !ok {
		return 0, ErrNotFound
	}
	rec.FailCount++
	return rec.FailCount, nil
}

func (m *Mem) ClearPasswordFail(_ context.Context, tenantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.passwords[scopedKey(tenantID, userID)]
	if !ok {
		return ErrNotFound
	}
	rec.FailCount = 0
	return nil
}

func (m *Mem) FindDevice(_ context.Context, tenantID, userID, deviceHash string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[scopedKey(tenantID, userID, deviceHash)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *Mem) UpsertDeviceSeen(_ context.Context, tenantID, userID, deviceHash string, now time.Time) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopedKey(tenantID, userID, deviceHash)
	d, ok := m.devices[key]
	if !ok {
		d = &Device{
			TenantID:   tenantID,
			UserID:     userID,
			DeviceHash: deviceHash,
			FirstSeen:  now,
		}
		m.devices[key] = d
	}
	d.LastSeen = now
	d.SeenCount++
	cp := *d
	return &cp, nil
}

func (m *Mem) CreateOTP(_ context.Context, challenge *OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopedKey(challenge.TenantID, challenge.ID)
	if _, exists := m.otps[key]; exists {
		return ErrDuplicate
	}
	cp := *challenge
	if cp.MaxAttempts <= 0 {
		cp.MaxAttempts = DefaultOTPMaxAttempts
	}
	m.otps[key] = &cp
	return nil
}

func (m *Mem) VerifyOTP(_ context.Context, tenantID, challengeID, codeHash string, now time.Time) (OTPVerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.otps[scopedKey(tenantID, challengeID)]
	if !ok {
		return OTPVerifyResult{Reason: ReasonChallengeNotFound}, nil
	}
	if !ch.PassedAt.IsZero() {
		return OTPVerifyResult{Reason: ReasonOTPAlreadyPassed}, nil
	}
	if now.After(ch.ExpiresAt) {
		return OTPVerifyResult{Reason: ReasonOTPExpired}, nil
	}
	if ch.Attempts >= ch.MaxAttempts {
		return OTPVerifyResult{Reason: ReasonOTPAttemptsExceeded}, nil
	}
	if ch.CodeHash != codeHash {
		ch.Attempts++
		if ch.Attempts >= ch.MaxAttempts {
			return OTPVerifyResult{Reason: ReasonOTPAttemptsExceeded}, nil
		}
		return OTPVerifyResult{Reason: ReasonOTPCodeMismatch}, nil
	}

	ch.PassedAt = now
	return OTPVerifyResult{OK: true, Target: ch.Target}, nil
}

func (m *Mem) CreateActionToken(_ context.Context, token *ActionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopedKey(token.TenantID, token.Hash)
	if _, exists := m.actionTokens[key]; exists {
		return ErrDuplicate
	}
	cp := *token
	if token.Payload != nil {
		cp.Payload = make(map[string]string, len(token.Payload))
		for k, v := range token.Payload {
			cp.Payload[k] = v
		}
	}
	m.actionTokens[key] = &cp
	return nil
}

func (m *Mem) ConsumeActionToken(_ context.Context, tenantID, tokenHash, purpose string, now time.Time) (ActionTokenConsumeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.actionTokens[scopedKey(tenantID, tokenHash)]
	if !ok {
		return ActionTokenConsumeResult{Reason: ReasonTokenNotFound}, nil
	}
	if tok.Purpose != purpose {
		return ActionTokenConsumeResult{Reason: ReasonTokenPurposeMismatch}, nil
	}
	if !tok.ConsumedAt.IsZero() {
		return ActionTokenConsumeResult{Reason: ReasonTokenAlreadyUsed}, nil
	}
	if now.After(tok.ExpiresAt) {
		return ActionTokenConsumeResult{Reason: ReasonTokenExpired}, nil
	}

	tok.ConsumedAt = now
	payload := make(map[string]string, len(tok.Payload))
	for k, v := range tok.Payload {
		payload[k] = v
	}
	return ActionTokenConsumeResult{OK: true, UserID: tok.UserID, Payload: payload}, nil
}
