package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppcloud/idp/audit"
	"github.com/ppcloud/idp/internal/crypt"
	"github.com/ppcloud/idp/jwt"
	"github.com/ppcloud/idp/store"
)

// ErrRefreshInvalid is returned for every refresh rejection that is not a
// detected reuse: unknown token, wrong client, wrong device, expired,
// revoked. Callers get one opaque failure on purpose.
var ErrRefreshInvalid = errors.New("refresh token invalid")

// ErrRefreshReuse is returned when a refresh secret that was already
// rotated is presented again. The whole device-scoped family has been
// revoked by the time this error surfaces.
var ErrRefreshReuse = errors.New("refresh token reuse detected")

// ErrAccessRevoked is returned by VerifyAccess when the jti is blacklisted.
var ErrAccessRevoked = errors.New("access token revoked")

// AuthMethodRefresh marks access tokens minted through rotation rather
// than a primary login.
const AuthMethodRefresh = "refresh"

const defaultMaxPerDevice = 2

// Config holds token lifecycle policy.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// MaxPerDevice caps live refresh tokens per (user, client, device).
	// Zero means the default of 2.
	MaxPerDevice int
	// EnableAccessBlacklist adds a per-jti revocation check to
	// VerifyAccess at the cost of one Redis round trip.
	EnableAccessBlacklist bool
}

// Pair is one issued access/refresh pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// IssueContext identifies the authenticated principal a pair is minted for.
type IssueContext struct {
	TenantID          string
	ClientID          string
	UserID            string
	DeviceFingerprint string
	AuthMethod        string
	// IncludeRefresh false mints an access token only.
	IncludeRefresh bool
}

// RefreshContext carries one rotation request.
type RefreshContext struct {
	TenantID          string
	ClientID          string
	RefreshToken      string
	DeviceFingerprint string
	IP                string
}

// Service implements the token lifecycle on top of the refresh store and
// the JWT manager.
type Service struct {
	store  *store.RefreshStore
	jwt    *jwt.Manager
	cfg    Config
	logger *slog.Logger
	audit  *audit.Dispatcher
}

// Option configures a [Service].
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAudit attaches an audit dispatcher. Nil is fine.
func WithAudit(d *audit.Dispatcher) Option {
	return func(s *Service) {
		s.audit = d
	}
}

// NewService wires a token [Service].
func NewService(st *store.RefreshStore, manager *jwt.Manager, cfg Config, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("refresh store required")
	}
	if manager == nil {
		return nil, errors.New("jwt manager required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("access and refresh ttl must be positive")
	}
	if cfg.MaxPerDevice == 0 {
		cfg.MaxPerDevice = defaultMaxPerDevice
	}
	if cfg.MaxPerDevice < 1 {
		return nil, errors.New("max per device must be at least 1")
	}

	s := &Service{
		store:  st,
		jwt:    manager,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue mints a new pair for an already-authenticated principal and starts
// a fresh rotation family. Evicted tokens beyond the device cap are revoked
// by the index trim.
func (s *Service) Issue(ctx context.Context, ic IssueContext) (*Pair, error) {
	if ic.UserID == "" || ic.ClientID == "" {
		return nil, errors.New("user and client required")
	}

	access, err := s.jwt.CreateAccess(
		ic.TenantID, ic.ClientID, ic.UserID,
		uuid.NewString(), ic.AuthMethod, s.cfg.AccessTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	pair := &Pair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTTL.Seconds()),
	}
	if !ic.IncludeRefresh {
		return pair, nil
	}

	secret, rec, err := s.newRefreshRecord(ic, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if err := s.persistRefresh(ctx, secret, rec); err != nil {
		return nil, err
	}
	pair.RefreshToken = secret

	s.emit(ctx, audit.Event{
		Timestamp: time.Now(),
		EventType: audit.EventTokenIssued,
		TenantID:  ic.TenantID,
		ClientID:  ic.ClientID,
		UserID:    ic.UserID,
		Success:   true,
		Metadata:  map[string]string{"auth_method": ic.AuthMethod},
	})
	return pair, nil
}

// Refresh rotates a refresh token. Validation is fail-fast and every
// rejection except detected reuse collapses into [ErrRefreshInvalid].
func (s *Service) Refresh(ctx context.Context, rc RefreshContext) (*Pair, error) {
	if rc.RefreshToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrRefreshInvalid)
	}

	oldHash := crypt.SHA256Base64URL(rc.RefreshToken)
	deviceHash := crypt.DeviceHash(rc.DeviceFingerprint)

	rec, err := s.store.GetRecord(ctx, rc.TenantID, oldHash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown token", ErrRefreshInvalid)
		}
		return nil, err
	}

	switch {
	case rec.ClientID != rc.ClientID:
		return nil, fmt.Errorf("%w: client mismatch", ErrRefreshInvalid)
	case rec.DeviceHash != deviceHash:
		return nil, fmt.Errorf("%w: device mismatch", ErrRefreshInvalid)
	}

	if rec.ExpiresAt <= time.Now().UnixMilli() {
		// Lazy cleanup; the record TTL would have fired soon anyway.
		_ = s.store.DeleteRecord(ctx, rc.TenantID, oldHash)
		_ = s.store.RemoveFromIndex(ctx, rc.TenantID, rec.UserID, rec.ClientID, rec.DeviceHash, oldHash)
		return nil, fmt.Errorf("%w: expired", ErrRefreshInvalid)
	}
	if rec.Status == store.StatusRevoked {
		return nil, fmt.Errorf("%w: revoked", ErrRefreshInvalid)
	}

	newSecret, err := crypt.NewOpaqueToken(crypt.OpaqueTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}
	newHash := crypt.SHA256Base64URL(newSecret)

	won, err := s.store.MarkUsedOnce(ctx, rc.TenantID, oldHash, newHash, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	if !won {
		s.handleReuse(ctx, rc, rec, oldHash)
		return nil, ErrRefreshReuse
	}

	if err := s.store.RemoveFromIndex(ctx, rc.TenantID, rec.UserID, rec.ClientID, rec.DeviceHash, oldHash); err != nil {
		s.logger.WarnContext(ctx, "deindex rotated token failed", "error", err)
	}

	now := time.Now()
	next := &store.Record{
		TenantID:   rec.TenantID,
		UserID:     rec.UserID,
		ClientID:   rec.ClientID,
		DeviceHash: rec.DeviceHash,
		Family:     rec.Family,
		IssuedAt:   now.UnixMilli(),
		ExpiresAt:  now.Add(s.cfg.RefreshTTL).UnixMilli(),
		Status:     store.StatusActive,
	}
	if err := s.persistRefreshHashed(ctx, newHash, next); err != nil {
		return nil, err
	}

	access, err := s.jwt.CreateAccess(
		rec.TenantID, rec.ClientID, rec.UserID,
		uuid.NewString(), AuthMethodRefresh, s.cfg.AccessTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.emit(ctx, audit.Event{
		Timestamp: now,
		EventType: audit.EventTokenRefresh,
		TenantID:  rec.TenantID,
		ClientID:  rec.ClientID,
		UserID:    rec.UserID,
		IP:        rc.IP,
		Success:   true,
	})

	return &Pair{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
		RefreshToken: newSecret,
	}, nil
}

// handleReuse revokes the presented token's whole family on its device.
func (s *Service) handleReuse(ctx context.Context, rc RefreshContext, rec *store.Record, presentedHash string) {
	revoked := s.revokeDeviceFamily(ctx, rec, rec.Family)
	_ = s.store.MarkRevoked(ctx, rec.TenantID, presentedHash)

	s.logger.WarnContext(ctx, "refresh reuse detected, family revoked",
		"tenant_id", rec.TenantID,
		"user_id", rec.UserID,
		"client_id", rec.ClientID,
		"revoked", revoked,
	)
	s.emit(ctx, audit.Event{
		Timestamp: time.Now(),
		EventType: audit.EventReuseDetected,
		TenantID:  rec.TenantID,
		ClientID:  rec.ClientID,
		UserID:    rec.UserID,
		IP:        rc.IP,
		Success:   false,
		Reason:    "REFRESH_REUSE",
	})
}

// revokeDeviceFamily marks every index member that shares the family as
// REVOKED and removes it from the index. Returns how many were revoked.
func (s *Service) revokeDeviceFamily(ctx context.Context, rec *store.Record, family string) int {
	members, err := s.store.IndexMembers(ctx, rec.TenantID, rec.UserID, rec.ClientID, rec.DeviceHash)
	if err != nil {
		s.logger.ErrorContext(ctx, "family revoke index read failed", "error", err)
		return 0
	}

	var revoked int
	for _, hash := range members {
		member, err := s.store.GetRecord(ctx, rec.TenantID, hash)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				_ = s.store.RemoveFromIndex(ctx, rec.TenantID, rec.UserID, rec.ClientID, rec.DeviceHash, hash)
				continue
			}
			s.logger.ErrorContext(ctx, "family revoke record read failed", "error", err)
			continue
		}
		if family != "" && member.Family != family {
			continue
		}
		if err := s.store.MarkRevoked(ctx, rec.TenantID, hash); err != nil {
			s.logger.ErrorContext(ctx, "family revoke mark failed", "error", err)
			continue
		}
		_ = s.store.RemoveFromIndex(ctx, rec.TenantID, rec.UserID, rec.ClientID, rec.DeviceHash, hash)
		revoked++
	}
	return revoked
}

// RevokeByRefreshToken revokes one refresh token. Unknown tokens are a
// silent success so logout stays idempotent.
func (s *Service) RevokeByRefreshToken(ctx context.Context, tenantID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	hash := crypt.SHA256Base64URL(refreshToken)

	rec, err := s.store.GetRecord(ctx, tenantID, hash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := s.store.MarkRevoked(ctx, tenantID, hash); err != nil {
		return err
	}
	if err := s.store.RemoveFromIndex(ctx, tenantID, rec.UserID, rec.ClientID, rec.DeviceHash, hash); err != nil {
		return err
	}

	s.emitRevoke(ctx, tenantID, rec.ClientID, rec.UserID, "single")
	return nil
}

// RevokeDevice revokes every refresh token for one (user, client, device).
func (s *Service) RevokeDevice(ctx context.Context, tenantID, userID, clientID, deviceFingerprint string) error {
	rec := &store.Record{
		TenantID:   tenantID,
		UserID:     userID,
		ClientID:   clientID,
		DeviceHash: crypt.DeviceHash(deviceFingerprint),
	}
	s.revokeDeviceFamily(ctx, rec, "")
	s.emitRevoke(ctx, tenantID, clientID, userID, "device")
	return nil
}

// RevokeAll revokes every refresh token a user holds in a tenant, across
// all clients and devices. O(user's index keys); not a hot path.
func (s *Service) RevokeAll(ctx context.Context, tenantID, userID string) error {
	keys, err := s.store.ScanUserIndexes(ctx, tenantID, userID)
	if err != nil {
		return err
	}

	for _, key := range keys {
		user, clientID, deviceHash, ok := s.store.ParseIndexKey(tenantID, key)
		if !ok || user != userID {
			continue
		}
		rec := &store.Record{
			TenantID:   tenantID,
			UserID:     userID,
			ClientID:   clientID,
			DeviceHash: deviceHash,
		}
		s.revokeDeviceFamily(ctx, rec, "")
	}

	s.emitRevoke(ctx, tenantID, "", userID, "all")
	return nil
}

// VerifyAccess validates an access token and, when the blacklist is
// enabled, rejects revoked jtis with [ErrAccessRevoked].
func (s *Service) VerifyAccess(ctx context.Context, tenantID, accessToken string) (*jwt.AccessClaims, error) {
	claims, err := s.jwt.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}

	if s.cfg.EnableAccessBlacklist {
		listed, err := s.store.IsJTIBlacklisted(ctx, tenantID, claims.ID)
		if err != nil {
			return nil, err
		}
		if listed {
			return nil, ErrAccessRevoked
		}
	}

	return claims, nil
}

// RevokeAccessToken blacklists an access token's jti for its remaining
// lifetime. Already-expired tokens are a no-op.
func (s *Service) RevokeAccessToken(ctx context.Context, tenantID, accessToken string) error {
	claims, err := s.jwt.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	return s.store.BlacklistJTI(ctx, tenantID, claims.ID, remaining)
}

func (s *Service) newRefreshRecord(ic IssueContext, family string) (secret string, rec *store.Record, err error) {
	secret, err = crypt.NewOpaqueToken(crypt.OpaqueTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := time.Now()
	rec = &store.Record{
		TenantID:   ic.TenantID,
		UserID:     ic.UserID,
		ClientID:   ic.ClientID,
		DeviceHash: crypt.DeviceHash(ic.DeviceFingerprint),
		Family:     family,
		IssuedAt:   now.UnixMilli(),
		ExpiresAt:  now.Add(s.cfg.RefreshTTL).UnixMilli(),
		Status:     store.StatusActive,
	}
	return secret, rec, nil
}

func (s *Service) persistRefresh(ctx context.Context, secret string, rec *store.Record) error {
	return s.persistRefreshHashed(ctx, crypt.SHA256Base64URL(secret), rec)
}

func (s *Service) persistRefreshHashed(ctx context.Context, tokenHash string, rec *store.Record) error {
	if err := s.store.PutRecord(ctx, tokenHash, rec, s.cfg.RefreshTTL); err != nil {
		return err
	}

	evicted, err := s.store.AddToIndexAndTrim(ctx, rec, tokenHash, s.cfg.RefreshTTL, s.cfg.MaxPerDevice)
	if err != nil {
		return err
	}
	if len(evicted) > 0 {
		s.logger.InfoContext(ctx, "device cap evicted refresh tokens",
			"tenant_id", rec.TenantID,
			"user_id", rec.UserID,
			"client_id", rec.ClientID,
			"evicted", len(evicted),
		)
	}
	return nil
}

func (s *Service) emitRevoke(ctx context.Context, tenantID, clientID, userID, scope string) {
	s.emit(ctx, audit.Event{
		Timestamp: time.Now(),
		EventType: audit.EventTokenRevoked,
		TenantID:  tenantID,
		ClientID:  clientID,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"scope": scope},
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	s.audit.Emit(ctx, event)
}
