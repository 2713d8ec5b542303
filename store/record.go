package store

import (
	"fmt"
	"strconv"
)

// Status is the lifecycle state of a refresh-token record.
type Status string

const (
	// StatusActive marks a record that can still be rotated.
	StatusActive Status = "ACTIVE"
	// StatusUsed marks a rotated-out record, kept for its remaining TTL so
	// reuse is detectable and auditable.
	StatusUsed Status = "USED"
	// StatusRevoked marks a record invalidated by eviction, reuse
	// detection, or explicit revoke. Kept, not deleted.
	StatusRevoked Status = "REVOKED"
)

// Hash field names of a record key. The Lua scripts address these by name;
// keep them in sync.
const (
	fieldTenantID  = "tenant"
	fieldUserID    = "user"
	fieldClientID  = "client"
	fieldDevice    = "device"
	fieldFamily    = "family"
	fieldIssuedAt  = "iat"
	fieldExpiresAt = "exp"
	fieldStatus    = "status"
	fieldUsedAt    = "used_at"
	fieldRotatedTo = "rotated_to"
	fieldRevokedAt = "revoked_at"
)

// Record is one refresh token's server-side state. The opaque secret never
// appears here; the record is addressed by the secret's hash.
type Record struct {
	TenantID   string
	UserID     string
	ClientID   string
	DeviceHash string
	// Family is the rotation lineage id; all descendants of one issuance
	// share it and are revoked together on detected reuse.
	Family    string
	IssuedAt  int64
	ExpiresAt int64
	Status    Status

	// Rotation audit trail, zero until the record leaves ACTIVE.
	UsedAt    int64
	RotatedTo string
	RevokedAt int64
}

func (r *Record) fields() map[string]interface{} {
	return map[string]interface{}{
		fieldTenantID:  r.TenantID,
		fieldUserID:    r.UserID,
		fieldClientID:  r.ClientID,
		fieldDevice:    r.DeviceHash,
		fieldFamily:    r.Family,
		fieldIssuedAt:  strconv.FormatInt(r.IssuedAt, 10),
		fieldExpiresAt: strconv.FormatInt(r.ExpiresAt, 10),
		fieldStatus:    string(r.Status),
	}
}

func recordFromFields(m map[string]string) (*Record, error) {
	rec := &Record{
		TenantID:   m[fieldTenantID],
		UserID:     m[fieldUserID],
		ClientID:   m[fieldClientID],
		DeviceHash: m[fieldDevice],
		Family:     m[fieldFamily],
		Status:     Status(m[fieldStatus]),
		RotatedTo:  m[fieldRotatedTo],
	}
	if rec.UserID == "" || rec.ClientID == "" || rec.Status == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrRecordCorrupt)
	}

	var err error
	if rec.IssuedAt, err = parseOptInt(m[fieldIssuedAt]); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseOptInt(m[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if rec.UsedAt, err = parseOptInt(m[fieldUsedAt]); err != nil {
		return nil, err
	}
	if rec.RevokedAt, err = parseOptInt(m[fieldRevokedAt]); err != nil {
		return nil, err
	}

	return rec, nil
}

func parseOptInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad numeric field %q", ErrRecordCorrupt, s)
	}
	return n, nil
}
