package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps any Redis transport or scripting failure.
var ErrStoreUnavailable = errors.New("refresh store unavailable")

// ErrRecordNotFound is returned when no record exists for a token hash.
var ErrRecordNotFound = errors.New("refresh record not found")

// ErrRecordCorrupt is returned when a stored record fails to decode.
var ErrRecordCorrupt = errors.New("refresh record corrupt")

const defaultOpTimeout = 3 * time.Second

// indexSchemaVersion tags the device-index key layout. Bump it together
// with any change to the ZSET member or score encoding.
const indexSchemaVersion = "v1"

const markUsedScript = `
local status = redis.call("HGET", KEYS[1], "status")
if status ~= "ACTIVE" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "USED", "used_at", ARGV[1], "rotated_to", ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`

var markUsedLua = redis.NewScript(markUsedScript)

const indexTrimScript = `
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
local max = tonumber(ARGV[4])
local size = redis.call("ZCARD", KEYS[1])
local evicted = {}
if size > max then
  local victims = redis.call("ZRANGE", KEYS[1], 0, size - max - 1)
  for i, hash in ipairs(victims) do
    redis.call("ZREM", KEYS[1], hash)
    local record_key = ARGV[5] .. hash
    if redis.call("EXISTS", record_key) == 1 then
      local st = redis.call("HGET", record_key, "status")
      if st == "ACTIVE" then
        redis.call("HSET", record_key, "status", "REVOKED", "revoked_at", ARGV[6])
      end
      evicted[#evicted + 1] = hash
    end
  end
end
return evicted
`

var indexTrimLua = redis.NewScript(indexTrimScript)

// RefreshStore is the Redis-backed persistence layer for refresh-token
// records, the per-device rotation index, and the access-token jti
// blacklist. All state-transition mutations run as single Lua scripts.
type RefreshStore struct {
	redis     redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

// NewRefreshStore creates a [RefreshStore] on the given Redis client.
// prefix sets the key namespace shared by records, indexes, and the
// blacklist; opTimeout bounds each Redis round trip (0 means a 3s default).
func NewRefreshStore(redis redis.UniversalClient, prefix string, opTimeout time.Duration) *RefreshStore {
	if prefix == "" {
		prefix = "rt"
	}
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &RefreshStore{
		redis:     redis,
		prefix:    prefix,
		opTimeout: opTimeout,
	}
}

func (s *RefreshStore) recordKey(tenantID, tokenHash string) string {
	return s.recordKeyPrefix(tenantID) + tokenHash
}

func (s *RefreshStore) recordKeyPrefix(tenantID string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":rt:"
}

func (s *RefreshStore) indexKey(tenantID, userID, clientID, deviceHash string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":rtidx:" + indexSchemaVersion +
		":" + userID + ":" + clientID + ":" + deviceHash
}

func (s *RefreshStore) blacklistKey(tenantID, jti string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":bl:" + jti
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

func (s *RefreshStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// PutRecord writes a record under the token hash with the given TTL.
//
//	Performance: 2 Redis commands in one transaction (HSET + PEXPIRE).
func (s *RefreshStore) PutRecord(ctx context.Context, tokenHash string, rec *Record, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.recordKey(rec.TenantID, tokenHash)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, rec.fields())
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetRecord fetches the record stored under a token hash.
//
//	Performance: 1 Redis HGETALL.
func (s *RefreshStore) GetRecord(ctx context.Context, tenantID, tokenHash string) (*Record, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields, err := s.redis.HGetAll(ctx, s.recordKey(tenantID, tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	return recordFromFields(fields)
}

// DeleteRecord removes a record. Missing keys are not an error.
func (s *RefreshStore) DeleteRecord(ctx context.Context, tenantID, tokenHash string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.redis.Del(ctx, s.recordKey(tenantID, tokenHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MarkUsedOnce atomically transitions a record from ACTIVE to USED and
// returns whether this caller won the transition. Exactly one concurrent
// caller observes true; everyone else sees false, which is the reuse
// signal the rotation protocol depends on.
//
// auditTTL, when positive, re-arms the record TTL so the USED tombstone
// outlives the original refresh window for forensics.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
func (s *RefreshStore) MarkUsedOnce(ctx context.Context, tenantID, tokenHash, rotatedToHash string, auditTTL time.Duration) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := markUsedLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(tenantID, tokenHash)},
		time.Now().UnixMilli(),
		rotatedToHash,
		auditTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res == 1, nil
}

// AddToIndexAndTrim registers a token hash in the device index and evicts
// the oldest live entries beyond maxLive. Evicted records are flipped to
// REVOKED in the same script, never deleted, so a later presentation of an
// evicted token still resolves to an explicit revocation. Returns the
// hashes of evicted entries that still had records.
//
//	Performance: 1 Lua EVALSHA.
func (s *RefreshStore) AddToIndexAndTrim(
	ctx context.Context,
	rec *Record,
	tokenHash string,
	indexTTL time.Duration,
	maxLive int,
) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if maxLive < 1 {
		maxLive = 1
	}

	res, err := indexTrimLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(rec.TenantID, rec.UserID, rec.ClientID, rec.DeviceHash)},
		rec.IssuedAt,
		tokenHash,
		indexTTL.Milliseconds(),
		maxLive,
		s.recordKeyPrefix(rec.TenantID),
		time.Now().UnixMilli(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res, nil
}

// RemoveFromIndex drops one token hash from a device index.
func (s *RefreshStore) RemoveFromIndex(ctx context.Context, tenantID, userID, clientID, deviceHash, tokenHash string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.indexKey(tenantID, userID, clientID, deviceHash)
	if err := s.redis.ZRem(ctx, key, tokenHash).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IndexMembers returns all token hashes tracked in one device index,
// oldest first.
func (s *RefreshStore) IndexMembers(ctx context.Context, tenantID, userID, clientID, deviceHash string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	members, err := s.redis.ZRange(ctx, s.indexKey(tenantID, userID, clientID, deviceHash), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return members, nil
}

// IndexMembersNewestFirst returns index members newest first and prunes
// entries whose record key has already expired.
//
// ATOMICITY NOTE: the prune phase is read-then-delete, not atomic. A
// record expiring between the EXISTS check and the ZREM leaves a stale
// index entry until the next call; the entry is harmless because record
// lookup is always the source of truth.
func (s *RefreshStore) IndexMembersNewestFirst(ctx context.Context, tenantID, userID, clientID, deviceHash string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	indexKey := s.indexKey(tenantID, userID, clientID, deviceHash)
	members, err := s.redis.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(members))
	for i, hash := range members {
		existsCmds[i] = pipe.Exists(ctx, s.recordKey(tenantID, hash))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	live := make([]string, 0, len(members))
	var stale []string
	for i, cmd := range existsCmds {
		n, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if n == 1 {
			live = append(live, members[i])
		} else {
			stale = append(stale, members[i])
		}
	}

	if len(stale) > 0 {
		staleMembers := make([]interface{}, len(stale))
		for i, hash := range stale {
			staleMembers[i] = hash
		}
		if err := s.redis.ZRem(ctx, indexKey, staleMembers...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return live, nil
}

// ScanUserIndexes walks every device index belonging to one user within a
// tenant. This is a scoped SCAN, O(keys in tenant namespace); intended for
// revoke-all, not request hot paths.
func (s *RefreshStore) ScanUserIndexes(ctx context.Context, tenantID, userID string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pattern := s.prefix + ":" + normalizeTenantID(tenantID) + ":rtidx:" + indexSchemaVersion + ":" + userID + ":*"
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// ParseIndexKey splits a full device-index key back into its user, client,
// and device components. Used by revoke-all after ScanUserIndexes.
func (s *RefreshStore) ParseIndexKey(tenantID, key string) (userID, clientID, deviceHash string, ok bool) {
	want := s.prefix + ":" + normalizeTenantID(tenantID) + ":rtidx:" + indexSchemaVersion + ":"
	rest, found := strings.CutPrefix(key, want)
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// MarkRevoked flips a record to REVOKED in place. Idempotent; records
// already USED or REVOKED keep their original terminal status timestamps
// except revoked_at, which is only written the first time.
func (s *RefreshStore) MarkRevoked(ctx context.Context, tenantID, tokenHash string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.recordKey(tenantID, tokenHash)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldStatus, string(StatusRevoked))
		pipe.HSetNX(ctx, key, fieldRevokedAt, time.Now().UnixMilli())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// BlacklistJTI records an access-token jti as revoked for the given TTL.
// The TTL should match the access token's remaining lifetime.
func (s *RefreshStore) BlacklistJTI(ctx context.Context, tenantID, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.redis.Set(ctx, s.blacklistKey(tenantID, jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsJTIBlacklisted reports whether an access-token jti has been revoked.
func (s *RefreshStore) IsJTIBlacklisted(ctx context.Context, tenantID, jti string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.redis.Exists(ctx, s.blacklistKey(tenantID, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RefreshStore) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
