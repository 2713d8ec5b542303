// Package store is the Redis-backed keyed store for refresh-token records,
// per-device token indexes, and the access-token jti blacklist.
//
// # Key layout (v1, the only generation)
//
//	{prefix}:{tenant}:rt:{rtHash}                         HASH, TTL
//	{prefix}:{tenant}:rtidx:v1:{user}:{client}:{device}   ZSET(rtHash), score = issuedAt ms, TTL
//	{prefix}:{tenant}:bl:{jti}                            STRING "1", TTL
//
// Records are keyed by the one-way hash of the opaque refresh secret; the
// store never holds the secret itself. Every mutation that must be atomic
// against concurrent callers (the ACTIVE→USED consume and the index
// add-trim-evict) runs as a single Lua script, so Redis serializes it per
// key with no client-side locking.
//
// # What this package must NOT do
//
//   - Generate or hash secrets (internal/crypt does).
//   - Decide rotation or reuse policy (the token service does).
package store
