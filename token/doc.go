// Package token implements the access/refresh token lifecycle: issuance,
// rotation with reuse detection, device-scoped caps, and revocation.
//
// # Rotation protocol
//
// Refresh tokens are opaque secrets, stored server-side only as SHA-256
// hashes. Rotation is a compare-and-swap: the presented record moves from
// ACTIVE to USED exactly once, and a replacement record in the same family
// is written. A second presentation of the same secret loses the CAS, which
// is treated as theft and revokes the whole device-scoped family.
//
// # Architecture boundaries
//
// This package owns lifecycle policy: fail-fast validation order, what a
// lost CAS means, what eviction means. Persistence atomicity lives in the
// store package; JWT claims shape lives in the jwt package.
//
// # What this package must NOT do
//
//   - Authenticate users. Callers prove identity before asking for tokens.
//   - Return different errors for "unknown token" vs "wrong client"; every
//     validation failure is the same opaque ErrRefreshInvalid.
package token
