// Package jwt creates and verifies the self-contained access tokens issued
// by the token service.
//
// Access tokens are signed JWTs carrying tenant, client, token type, and
// authentication method alongside the registered claims. They are never
// persisted: verification is signature + expiry, with the optional jti
// blacklist handled a layer above.
//
// # What this package must NOT do
//
//   - Access Redis or any I/O.
//   - Know anything about refresh tokens or rotation.
package jwt
