// Package steps is the built-in step library the workflow definitions are
// assembled from. Each step is a small, stateless unit: it reads the shared
// bag and the caller's input, talks to the injected services, and returns
// ok / halt / fail.
//
// # Anti-enumeration
//
// Steps that touch identifiers (login lookup, reset OTP send) answer
// identically whether or not the identifier exists. Rejections that would
// reveal account state collapse into generic hints; the precise cause only
// travels in internal reasons and audit events.
//
// # Architecture boundaries
//
// Steps receive services through [Deps] at construction time and
// request-scoped facts through the engine's Env. They never see tokens'
// signing keys or the continuation codec.
//
// # What this package must NOT do
//
//   - Put secrets, codes, or password material into the bag. The bag is
//     signed, not encrypted.
//   - Import the root idp package.
package steps
