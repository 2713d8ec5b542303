// Package workflow implements a generic resumable step-execution engine.
//
// A workflow is an ordered, versioned list of steps. The engine runs steps
// until one of them halts (needs further client input), fails, or the list is
// exhausted (done). When a step halts, all in-flight state (workflow id,
// version, current step index, and the shared bag) is encoded into an
// opaque, HMAC-signed continuation token the client must echo back to
// resume. Request handlers stay stateless: a resume call reconstructs the
// execution entirely from the token.
//
// # Architecture boundaries
//
// This package knows nothing about registration, login, or password reset.
// Business steps live elsewhere and plug in through [Step] and [Factory].
//
// # What this package must NOT do
//
//   - Perform storage or network I/O of its own.
//   - Leak bag contents or internal reason codes into failed responses.
//   - Accept a resumed token whose version differs from the registry's.
package workflow
