// Package password implements credential hashing behind a delegating
// front that tags every stored hash with its algorithm.
//
// # Stored format
//
// Stored credentials carry a curly-brace algorithm tag followed by the
// algorithm's own encoding:
//
//	{argon2id}$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//	{bcrypt}$2a$10$...
//
// The tag picks the verifier, so old hashes keep verifying while new ones
// are written with the current default. [Delegating.NeedsRehash] reports
// when a stored hash uses a non-default algorithm or weaker parameters so
// callers can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length
// rules, failure counters, lockout) belongs to the workflow steps.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials. Callers supply plaintext and receive hashes.
//   - Import any sibling package.
//   - Log plaintext passwords or hash parameters.
package password
