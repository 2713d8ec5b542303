// Package idp is a multi-tenant identity-provider backend built around two
// pillars: a resumable workflow engine whose entire intermediate state
// travels in a signed continuation token, and a refresh/access token
// lifecycle with rotation, reuse detection, and device-scoped caps.
//
// # Shape
//
//   - [Builder] wires Redis, the user store, and config into an [IDP].
//   - [AuthFlows] is the flow facade: registration, login, password reset.
//   - [token.Service] (via [IDP.Tokens]) owns refresh rotation and revocation.
//
// The engine itself keeps no per-flow server state; a halted flow is fully
// described by its continuation token, so any replica can resume it.
//
// # Architecture boundaries
//
// This package owns flow selection, the built-in workflow definitions, and
// outward response shaping. Step semantics live in the steps package, the
// engine mechanics in workflow, persistence in store and userdata.
package idp
