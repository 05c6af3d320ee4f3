// Package shelfauth is the identity and session subsystem of the shelf service:
// password and Google sign-in, sign-up with email-ownership verification, opaque
// cookie sessions, and a shared rate limiter in front of every entry point.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// shelfauth is the public surface. It exposes [Engine], [Builder], [Config], the
// typed inputs and the [Outcome] every orchestrator returns. Token and code
// generation live in session, verification and oauth; persistence is injected as a
// [Store] (see storage/sqlite and storage/postgres).
//
// # Outcomes
//
// Orchestrators never return raw errors. Every failure is mapped to an [Outcome]
// whose Key is stable across versions and safe to branch on in the presentation layer.
//
// # What this package must NOT do
//
//   - Import a storage backend (backends import shelfauth, not the reverse).
//   - Log tokens, codes, passwords or hashes.
//   - Cancel a side-effecting write because the caller went away.
package shelfauth
