// Package session issues, validates and revokes opaque session tokens.
//
// # Tokens
//
// A token is 20 random bytes rendered as lower-case base32 without padding. Only
// hex(sha256(token)) is ever persisted; it doubles as the session id, so a leaked
// store dump can not be replayed as a cookie.
//
// # Lifetime
//
// Sessions live for a fixed duration (30 days by default). With [RenewalSliding] the
// expiry is pushed back to a full lifetime once less than half of it remains. Expired
// records are deleted on the read that finds them.
//
// # Storage
//
// [Store] is implemented here by [RedisStore] and, for SQL deployments, by the
// storage/sqlite and storage/postgres packages.
//
// # What this package must NOT do
//
//   - Store the raw token.
//   - Import the root shelfauth package.
//   - Decide whether a user may sign in.
package session
