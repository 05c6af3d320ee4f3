// Package rate implements the shared request quota used in front of every
// authentication entry point.
//
// # Window semantics
//
// Fixed window per key. One Lua script performs INCR, sets PEXPIRE on the first hit
// of the window and reads PTTL, so concurrent callers sharing a key observe strictly
// increasing counts and the quota boundary admits exactly limit calls.
//
// Keys: <prefix>:<scope>:<key>, e.g. rl:sign-in:203.0.113.7
//
// # Degradation
//
// When Redis is unreachable the [FailurePolicy] decides: deny, allow, or fall back
// to a per-instance token bucket (golang.org/x/time/rate) until Redis answers again.
//
// # What this package must NOT do
//
//   - Know which flow a scope belongs to.
//   - Be imported outside the shelfauth module.
package rate
