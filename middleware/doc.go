// Package middleware adapts shelfauth.Engine to net/http.
//
// # Guards
//
//   - [Guard] rejects requests without a live session cookie.
//   - [Optional] attaches the principal when a session is present and passes
//     anonymous requests through.
//   - [ClientIP] records the caller address used for rate limiting.
//
// Guards read the session cookie, call Engine.Authenticate and put the resulting
// principal into the request context. A renewed session's cookie is written
// before the wrapped handler runs.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not touch
// the datastore or decide anything beyond pass or reject.
package middleware
