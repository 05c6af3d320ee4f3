// Package oauth runs the Google authorization-code flow with PKCE.
//
// [Initiator] creates a state value and a code verifier as a pair, both held in
// short-lived HttpOnly cookies, and builds the provider URL carrying the S256 code
// challenge. [Callback] checks the returned state against its cookie, exchanges the
// code together with the verifier, and reads the identity from the id_token claims.
// Both cookies are cleared on every callback regardless of the outcome.
//
// The id_token is taken from the token endpoint response over TLS, so its signature
// is not re-verified; exp, aud and iss are.
package oauth
