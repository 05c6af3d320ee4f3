// Package verification implements the email-ownership challenge: a short code
// mailed to the address, redeemed once before it expires.
//
// Each user has at most one live request. Creating a new one replaces the old in
// the same store transaction. Redemption checks existence, consumption and expiry,
// compares the code in constant time, and then consumes the request with a
// conditional update so two concurrent redeems can not both succeed.
package verification
