// Package sqlite stores users, sessions and email verification requests in a
// SQLite database through modernc.org/sqlite.
//
// Open applies the embedded goose migrations before returning. Timestamps are
// stored as UTC unix milliseconds. Email uniqueness is case-insensitive.
package sqlite
