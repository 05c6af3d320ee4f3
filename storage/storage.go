// Package storage holds the error contract shared by every datastore backend.
//
// Backends (storage/sqlite, storage/postgres, session.RedisStore) translate driver
// errors into these sentinels so the Engine can map them to outcomes without
// importing driver packages.
package storage

import "errors"

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness or state constraint.
	ErrConflict = errors.New("record conflict")
	// ErrInvalidRecord is returned when a write fails a CHECK or NOT NULL
	// constraint. It points at a caller bug, not at a competing write.
	ErrInvalidRecord = errors.New("record violates schema constraint")
	// ErrUnavailable wraps transport and driver failures. Callers must not retry
	// automatically; the failure is surfaced and logged.
	ErrUnavailable = errors.New("datastore unavailable")
)
