package shelfauth

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/verification"
)

// AccountStatus is the approval state of a user.
type AccountStatus string

const (
	StatusPending  AccountStatus = "PENDING"
	StatusApproved AccountStatus = "APPROVED"
	StatusRejected AccountStatus = "REJECTED"
)

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether the status may move from s to next.
// Only PENDING may change, and never back to PENDING.
func (s AccountStatus) CanTransition(next AccountStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// User is an account record.
type User struct {
	ID              string
	Email           string
	FullName        string
	Credential      password.Credential
	Status          AccountStatus
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

// EmailVerified reports whether the user proved ownership of Email.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// UserStore persists users. Emails are compared case-insensitively.
//
// CreateUser returns an error wrapping storage.ErrConflict when the email is taken.
// UpdateUserStatus changes the status only if it currently equals from, and returns
// storage.ErrConflict otherwise. Lookups return storage.ErrNotFound for absent rows.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdateUserStatus(ctx context.Context, id string, from, to AccountStatus) error
	UpdateUserCredential(ctx context.Context, id string, cred password.Credential) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
}

// Store is everything the engine persists.
type Store interface {
	UserStore
	session.Store
	verification.Store
}

// RateLimiter gates entry points per scope and key (usually the client IP).
// Implementations must count atomically across every instance of the service.
type RateLimiter interface {
	Limit(ctx context.Context, scope, key string) (RateLimitResult, error)
}

// RateLimitResult is the decision for one call.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Principal is the authenticated caller resolved from a session token.
type Principal struct {
	User    *User
	Session *session.Session
	// RefreshedCookie is set when the session was renewed and the cookie must be reissued.
	RefreshedCookie *http.Cookie
}
