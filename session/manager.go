package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/shelfauth/storage"
)

var (
	// ErrSessionNotFound is returned for unknown or malformed tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the record exists but is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// CookieName is the name of the session cookie.
const CookieName = "session"

// DefaultLifetime is the session lifetime used when Config.Lifetime is zero.
const DefaultLifetime = 30 * 24 * time.Hour

// RenewalPolicy selects whether validation extends a session.
type RenewalPolicy int

const (
	// RenewalFixed never extends a session.
	RenewalFixed RenewalPolicy = iota
	// RenewalSliding extends to a full lifetime once less than half remains.
	RenewalSliding
)

// Config configures a Manager.
type Config struct {
	Lifetime   time.Duration
	Renewal    RenewalPolicy
	CookieName string
	Secure     bool
	Now        func() time.Time
}

// Validated is the result of a successful ValidateSession.
type Validated struct {
	Session *Session
	// Renewed is set when the expiry was pushed back; the caller should refresh the cookie.
	Renewed bool
}

// Manager owns session lifecycle on top of a Store.
type Manager struct {
	store      Store
	lifetime   time.Duration
	renewal    RenewalPolicy
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewManager creates a Manager over store.
func NewManager(store Store, cfg Config) *Manager {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.CookieName == "" {
		cfg.CookieName = CookieName
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:      store,
		lifetime:   cfg.Lifetime,
		renewal:    cfg.Renewal,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		now:        cfg.Now,
	}
}

// Lifetime returns the configured session lifetime.
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// CreateSession persists a session for token and userID.
func (m *Manager) CreateSession(ctx context.Context, token, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: empty user id")
	}
	if !validTokenShape(token) {
		return nil, errors.New("session: malformed token")
	}

	now := m.now()
	sess := &Session{
		ID:        HashToken(token),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.lifetime),
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// ValidateSession resolves token to a live session. Expired records are deleted.
func (m *Manager) ValidateSession(ctx context.Context, token string) (*Validated, error) {
	if !validTokenShape(token) {
		return nil, ErrSessionNotFound
	}
	id := HashToken(token)

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	now := m.now()
	if sess.Expired(now) {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	out := &Validated{Session: sess}
	if m.renewal == RenewalSliding && sess.Remaining(now) < m.lifetime/2 {
		next := now.Add(m.lifetime)
		if err := m.store.UpdateSessionExpiry(ctx, id, next); err != nil {
			return nil, err
		}
		sess.ExpiresAt = next
		out.Renewed = true
	}
	return out, nil
}

// InvalidateSession deletes the session behind token. Unknown tokens are a no-op.
func (m *Manager) InvalidateSession(ctx context.Context, token string) error {
	if !validTokenShape(token) {
		return nil
	}
	return m.store.DeleteSession(ctx, HashToken(token))
}

// InvalidateUserSessions deletes every session of userID.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID string) error {
	return m.store.DeleteUserSessions(ctx, userID)
}

// Cookie builds the session cookie for token, expiring with the record.
func (m *Manager) Cookie(token string, expiresAt time.Time) *http.Cookie {
	maxAge := int(expiresAt.Sub(m.now()) / time.Second)
	if maxAge <= 0 {
		return m.BlankCookie()
	}
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// BlankCookie clears the session cookie.
func (m *Manager) BlankCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
