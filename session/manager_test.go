package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/shelfauth/storage"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]Session)}
}

func (m *memStore) SaveSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) UpdateSessionExpiry(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.ExpiresAt = expiresAt
	m.sessions[id] = s
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) DeleteUserSessions(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(renewal RenewalPolicy) (*Manager, *memStore, *fakeClock) {
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(store, Config{Renewal: renewal, Now: clock.Now})
	return m, store, clock
}

func mustToken(t *testing.T) string {
	t.Helper()
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestGenerateTokenShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		token := mustToken(t)
		if len(token) != 32 {
			t.Fatalf("token length = %d, want 32", len(token))
		}
		if token != strings.ToLower(token) {
			t.Fatalf("token must be lower case: %q", token)
		}
		if strings.Contains(token, "=") {
			t.Fatalf("token must be unpadded: %q", token)
		}
		if !validTokenShape(token) {
			t.Fatalf("generated token rejected by shape check: %q", token)
		}
		if _, dup := seen[token]; dup {
			t.Fatal("duplicate token")
		}
		seen[token] = struct{}{}
	}
}

func TestHashTokenIsStableHex(t *testing.T) {
	a := HashToken("abc")
	if a != HashToken("abc") {
		t.Fatal("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64", len(a))
	}
	if a == HashToken("abd") {
		t.Fatal("different tokens must hash differently")
	}
}

func TestCreateStoresOnlyHash(t *testing.T) {
	m, store, clock := newTestManager(RenewalFixed)
	token := mustToken(t)

	sess, err := m.CreateSession(context.Background(), token, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID != HashToken(token) {
		t.Fatal("session id must be the token hash")
	}
	if _, ok := store.sessions[token]; ok {
		t.Fatal("raw token must never be a storage key")
	}
	if !sess.ExpiresAt.Equal(clock.Now().Add(DefaultLifetime)) {
		t.Fatalf("expires at %v, want %v", sess.ExpiresAt, clock.Now().Add(DefaultLifetime))
	}
	if !sess.ExpiresAt.After(sess.IssuedAt) {
		t.Fatal("expiry must be after issue time")
	}
}

func TestValidateUnknownAndMalformed(t *testing.T) {
	m, _, _ := newTestManager(RenewalFixed)
	ctx := context.Background()

	if _, err := m.ValidateSession(ctx, mustToken(t)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown token: expected ErrSessionNotFound, got %v", err)
	}
	for _, bad := range []string{"", "short", strings.Repeat("A", 32), strings.Repeat("1", 32)} {
		if _, err := m.ValidateSession(ctx, bad); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("malformed %q: expected ErrSessionNotFound, got %v", bad, err)
		}
	}
}

func TestExpiredSessionRejectedAndDeleted(t *testing.T) {
	m, store, clock := newTestManager(RenewalFixed)
	ctx := context.Background()
	token := mustToken(t)

	if _, err := m.CreateSession(ctx, token, "user-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.Advance(DefaultLifetime - time.Second)
	if _, err := m.ValidateSession(ctx, token); err != nil {
		t.Fatalf("session inside lifetime should validate: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := m.ValidateSession(ctx, token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired at expiry instant, got %v", err)
	}
	if len(store.sessions) != 0 {
		t.Fatal("expired session should be deleted")
	}
	if _, err := m.ValidateSession(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after deletion, got %v", err)
	}
}

func TestFixedRenewalNeverExtends(t *testing.T) {
	m, _, clock := newTestManager(RenewalFixed)
	ctx := context.Background()
	token := mustToken(t)

	sess, _ := m.CreateSession(ctx, token, "user-1")
	original := sess.ExpiresAt

	clock.Advance(DefaultLifetime - time.Hour)
	v, err := m.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Renewed || !v.Session.ExpiresAt.Equal(original) {
		t.Fatal("fixed policy must not renew")
	}
}

func TestSlidingRenewalAfterHalfLifetime(t *testing.T) {
	m, store, clock := newTestManager(RenewalSliding)
	ctx := context.Background()
	token := mustToken(t)

	if _, err := m.CreateSession(ctx, token, "user-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(DefaultLifetime / 4)
	v, err := m.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Renewed {
		t.Fatal("must not renew while more than half the lifetime remains")
	}

	clock.Advance(DefaultLifetime / 2)
	v, err = m.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !v.Renewed {
		t.Fatal("expected renewal")
	}
	want := clock.Now().Add(DefaultLifetime)
	if !v.Session.ExpiresAt.Equal(want) {
		t.Fatalf("renewed expiry %v, want %v", v.Session.ExpiresAt, want)
	}
	if stored := store.sessions[HashToken(token)]; !stored.ExpiresAt.Equal(want) {
		t.Fatal("renewed expiry must be persisted")
	}
}

func TestInvalidate(t *testing.T) {
	m, _, _ := newTestManager(RenewalFixed)
	ctx := context.Background()

	a, b, c := mustToken(t), mustToken(t), mustToken(t)
	for _, tok := range []string{a, b} {
		if _, err := m.CreateSession(ctx, tok, "user-1"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := m.CreateSession(ctx, c, "user-2"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.InvalidateSession(ctx, a); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := m.ValidateSession(ctx, a); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("invalidated session still valid: %v", err)
	}
	if _, err := m.ValidateSession(ctx, b); err != nil {
		t.Fatalf("other session of same user should survive: %v", err)
	}

	if err := m.InvalidateUserSessions(ctx, "user-1"); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if _, err := m.ValidateSession(ctx, b); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("logout-all must remove every session of the user")
	}
	if _, err := m.ValidateSession(ctx, c); err != nil {
		t.Fatalf("other users are unaffected: %v", err)
	}
	if err := m.InvalidateSession(ctx, "garbage"); err != nil {
		t.Fatalf("invalidating garbage must be a no-op: %v", err)
	}
}

func TestCookieAttributes(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(store, Config{Secure: true, Now: func() time.Time { return now }})

	exp := now.Add(DefaultLifetime)
	c := m.Cookie("tok", exp)
	if c.Name != CookieName || c.Value != "tok" || c.Path != "/" {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie flags wrong: %+v", c)
	}
	if !c.Expires.Equal(exp) || c.MaxAge != int(DefaultLifetime/time.Second) {
		t.Fatalf("cookie expiry wrong: %+v", c)
	}

	blank := m.BlankCookie()
	if blank.Value != "" || blank.MaxAge >= 0 {
		t.Fatalf("blank cookie must clear: %+v", blank)
	}

	if insecure := NewManager(store, Config{}).Cookie("tok", time.Now().Add(time.Hour)); insecure.Secure {
		t.Fatal("secure flag must follow config")
	}
}
