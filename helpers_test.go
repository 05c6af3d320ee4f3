package shelfauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/shelfauth/mail"
	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/storage"
	"github.com/MrEthical07/shelfauth/verification"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memStore is an in-memory Store with per-operation failure injection.
type memStore struct {
	mu       sync.Mutex
	users    map[string]User
	sessions map[string]session.Session
	requests map[string]verification.Request
	fail     map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]User),
		sessions: make(map[string]session.Session),
		requests: make(map[string]verification.Request),
		fail:     make(map[string]error),
	}
}

func (m *memStore) failOn(op string, err error) {
	m.mu.Lock()
	m.fail[op] = err
	m.mu.Unlock()
}

func (m *memStore) injected(op string) error {
	return m.fail[op]
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateUser"); err != nil {
		return err
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return storage.ErrConflict
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) UpdateUserStatus(_ context.Context, id string, from, to AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	if u.Status != from {
		return storage.ErrConflict
	}
	u.Status = to
	m.users[id] = u
	return nil
}

func (m *memStore) UpdateUserCredential(_ context.Context, id string, cred password.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Credential = cred
	m.users[id] = u
	return nil
}

func (m *memStore) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.EmailVerifiedAt = &at
	m.users[id] = u
	return nil
}

func (m *memStore) SaveSession(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SaveSession"); err != nil {
		return err
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*session.Session, error) {
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

func (m *memStore) ReplaceVerificationRequest(_ context.Context, req *verification.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReplaceVerificationRequest"); err != nil {
		return err
	}
	for id, r := range m.requests {
		if r.UserID == req.UserID {
			delete(m.requests, id)
		}
	}
	m.requests[req.ID] = *req
	return nil
}

func (m *memStore) GetVerificationRequest(_ context.Context, id string) (*verification.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ConsumeVerificationRequest(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.ConsumedAt != nil {
		return false, nil
	}
	r.ConsumedAt = &at
	m.requests[id] = r
	return true, nil
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) activeRequests(userID string, now time.Time) []verification.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []verification.Request
	for _, r := range m.requests {
		if r.UserID == userID && r.ConsumedAt == nil && now.Before(r.ExpiresAt) {
			out = append(out, r)
		}
	}
	return out
}

// outbox captures queued mail.
type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
	sent chan struct{}
}

func newOutbox() *outbox {
	return &outbox{sent: make(chan struct{}, 64)}
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	o.msgs = append(o.msgs, msg)
	o.mu.Unlock()
	o.sent <- struct{}{}
	return nil
}

func (o *outbox) wait(t *testing.T) mail.Message {
	t.Helper()
	select {
	case <-o.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no mail delivered")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.msgs[len(o.msgs)-1]
}

type testEnv struct {
	engine *Engine
	store  *memStore
	redis  *miniredis.Miniredis
	outbox *outbox
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Limit = 100
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config, *Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := newMemStore()
	box := newOutbox()
	cfg := testConfig()

	b := New().WithStore(store).WithRedis(rdb).WithMailSender(box)
	for _, fn := range mutate {
		fn(&cfg, b)
	}
	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &testEnv{engine: engine, store: store, redis: mr, outbox: box}
}

func (env *testEnv) seedUser(t *testing.T, email, secret string, status AccountStatus) *User {
	t.Helper()
	cred := password.FederatedOnly()
	if secret != "" {
		hash, err := env.engine.verifier.Hash(secret)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		cred = password.PasswordCredential(hash)
	}
	u := &User{
		ID:         "user-" + strings.SplitN(email, "@", 2)[0],
		Email:      email,
		FullName:   "Seed User",
		Credential: cred,
		Status:     status,
		CreatedAt:  time.Now(),
	}
	if err := env.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func cookieNamed(out Outcome, name string) *http.Cookie {
	for _, c := range out.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var errBoom = errors.New("boom")

type allowAll struct{}

func (allowAll) Limit(context.Context, string, string) (RateLimitResult, error) {
	return RateLimitResult{Allowed: true}, nil
}

type failingLimiter struct{}

func (failingLimiter) Limit(context.Context, string, string) (RateLimitResult, error) {
	return RateLimitResult{}, ErrRateLimiterUnavailable
}
