package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/shelfauth/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testSession(id, userID string, lifetime time.Duration) *Session {
	now := time.Now().Truncate(time.Millisecond)
	return &Session{ID: id, UserID: userID, IssuedAt: now, ExpiresAt: now.Add(lifetime)}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "")
	ctx := context.Background()

	sess := testSession("sid-1", "user-1", time.Hour)
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetSession(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "sid-1" || got.UserID != "user-1" {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) || !got.IssuedAt.Equal(sess.IssuedAt) {
		t.Fatalf("timestamps not preserved: %+v vs %+v", got, sess)
	}
	if ttl := mr.TTL("as:sid-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if ok, _ := mr.SIsMember("asu:user-1", "sid-1"); !ok {
		t.Fatal("session must be indexed under its user")
	}
}

func TestRedisStoreMissingAndCorrupt(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "")
	ctx := context.Background()

	if _, err := store.GetSession(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mr.Set("as:bad", "\x09garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.GetSession(ctx, "bad"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("corrupt record: expected ErrNotFound, got %v", err)
	}
	if mr.Exists("as:bad") {
		t.Fatal("corrupt record should be dropped")
	}
}

func TestRedisStoreUpdateExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "")
	ctx := context.Background()

	if err := store.SaveSession(ctx, testSession("sid-1", "user-1", time.Minute)); err != nil {
		t.Fatalf("save: %v", err)
	}
	next := time.Now().Add(2 * time.Hour).Truncate(time.Millisecond)
	if err := store.UpdateSessionExpiry(ctx, "sid-1", next); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetSession(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ExpiresAt.Equal(next) {
		t.Fatalf("expiry = %v, want %v", got.ExpiresAt, next)
	}
	if ttl := mr.TTL("as:sid-1"); ttl <= time.Hour {
		t.Fatalf("key ttl should follow new expiry, got %v", ttl)
	}
	if err := store.UpdateSessionExpiry(ctx, "missing", next); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestRedisStoreDeleteIdempotent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "")
	ctx := context.Background()

	if err := store.SaveSession(ctx, testSession("sid-1", "user-1", time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.DeleteSession(ctx, "sid-1"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if mr.Exists("as:sid-1") {
		t.Fatal("session key should be gone")
	}
	if ok, _ := mr.SIsMember("asu:user-1", "sid-1"); ok {
		t.Fatal("index entry should be gone")
	}
}

func TestRedisStoreDeleteUserSessions(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveSession(ctx, testSession(id, "user-1", time.Hour)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := store.SaveSession(ctx, testSession("other", "user-2", time.Hour)); err != nil {
		t.Fatalf("save other: %v", err)
	}

	ids, err := store.ActiveSessionIDs(ctx, "user-1")
	if err != nil || len(ids) != 3 {
		t.Fatalf("active ids = %v, %v", ids, err)
	}

	if err := store.DeleteUserSessions(ctx, "user-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if mr.Exists("as:" + id) {
			t.Fatalf("session %s should be deleted", id)
		}
	}
	if !mr.Exists("as:other") {
		t.Fatal("other user's session must survive")
	}
}

func TestRedisStoreWithManager(t *testing.T) {
	_, rdb := newTestRedis(t)
	m := NewManager(NewRedisStore(rdb, ""), Config{Lifetime: time.Hour})
	ctx := context.Background()

	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if _, err := m.CreateSession(ctx, token, "user-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	v, err := m.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Session.UserID != "user-1" {
		t.Fatalf("user = %q", v.Session.UserID)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "")
	mr.Close()

	if _, err := store.GetSession(context.Background(), "x"); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
