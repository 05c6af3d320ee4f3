package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/storage"
	"github.com/MrEthical07/shelfauth/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testUser(id, email string) *shelfauth.User {
	return &shelfauth.User{
		ID:         id,
		Email:      email,
		FullName:   "Test User",
		Credential: password.PasswordCredential("$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"),
		Status:     shelfauth.StatusPending,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	first, err := Open(context.Background(), "sqlite://"+path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Ping(context.Background()))
	require.NoError(t, second.Close())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestCreateAndGetUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u := testUser("u1", "Ana@Example.com")
	require.NoError(t, store.CreateUser(ctx, u))

	got, err := store.GetUserByEmail(ctx, "ANA@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.Equal(t, shelfauth.StatusPending, got.Status)
	assert.Equal(t, password.MethodPassword, got.Credential.Method())
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt))
	assert.Nil(t, got.EmailVerifiedAt)

	byID, err := store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, got, byID)
}

func TestCreateUserDuplicateEmailIgnoresCase(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "ana@example.com")))
	err := store.CreateUser(ctx, testUser("u2", "ANA@EXAMPLE.COM"))
	require.ErrorIs(t, err, storage.ErrConflict)
}

func TestCreateUserCheckViolationIsNotConflict(t *testing.T) {
	store := openTestStore(t)
	u := testUser("u1", "a@example.com")
	u.Status = shelfauth.AccountStatus("SUSPENDED")

	err := store.CreateUser(context.Background(), u)
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
	assert.NotErrorIs(t, err, storage.ErrConflict)
	assert.NotErrorIs(t, err, storage.ErrUnavailable)
}

func TestCreateUserFederated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u := testUser("u1", "g@example.com")
	u.Credential = password.FederatedOnly()
	require.NoError(t, store.CreateUser(ctx, u))

	got, err := store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, password.MethodFederated, got.Credential.Method())
	_, ok := got.Credential.Hash()
	assert.False(t, ok)
}

func TestCreateUserRejectsZeroCredential(t *testing.T) {
	store := openTestStore(t)
	u := testUser("u1", "a@example.com")
	u.Credential = password.Credential{}
	require.Error(t, store.CreateUser(context.Background(), u))
}

func TestGetUserNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetUserByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetUserByID(context.Background(), "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateUserStatusIsConditional(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))

	require.NoError(t, store.UpdateUserStatus(ctx, "u1", shelfauth.StatusPending, shelfauth.StatusApproved))
	err := store.UpdateUserStatus(ctx, "u1", shelfauth.StatusPending, shelfauth.StatusRejected)
	require.ErrorIs(t, err, storage.ErrConflict)

	err = store.UpdateUserStatus(ctx, "missing", shelfauth.StatusPending, shelfauth.StatusApproved)
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, shelfauth.StatusApproved, got.Status)
}

func TestUpdateUserStatusRejectsUnknownStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))

	err := store.UpdateUserStatus(ctx, "u1", shelfauth.StatusPending, shelfauth.AccountStatus("BANNED"))
	require.Error(t, err)
}

func TestConcurrentStatusTransitionsHaveOneWinner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, next := range []shelfauth.AccountStatus{shelfauth.StatusApproved, shelfauth.StatusRejected, shelfauth.StatusApproved, shelfauth.StatusRejected} {
		wg.Add(1)
		go func(next shelfauth.AccountStatus) {
			defer wg.Done()
			if store.UpdateUserStatus(ctx, "u1", shelfauth.StatusPending, next) == nil {
				wins.Add(1)
			}
		}(next)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestUpdateCredentialAndVerify(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))

	require.NoError(t, store.UpdateUserCredential(ctx, "u1", password.PasswordCredential("$2a$10$abcdefghijklmnopqrstuv")))
	first := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkEmailVerified(ctx, "u1", first))
	require.NoError(t, store.MarkEmailVerified(ctx, "u1", first.Add(time.Hour)))

	got, err := store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	hash, ok := got.Credential.Hash()
	require.True(t, ok)
	assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuv", hash)
	require.NotNil(t, got.EmailVerifiedAt)
	assert.True(t, got.EmailVerifiedAt.Equal(first))

	require.ErrorIs(t, store.MarkEmailVerified(ctx, "missing", first), storage.ErrNotFound)
	require.ErrorIs(t, store.UpdateUserCredential(ctx, "missing", password.FederatedOnly()), storage.ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &session.Session{ID: session.HashToken("token-a"), UserID: "u1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	b := &session.Session{ID: session.HashToken("token-b"), UserID: "u1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.SaveSession(ctx, a))
	require.NoError(t, store.SaveSession(ctx, b))

	got, err := store.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.ExpiresAt.Equal(a.ExpiresAt))

	later := now.Add(2 * time.Hour)
	require.NoError(t, store.UpdateSessionExpiry(ctx, a.ID, later))
	got, err = store.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(later))
	require.ErrorIs(t, store.UpdateSessionExpiry(ctx, "missing", later), storage.ErrNotFound)

	require.NoError(t, store.DeleteSession(ctx, a.ID))
	require.NoError(t, store.DeleteSession(ctx, a.ID))
	_, err = store.GetSession(ctx, a.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.DeleteUserSessions(ctx, "u1"))
	_, err = store.GetSession(ctx, b.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionRequiresUser(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	err := store.SaveSession(context.Background(), &session.Session{ID: "x", UserID: "ghost", IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.ErrorIs(t, err, storage.ErrConflict)
}

func TestReplaceVerificationRequestKeepsOneActive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))

	exp := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	first := &verification.Request{ID: "r1", UserID: "u1", Email: "a@example.com", Code: "ABCDEFGH", ExpiresAt: exp}
	second := &verification.Request{ID: "r2", UserID: "u1", Email: "a@example.com", Code: "HGFEDCBA", ExpiresAt: exp}
	require.NoError(t, store.ReplaceVerificationRequest(ctx, first))
	require.NoError(t, store.ReplaceVerificationRequest(ctx, second))

	_, err := store.GetVerificationRequest(ctx, "r1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetVerificationRequest(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "HGFEDCBA", got.Code)
	assert.True(t, got.ExpiresAt.Equal(exp))
	assert.Nil(t, got.ConsumedAt)

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM email_verification_requests WHERE user_id = ?`, "u1").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestConsumeVerificationRequestOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))
	require.NoError(t, store.ReplaceVerificationRequest(ctx, &verification.Request{
		ID: "r1", UserID: "u1", Email: "a@example.com", Code: "ABCDEFGH", ExpiresAt: time.Now().Add(time.Minute),
	}))

	at := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	ok, err := store.ConsumeVerificationRequest(ctx, "r1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ConsumeVerificationRequest(ctx, "r1", at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetVerificationRequest(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got.ConsumedAt)
	assert.True(t, got.ConsumedAt.Equal(at))

	ok, err = store.ConsumeVerificationRequest(ctx, "missing", at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeExpired(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSession(ctx, &session.Session{ID: "old", UserID: "u1", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.SaveSession(ctx, &session.Session{ID: "live", UserID: "u1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.ReplaceVerificationRequest(ctx, &verification.Request{ID: "r1", UserID: "u1", Email: "a@example.com", Code: "ABCDEFGH", ExpiresAt: now.Add(-time.Minute)}))

	n, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.GetSession(ctx, "live")
	require.NoError(t, err)
}

func TestDeletingUserCascades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, testUser("u1", "a@example.com")))
	now := time.Now()
	require.NoError(t, store.SaveSession(ctx, &session.Session{ID: "s1", UserID: "u1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))

	_, err := store.db.Exec(`DELETE FROM users WHERE id = ?`, "u1")
	require.NoError(t, err)
	_, err = store.GetSession(ctx, "s1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
