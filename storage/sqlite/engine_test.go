package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/mail"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/storage/sqlite"
	"github.com/MrEthical07/shelfauth/verification"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*shelfauth.Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := shelfauth.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := shelfauth.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(rdb).
		WithMailSender(mail.SenderFunc(func(context.Context, mail.Message) error { return nil })).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, store
}

func cookie(out shelfauth.Outcome, name string) string {
	for _, c := range out.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestEngineSignUpVerifySignIn(t *testing.T) {
	engine, store := newEngine(t)
	ctx := shelfauth.WithClientIP(context.Background(), "192.0.2.10")

	up := engine.SignUp(ctx, shelfauth.SignUpInput{FullName: "Ana Lima", Email: "Ana@Example.com", Password: "a long enough secret"})
	require.True(t, up.Success, "%+v", up)
	assert.Equal(t, "/verify-email", up.RedirectTo)

	token := cookie(up, session.CookieName)
	requestID := cookie(up, verification.CookieName)
	require.NotEmpty(t, token)
	require.NotEmpty(t, requestID)

	_, err := store.GetSession(ctx, token)
	require.Error(t, err, "raw token must not be stored")
	_, err = store.GetSession(ctx, session.HashToken(token))
	require.NoError(t, err)

	dup := engine.SignUp(ctx, shelfauth.SignUpInput{FullName: "Ana Again", Email: "ana@example.com", Password: "a long enough secret"})
	assert.Equal(t, shelfauth.KeyEmailInUse, dup.Key)

	p, err := engine.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, shelfauth.StatusPending, p.User.Status)

	req, err := store.GetVerificationRequest(ctx, requestID)
	require.NoError(t, err)
	verified := engine.VerifyEmail(ctx, p.User.ID, shelfauth.VerifyEmailInput{RequestID: requestID, Code: req.Code})
	require.True(t, verified.Success, "%+v", verified)

	in := engine.SignIn(ctx, shelfauth.SignInInput{Email: "ana@example.com", Password: "a long enough secret"})
	require.True(t, in.Success, "%+v", in)
	assert.Equal(t, "/", in.RedirectTo)

	missing := engine.SignIn(ctx, shelfauth.SignInInput{Email: "nobody@example.com", Password: "whatever it is"})
	assert.Equal(t, shelfauth.KeyUserNotFound, missing.Key)
	assert.Empty(t, missing.Cookies)
}

func TestEngineResendReplacesRequest(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	up := engine.SignUp(ctx, shelfauth.SignUpInput{FullName: "Bo Chen", Email: "bo@example.com", Password: "a long enough secret"})
	require.True(t, up.Success, "%+v", up)
	first := cookie(up, verification.CookieName)

	p, err := engine.Authenticate(ctx, cookie(up, session.CookieName))
	require.NoError(t, err)

	resent := engine.ResendVerification(ctx, p.User.ID)
	require.True(t, resent.Success, "%+v", resent)
	second := cookie(resent, verification.CookieName)
	require.NotEqual(t, first, second)

	_, err = store.GetVerificationRequest(ctx, first)
	require.Error(t, err)
	_, err = store.GetVerificationRequest(ctx, second)
	require.NoError(t, err)
}
