package shelfauth

import (
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/verification"
)

func validSignUp() SignUpInput {
	return SignUpInput{FullName: "Ana Lima", Email: "Ana@Example.com", Password: "a long enough secret"}
}

func TestSignUpCreatesUserSessionAndRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithClientIP(t.Context(), "10.0.0.1")

	out := env.engine.SignUp(ctx, validSignUp())
	if !out.Success || out.Key != KeySignUpSuccess {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.RedirectTo != "/verify-email" {
		t.Fatalf("expected verify-email redirect, got %q", out.RedirectTo)
	}

	if n := env.store.userCount(); n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
	user, err := env.store.GetUserByEmail(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.Email != "ana@example.com" {
		t.Fatalf("email not normalised: %q", user.Email)
	}
	if user.Status != StatusPending || user.EmailVerified() {
		t.Fatalf("new user must be pending and unverified: %+v", user)
	}
	if hash, ok := user.Credential.Hash(); !ok || !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("expected argon2id credential, got %q", hash)
	}

	if n := env.store.sessionCount(); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}
	active := env.store.activeRequests(user.ID, time.Now())
	if len(active) != 1 {
		t.Fatalf("expected 1 active request, got %d", len(active))
	}

	sc := cookieNamed(out, session.CookieName)
	if sc == nil || !sc.HttpOnly {
		t.Fatalf("missing session cookie: %+v", out.Cookies)
	}
	vc := cookieNamed(out, verification.CookieName)
	if vc == nil || vc.Value != active[0].ID {
		t.Fatalf("verification cookie must carry request id: %+v", vc)
	}

	msg := env.outbox.wait(t)
	if msg.To != "ana@example.com" || !strings.Contains(msg.Body, active[0].Code) {
		t.Fatalf("unexpected mail: %+v", msg)
	}
}

func TestSignUpStoresOnlyTokenHash(t *testing.T) {
	env := newTestEnv(t)
	out := env.engine.SignUp(t.Context(), validSignUp())
	sc := cookieNamed(out, session.CookieName)
	if sc == nil {
		t.Fatal("missing session cookie")
	}

	if _, err := env.store.GetSession(t.Context(), sc.Value); err == nil {
		t.Fatal("raw token must not be a session id")
	}
	stored, err := env.store.GetSession(t.Context(), session.HashToken(sc.Value))
	if err != nil {
		t.Fatalf("hashed session missing: %v", err)
	}
	if stored.ExpiresAt.Sub(stored.IssuedAt) != 30*24*time.Hour {
		t.Fatalf("unexpected lifetime %v", stored.ExpiresAt.Sub(stored.IssuedAt))
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@example.com", "another secret!!", StatusApproved)

	out := env.engine.SignUp(t.Context(), validSignUp())
	if out.Success || out.Key != KeyEmailInUse {
		t.Fatalf("expected email_in_use, got %+v", out)
	}
	if env.store.userCount() != 1 || env.store.sessionCount() != 0 {
		t.Fatal("duplicate sign-up must not write")
	}
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)

	out := env.engine.SignUp(t.Context(), SignUpInput{FullName: "", Email: "nope", Password: "short"})
	if out.Key != KeyValidationFailed {
		t.Fatalf("expected validation_failed, got %+v", out)
	}
	data, ok := out.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected field data, got %T", out.Data)
	}
	fields, ok := data["fields"].(map[string]string)
	if !ok {
		t.Fatalf("expected fields map, got %T", data["fields"])
	}
	for _, f := range []string{"fullName", "email", "password"} {
		if fields[f] == "" {
			t.Fatalf("expected %s error, got %v", f, fields)
		}
	}
	if env.store.userCount() != 0 {
		t.Fatal("invalid input must not create a user")
	}
}

func TestSignUpIncompleteThenSignInRecovers(t *testing.T) {
	env := newTestEnv(t)
	env.store.failOn("ReplaceVerificationRequest", errBoom)

	out := env.engine.SignUp(t.Context(), validSignUp())
	if out.Success || out.Key != KeySignUpIncomplete {
		t.Fatalf("expected sign_up_incomplete, got %+v", out)
	}
	if env.store.userCount() != 1 {
		t.Fatal("user row should remain")
	}
	if cookieNamed(out, verification.CookieName) != nil {
		t.Fatal("no verification cookie without a request")
	}

	env.store.failOn("ReplaceVerificationRequest", nil)
	in := SignInInput{Email: "ana@example.com", Password: "a long enough secret"}
	signIn := env.engine.SignIn(t.Context(), in)
	if !signIn.Success || signIn.RedirectTo != "/verify-email" {
		t.Fatalf("expected pending sign-in, got %+v", signIn)
	}

	user, _ := env.store.GetUserByEmail(t.Context(), "ana@example.com")
	resend := env.engine.ResendVerification(t.Context(), user.ID)
	if !resend.Success || resend.Key != KeyVerificationSent {
		t.Fatalf("resend failed: %+v", resend)
	}
	if got := len(env.store.activeRequests(user.ID, time.Now())); got != 1 {
		t.Fatalf("expected 1 active request, got %d", got)
	}
}

func TestSignUpSessionFailureIsIncomplete(t *testing.T) {
	env := newTestEnv(t)
	env.store.failOn("SaveSession", errBoom)

	out := env.engine.SignUp(t.Context(), validSignUp())
	if out.Key != KeySignUpIncomplete {
		t.Fatalf("expected sign_up_incomplete, got %+v", out)
	}
	if cookieNamed(out, session.CookieName) != nil {
		t.Fatal("no session cookie expected")
	}
}

func TestSignUpCreateFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	env.store.failOn("CreateUser", errBoom)

	out := env.engine.SignUp(t.Context(), validSignUp())
	if out.Key != KeyInternalError {
		t.Fatalf("expected internal_error, got %+v", out)
	}
	if env.engine.MetricsSnapshot().Counters[MetricStoreError] != 1 {
		t.Fatal("store error not counted")
	}
}
