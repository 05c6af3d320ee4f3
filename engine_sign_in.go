package shelfauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/storage"
)

// SignIn verifies email and password and starts a session.
//
// Order: validate, rate-limit by client IP, look up, verify, issue session. On
// success the outcome redirects to the verification page for PENDING users and
// home otherwise. Unknown emails spend one dummy hash so both failure paths cost
// the same.
func (e *Engine) SignIn(ctx context.Context, in SignInInput) Outcome {
	if e == nil {
		return failure(KeyInternalError)
	}
	start := e.now()
	defer func() { e.metrics.Observe(MetricSignInLatency, e.now().Sub(start)) }()

	if v := in.Validate(); !v.OK() {
		return validationFailure(v)
	}
	if out, stop := e.throttle(ctx, scopeSignIn, clientIPFromContext(ctx)); stop {
		return out
	}

	user, err := e.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.verifier.Dummy(in.Password)
			e.metrics.Inc(MetricSignInFailure)
			if e.config.Security.UniformCredentialErrors {
				return failure(KeyInvalidCredentials)
			}
			return failure(KeyUserNotFound)
		}
		return e.internalError(ctx, "sign-in lookup", err)
	}

	ok, err := e.verifier.Verify(in.Password, user.Credential)
	switch {
	case errors.Is(err, password.ErrFederatedOnly):
		e.verifier.Dummy(in.Password)
		e.metrics.Inc(MetricSignInFailure)
		return failure(KeyFederatedAccount)
	case err != nil:
		e.logger.Error(ctx, "stored credential unusable", "user_id", user.ID, "error", err)
		e.metrics.Inc(MetricSignInFailure)
		return failure(KeyInvalidCredentials)
	case !ok:
		e.metrics.Inc(MetricSignInFailure)
		return failure(KeyInvalidCredentials)
	}

	if e.config.Password.UpgradeOnLogin && e.verifier.NeedsRehash(user.Credential) {
		e.rehash(ctx, user.ID, in.Password)
	}

	cookie, err := e.issueSession(ctx, user.ID)
	if err != nil {
		return e.internalError(ctx, "sign-in session", err)
	}

	e.metrics.Inc(MetricSignInSuccess)
	return success(KeySignInSuccess, e.landingRoute(user), cookie)
}

// rehash replaces a legacy or weak hash after a successful verify. Failure is
// logged and does not affect the sign-in.
func (e *Engine) rehash(ctx context.Context, userID, secret string) {
	hash, err := e.verifier.Hash(secret)
	if err != nil {
		// Legacy passwords may be shorter than the current minimum.
		if !errors.Is(err, password.ErrTooShort) {
			e.logger.Warn(ctx, "password rehash failed", "user_id", userID, "error", err)
		}
		return
	}
	if err := e.users.UpdateUserCredential(writeContext(ctx), userID, password.PasswordCredential(hash)); err != nil {
		e.logger.Warn(ctx, "password rehash not stored", "user_id", userID, "error", err)
		return
	}
	e.metrics.Inc(MetricPasswordRehashed)
}
