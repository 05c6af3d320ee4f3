package shelfauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/shelfauth/oauth"
	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/storage"
	"github.com/google/uuid"
)

// StartFederatedLogin begins a Google sign-in. The outcome redirects to the
// provider and carries the state and verifier cookies.
func (e *Engine) StartFederatedLogin(ctx context.Context) Outcome {
	if !e.FederatedLoginEnabled() {
		return failure(KeyOAuthFailed)
	}
	if out, stop := e.throttle(ctx, scopeOAuth, clientIPFromContext(ctx)); stop {
		return out
	}

	h, err := e.initiator.Initiate()
	if err != nil {
		e.metrics.Inc(MetricOAuthFailed)
		e.logger.Error(ctx, "oauth initiation failed", "error", err)
		return failure(KeyOAuthFailed)
	}

	e.metrics.Inc(MetricOAuthStarted)
	return success(KeyOAuthStarted, h.AuthURL, h.Cookies()...)
}

// CompleteFederatedLogin handles the provider callback. Unknown emails get a new
// federated-only account; an existing password account is signed in only when the
// provider asserts the email is verified. Handshake cookies are cleared in every
// outcome.
func (e *Engine) CompleteFederatedLogin(ctx context.Context, r *http.Request) Outcome {
	if !e.FederatedLoginEnabled() {
		return failure(KeyOAuthFailed)
	}

	identity, clearing, err := e.callback.Complete(ctx, r)
	if err != nil {
		if errors.Is(err, oauth.ErrStateMismatch) {
			e.metrics.Inc(MetricOAuthStateMismatch)
			e.logger.Warn(ctx, "oauth state mismatch", "ip", clientIPFromContext(ctx))
			return failure(KeyOAuthStateMismatch, clearing...)
		}
		e.metrics.Inc(MetricOAuthFailed)
		e.logger.Warn(ctx, "oauth callback failed", "error", err)
		return failure(KeyOAuthFailed, clearing...)
	}

	user, verifyCookie, err := e.federatedUser(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrFederatedAccount) {
			e.metrics.Inc(MetricOAuthFailed)
			return failure(KeyFederatedAccount, clearing...)
		}
		return e.internalError(ctx, "oauth resolve user", err, clearing...)
	}

	cookie, err := e.issueSession(ctx, user.ID)
	if err != nil {
		return e.internalError(ctx, "oauth session", err, clearing...)
	}

	cookies := append(clearing, cookie)
	if verifyCookie != nil {
		cookies = append(cookies, verifyCookie)
	}
	e.metrics.Inc(MetricOAuthCompleted)
	return success(KeySignInSuccess, e.landingRoute(user), cookies...)
}

// federatedUser resolves or creates the account for id. A new account whose
// email the provider does not vouch for also gets a verification request; its
// cookie is returned alongside the user.
func (e *Engine) federatedUser(ctx context.Context, id *oauth.Identity) (*User, *http.Cookie, error) {
	wctx := writeContext(ctx)

	user, err := e.users.GetUserByEmail(ctx, id.Email)
	switch {
	case err == nil:
		user, err = e.linkFederated(wctx, user, id)
		return user, nil, err
	case !errors.Is(err, storage.ErrNotFound):
		return nil, nil, err
	}

	now := e.now()
	user = &User{
		ID:         uuid.NewString(),
		Email:      id.Email,
		FullName:   id.Name,
		Credential: password.FederatedOnly(),
		Status:     StatusPending,
		CreatedAt:  now,
	}
	if user.FullName == "" {
		user.FullName = id.Email
	}
	if id.EmailVerified {
		user.EmailVerifiedAt = &now
		if e.config.Verification.ApproveOnVerify {
			user.Status = StatusApproved
		}
	}

	if err := e.users.CreateUser(wctx, user); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			return nil, nil, err
		}
		// Lost a race with a concurrent sign-up for the same email.
		existing, err := e.users.GetUserByEmail(wctx, id.Email)
		if err != nil {
			return nil, nil, err
		}
		existing, err = e.linkFederated(wctx, existing, id)
		return existing, nil, err
	}

	if user.EmailVerified() {
		return user, nil, nil
	}
	cookie, err := e.startVerification(wctx, user)
	if err != nil {
		// The account stands; resend issues a fresh request.
		e.logger.Warn(ctx, "federated sign-up verification request failed", "user_id", user.ID, "error", err)
		return user, nil, nil
	}
	return user, cookie, nil
}

// linkFederated decides whether an existing account may be entered through the
// provider identity.
func (e *Engine) linkFederated(ctx context.Context, user *User, id *oauth.Identity) (*User, error) {
	if user.Credential.Method() != password.MethodFederated && !id.EmailVerified {
		return nil, ErrFederatedAccount
	}
	if id.EmailVerified && !user.EmailVerified() {
		now := e.now()
		if err := e.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
			return nil, err
		}
		user.EmailVerifiedAt = &now
		if e.config.Verification.ApproveOnVerify && user.Status == StatusPending {
			if err := e.users.UpdateUserStatus(ctx, user.ID, StatusPending, StatusApproved); err == nil {
				user.Status = StatusApproved
			} else if !errors.Is(err, storage.ErrConflict) {
				return nil, err
			}
		}
	}
	return user, nil
}
