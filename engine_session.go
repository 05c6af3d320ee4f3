package shelfauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/storage"
)

// Authenticate resolves a session token to its user. It returns ErrUnauthorized
// for unknown, expired or orphaned sessions.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrUnauthorized
	}

	v, err := e.sessions.ValidateSession(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}

	user, err := e.users.GetUserByID(ctx, v.Session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = e.sessions.InvalidateSession(writeContext(ctx), token)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load session user: %w", err)
	}

	p := &Principal{User: user, Session: v.Session}
	if v.Renewed {
		e.metrics.Inc(MetricSessionRenewed)
		p.RefreshedCookie = e.sessions.Cookie(token, v.Session.ExpiresAt)
	}
	return p, nil
}

// SignOut deletes the session behind token and clears the cookie. It succeeds
// for unknown tokens.
func (e *Engine) SignOut(ctx context.Context, token string) Outcome {
	if e == nil {
		return failure(KeyInternalError)
	}
	if err := e.sessions.InvalidateSession(writeContext(ctx), token); err != nil {
		return e.internalError(ctx, "sign-out", err, e.sessions.BlankCookie())
	}
	e.metrics.Inc(MetricSessionInvalidated)
	return success(KeySignedOut, e.config.Routes.SignIn, e.sessions.BlankCookie())
}

// SignOutEverywhere deletes every session of userID.
func (e *Engine) SignOutEverywhere(ctx context.Context, userID string) Outcome {
	if e == nil {
		return failure(KeyInternalError)
	}
	if err := e.sessions.InvalidateUserSessions(writeContext(ctx), userID); err != nil {
		return e.internalError(ctx, "sign-out-everywhere", err, e.sessions.BlankCookie())
	}
	e.metrics.Inc(MetricSessionInvalidated)
	return success(KeySignedOut, e.config.Routes.SignIn, e.sessions.BlankCookie())
}
