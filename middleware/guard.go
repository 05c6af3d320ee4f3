package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/shelfauth"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Guard or Optional.
func PrincipalFromContext(ctx context.Context) (*shelfauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*shelfauth.Principal)
	return p, ok
}

// WithPrincipal stores p in ctx. Handlers under test use it to skip the guard.
func WithPrincipal(ctx context.Context, p *shelfauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard requires a valid session. Requests without one get 401 and, when they
// carried a stale cookie, a clearing cookie.
func Guard(engine *shelfauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, stale, err := authenticate(engine, r)
			if err != nil {
				if stale {
					http.SetCookie(w, clearCookie(engine))
				}
				if errors.Is(err, shelfauth.ErrUnauthorized) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "session lookup failed", http.StatusServiceUnavailable)
				return
			}

			if p.RefreshedCookie != nil {
				http.SetCookie(w, p.RefreshedCookie)
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Optional attaches the principal when the request has a valid session and
// otherwise serves the request anonymously.
func Optional(engine *shelfauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			p, _, err := authenticate(engine, r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if p.RefreshedCookie != nil {
				http.SetCookie(w, p.RefreshedCookie)
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// authenticate reports stale when a cookie was sent but did not resolve.
func authenticate(engine *shelfauth.Engine, r *http.Request) (*shelfauth.Principal, bool, error) {
	c, err := r.Cookie(engine.SessionCookieName())
	if err != nil || c.Value == "" {
		return nil, false, shelfauth.ErrUnauthorized
	}
	p, err := engine.Authenticate(r.Context(), c.Value)
	if err != nil {
		return nil, errors.Is(err, shelfauth.ErrUnauthorized), err
	}
	return p, false, nil
}

func clearCookie(engine *shelfauth.Engine) *http.Cookie {
	return &http.Cookie{
		Name:     engine.SessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   engine.Config().Security.ProductionMode,
		SameSite: http.SameSiteLaxMode,
	}
}
