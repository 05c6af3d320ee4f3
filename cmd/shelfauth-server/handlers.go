package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/internal/logging"
	"github.com/MrEthical07/shelfauth/metrics/export/prometheus"
	"github.com/MrEthical07/shelfauth/middleware"
	"github.com/MrEthical07/shelfauth/verification"
)

const maxBodyBytes = 1 << 16

type server struct {
	engine *shelfauth.Engine
	store  datastore
	logger logging.Logger
}

// routes wires every endpoint. All requests pass through ClientIP so the
// engine's limiter sees the caller address.
func (s *server) routes(trustProxy bool) http.Handler {
	guard := middleware.Guard(s.engine)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/google", s.handleOAuthStart)
	mux.HandleFunc("GET /oauth/google/callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /sign-in", s.handleSignIn)
	mux.HandleFunc("POST /sign-up", s.handleSignUp)
	mux.Handle("POST /verify-email", guard(http.HandlerFunc(s.handleVerifyEmail)))
	mux.Handle("POST /verify-email/resend", guard(http.HandlerFunc(s.handleResend)))
	mux.HandleFunc("POST /sign-out", s.handleSignOut)
	mux.Handle("GET /me", guard(http.HandlerFunc(s.handleMe)))
	mux.HandleFunc("GET /too-fast", s.handleTooFast)
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(s.engine).Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return middleware.ClientIP(trustProxy)(mux)
}

/*
====================================
PASSWORD FLOWS
====================================
*/

func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in shelfauth.SignInInput
	if !decode(w, r, &in) {
		return
	}
	writeOutcome(w, r, s.engine.SignIn(r.Context(), in))
}

func (s *server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in shelfauth.SignUpInput
	if !decode(w, r, &in) {
		return
	}
	writeOutcome(w, r, s.engine.SignUp(r.Context(), in))
}

func (s *server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	var in shelfauth.VerifyEmailInput
	if !decode(w, r, &in) {
		return
	}
	if c, err := r.Cookie(verification.CookieName); err == nil {
		in.RequestID = c.Value
	}
	writeOutcome(w, r, s.engine.VerifyEmail(r.Context(), p.User.ID, in))
}

func (s *server) handleResend(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	writeOutcome(w, r, s.engine.ResendVerification(r.Context(), p.User.ID))
}

func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(s.engine.SessionCookieName()); err == nil {
		token = c.Value
	}
	writeOutcome(w, r, s.engine.SignOut(r.Context(), token))
}

/*
====================================
FEDERATED FLOW
====================================
*/

func (s *server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	out := s.engine.StartFederatedLogin(r.Context())
	// Both the provider hand-off and the throttling notice answer 302.
	if out.Redirect() {
		setCookies(w, out)
		http.Redirect(w, r, out.RedirectTo, http.StatusFound)
		return
	}
	writeOutcome(w, r, out)
}

func (s *server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, r, s.engine.CompleteFederatedLogin(r.Context(), r))
}

/*
====================================
PAGES
====================================
*/

type meResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	Status        string    `json:"status"`
	EmailVerified bool      `json:"emailVerified"`
	AuthMethod    string    `json:"authMethod"`
	SessionExpiry time.Time `json:"sessionExpiresAt"`
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		ID:            p.User.ID,
		Email:         p.User.Email,
		FullName:      p.User.FullName,
		Status:        string(p.User.Status),
		EmailVerified: p.User.EmailVerified(),
		AuthMethod:    p.User.Credential.Method().String(),
		SessionExpiry: p.Session.ExpiresAt,
	})
}

func (s *server) handleTooFast(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"key":     shelfauth.KeyRateLimited,
		"message": "Too many requests. Please try again later.",
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

/*
====================================
RESPONSE HELPERS
====================================
*/

// writeOutcome sets the outcome cookies, then answers with a 303 when the
// outcome names a route and with the JSON outcome otherwise.
func writeOutcome(w http.ResponseWriter, r *http.Request, out shelfauth.Outcome) {
	setCookies(w, out)
	if out.Redirect() {
		http.Redirect(w, r, out.RedirectTo, http.StatusSeeOther)
		return
	}
	writeJSON(w, outcomeStatus(out), out)
}

func setCookies(w http.ResponseWriter, out shelfauth.Outcome) {
	for _, c := range out.Cookies {
		http.SetCookie(w, c)
	}
}

func outcomeStatus(out shelfauth.Outcome) int {
	if out.Success {
		return http.StatusOK
	}
	switch out.Key {
	case shelfauth.KeyValidationFailed,
		shelfauth.KeyVerificationInvalid,
		shelfauth.KeyVerificationExpired,
		shelfauth.KeyOAuthStateMismatch:
		return http.StatusBadRequest
	case shelfauth.KeyUserNotFound,
		shelfauth.KeyInvalidCredentials,
		shelfauth.KeyFederatedAccount,
		shelfauth.KeyUnauthorized:
		return http.StatusUnauthorized
	case shelfauth.KeyEmailInUse, shelfauth.KeyEmailAlreadyVerified:
		return http.StatusConflict
	case shelfauth.KeyRateLimited:
		return http.StatusTooManyRequests
	case shelfauth.KeyOAuthFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body. Malformed bodies get a validation outcome.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, shelfauth.Outcome{
			Message: "Request body must be JSON.",
			Key:     shelfauth.KeyValidationFailed,
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
