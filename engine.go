package shelfauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/shelfauth/internal/logging"
	"github.com/MrEthical07/shelfauth/mail"
	"github.com/MrEthical07/shelfauth/oauth"
	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/storage"
	"github.com/MrEthical07/shelfauth/verification"
)

// Engine runs the authentication flows. Build one with New().
type Engine struct {
	config    Config
	users     Store
	sessions  *session.Manager
	register  *verification.Register
	verifier  *password.Verifier
	limiter   RateLimiter
	mailer    *mail.Dispatcher
	initiator *oauth.Initiator
	callback  *oauth.Callback
	metrics   *Metrics
	logger    logging.Logger
	now       func() time.Time
}

// Close drains queued mail and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mailer.Close()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// MailDropped returns how many verification emails were refused by a full queue.
func (e *Engine) MailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mailer.Dropped()
}

// FederatedLoginEnabled reports whether Google sign-in is configured.
func (e *Engine) FederatedLoginEnabled() bool {
	return e != nil && e.initiator != nil
}

// SessionCookieName is the cookie holding the session token.
func (e *Engine) SessionCookieName() string {
	return e.sessions.CookieName()
}

func (e *Engine) onMailResult(msg mail.Message, err error) {
	if err != nil {
		e.metrics.Inc(MetricMailFailed)
		e.logger.Error(context.Background(), "mail delivery failed", "subject", msg.Subject, "error", err)
		return
	}
	e.metrics.Inc(MetricMailSent)
}

// writeContext detaches side-effecting writes from caller cancellation.
func writeContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// issueSession creates a session for user and the cookie carrying it.
func (e *Engine) issueSession(ctx context.Context, userID string) (*http.Cookie, error) {
	token, err := session.GenerateToken()
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.CreateSession(writeContext(ctx), token, userID)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricSessionCreated)
	return e.sessions.Cookie(token, sess.ExpiresAt), nil
}

// landingRoute is where a signed-in user goes next.
func (e *Engine) landingRoute(u *User) string {
	if u.Status == StatusPending {
		return e.config.Routes.VerifyEmail
	}
	return e.config.Routes.Home
}

func (e *Engine) internalError(ctx context.Context, op string, err error, cookies ...*http.Cookie) Outcome {
	e.metrics.Inc(MetricStoreError)
	if errors.Is(err, storage.ErrUnavailable) {
		e.logger.Error(ctx, "datastore unavailable", "op", op, "error", err)
	} else {
		e.logger.Error(ctx, "operation failed", "op", op, "error", err)
	}
	return failure(KeyInternalError, cookies...)
}
