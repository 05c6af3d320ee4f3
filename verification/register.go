package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/shelfauth/mail"
	"github.com/MrEthical07/shelfauth/storage"
	"github.com/google/uuid"
)

var (
	ErrRequestNotFound = errors.New("verification request not found")
	ErrRequestConsumed = errors.New("verification request already used")
	ErrRequestExpired  = errors.New("verification request expired")
	ErrCodeMismatch    = errors.New("verification code mismatch")
)

// CookieName carries the pending request id between sign-up and verification.
const CookieName = "email_verification"

// DefaultTTL is the request lifetime used when Config.TTL is zero.
const DefaultTTL = 15 * time.Minute

// Config configures a Register.
type Config struct {
	TTL    time.Duration
	Secure bool
	// VerifyURL is linked from the email body when set.
	VerifyURL string
	Now       func() time.Time
}

// Register creates and redeems verification requests.
type Register struct {
	store     Store
	mailer    *mail.Dispatcher
	ttl       time.Duration
	secure    bool
	verifyURL string
	now       func() time.Time
}

// NewRegister builds a Register over store. mailer may be nil, in which case
// SendVerificationEmail reports mail.ErrClosed.
func NewRegister(store Store, mailer *mail.Dispatcher, cfg Config) *Register {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Register{
		store:     store,
		mailer:    mailer,
		ttl:       cfg.TTL,
		secure:    cfg.Secure,
		verifyURL: cfg.VerifyURL,
		now:       cfg.Now,
	}
}

// TTL returns the configured request lifetime.
func (r *Register) TTL() time.Duration {
	return r.ttl
}

// CreateRequest issues a fresh request for userID, replacing any earlier one.
func (r *Register) CreateRequest(ctx context.Context, userID, email string) (*Request, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	req := &Request{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		Code:      code,
		ExpiresAt: r.now().Add(r.ttl),
	}
	if err := r.store.ReplaceVerificationRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("replace verification request: %w", err)
	}
	return req, nil
}

// Redeem consumes request id if code matches. When userID is non-empty the request
// must belong to that user; a request of another user reads as not found.
func (r *Register) Redeem(ctx context.Context, id, userID, code string) (*Request, error) {
	if id == "" {
		return nil, ErrRequestNotFound
	}

	req, err := r.store.GetVerificationRequest(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if userID != "" && req.UserID != userID {
		return nil, ErrRequestNotFound
	}
	if req.ConsumedAt != nil {
		return nil, ErrRequestConsumed
	}

	now := r.now()
	if req.Expired(now) {
		return nil, ErrRequestExpired
	}

	submitted := strings.ToUpper(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(req.Code)) != 1 {
		return nil, ErrCodeMismatch
	}

	ok, err := r.store.ConsumeVerificationRequest(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestConsumed
	}
	req.ConsumedAt = &now
	return req, nil
}

// SendVerificationEmail queues the code email. It never waits for delivery.
func (r *Register) SendVerificationEmail(name, email, code string) error {
	msg, err := mail.VerificationMessage(email, mail.VerificationData{
		Name:      name,
		Code:      code,
		URL:       r.verifyURL,
		ExpiresIn: r.ttl,
	})
	if err != nil {
		return err
	}
	return r.mailer.Enqueue(msg)
}

// Cookie carries req.ID until the request expires.
func (r *Register) Cookie(req *Request) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    req.ID,
		Path:     "/",
		Expires:  req.ExpiresAt,
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// BlankCookie clears the verification cookie.
func (r *Register) BlankCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
