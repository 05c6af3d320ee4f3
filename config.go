package shelfauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/session"
)

// Config holds every engine setting. Start from DefaultConfig and override fields.
type Config struct {
	Session      SessionConfig
	Verification VerificationConfig
	OAuth        OAuthConfig
	RateLimit    RateLimitConfig
	Password     PasswordConfig
	Mail         MailConfig
	Metrics      MetricsConfig
	Routes       RoutesConfig
	Security     SecurityConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionBackend selects where session records live.
type SessionBackend int

const (
	// SessionBackendStore keeps sessions in the injected Store (same database as users).
	SessionBackendStore SessionBackend = iota
	// SessionBackendRedis keeps sessions in Redis; requires Builder.WithRedis.
	SessionBackendRedis
)

// SessionConfig configures session issuance.
type SessionConfig struct {
	Lifetime    time.Duration
	Renewal     session.RenewalPolicy
	CookieName  string
	Backend     SessionBackend
	RedisPrefix string
}

// VerificationConfig configures the email verification challenge.
type VerificationConfig struct {
	TTL time.Duration
	// VerifyURL is linked from the verification email.
	VerifyURL string
	// ApproveOnVerify moves a PENDING user to APPROVED once the email is verified.
	ApproveOnVerify bool
}

// OAuthConfig configures Google sign-in. Federated login is off unless Enabled.
type OAuthConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HandshakeTTL time.Duration
	// HTTPClient is used for the code exchange when set.
	HTTPClient *http.Client
}

// RateLimitFailurePolicy selects behavior when the Redis limiter backend is down.
type RateLimitFailurePolicy int

const (
	// RateLimitFailLocal falls back to a per-instance token bucket.
	RateLimitFailLocal RateLimitFailurePolicy = iota
	// RateLimitFailClosed rejects requests.
	RateLimitFailClosed
	// RateLimitFailOpen admits requests.
	RateLimitFailOpen
)

// RateLimitConfig configures the built-in Redis limiter. Ignored when a custom
// RateLimiter is supplied.
type RateLimitConfig struct {
	Limit            int
	Window           time.Duration
	RedisPrefix      string
	OnBackendFailure RateLimitFailurePolicy
	MaxLocalKeys     int
}

// PasswordConfig configures Argon2id hashing.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// MailConfig configures the async mail dispatcher.
type MailConfig struct {
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RoutesConfig names the pages outcomes redirect to.
type RoutesConfig struct {
	Home        string
	VerifyEmail string
	TooFast     string
	SignIn      string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds switches that trade UX for exposure.
type SecurityConfig struct {
	// ProductionMode sets the Secure flag on every cookie.
	ProductionMode bool
	// UniformCredentialErrors reports unknown emails as invalid_credentials instead of user_not_found.
	UniformCredentialErrors bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Session: SessionConfig{
			Lifetime:    session.DefaultLifetime,
			Renewal:     session.RenewalFixed,
			CookieName:  session.CookieName,
			Backend:     SessionBackendStore,
			RedisPrefix: "as",
		},
		Verification: VerificationConfig{
			TTL:             15 * time.Minute,
			ApproveOnVerify: true,
		},
		OAuth: OAuthConfig{
			Enabled:      false,
			HandshakeTTL: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Limit:            5,
			Window:           time.Minute,
			RedisPrefix:      "rl",
			OnBackendFailure: RateLimitFailLocal,
			MaxLocalKeys:     10000,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Mail: MailConfig{
			BufferSize:  256,
			DropIfFull:  false,
			SendTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Routes: RoutesConfig{
			Home:        "/",
			VerifyEmail: "/verify-email",
			TooFast:     "/too-fast",
			SignIn:      "/sign-in",
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			UniformCredentialErrors: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session.Lifetime must be > 0")
	}
	if c.Session.Renewal != session.RenewalFixed && c.Session.Renewal != session.RenewalSliding {
		return errors.New("Session.Renewal must be RenewalFixed or RenewalSliding")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session.CookieName must be set")
	}
	if c.Session.Backend != SessionBackendStore && c.Session.Backend != SessionBackendRedis {
		return errors.New("Session.Backend is invalid")
	}

	// Verification
	if c.Verification.TTL <= 0 {
		return errors.New("Verification.TTL must be > 0")
	}
	if c.Verification.TTL >= c.Session.Lifetime {
		return errors.New("Verification.TTL must be shorter than Session.Lifetime")
	}

	// OAuth
	if c.OAuth.Enabled {
		if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
			return errors.New("OAuth requires ClientID and ClientSecret")
		}
		if c.OAuth.RedirectURL == "" {
			return errors.New("OAuth requires RedirectURL")
		}
		if c.OAuth.HandshakeTTL <= 0 {
			return errors.New("OAuth.HandshakeTTL must be > 0")
		}
		if c.Security.ProductionMode && !strings.HasPrefix(c.OAuth.RedirectURL, "https://") {
			return errors.New("OAuth.RedirectURL must use https in production")
		}
	}

	// Rate limit
	if c.RateLimit.Limit <= 0 {
		return errors.New("RateLimit.Limit must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit.Window must be > 0")
	}
	switch c.RateLimit.OnBackendFailure {
	case RateLimitFailLocal, RateLimitFailClosed, RateLimitFailOpen:
	default:
		return errors.New("RateLimit.OnBackendFailure is invalid")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password.Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password.Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password.Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password.SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password.KeyLength must be >= 16")
	}

	// Mail
	if c.Mail.BufferSize <= 0 {
		return errors.New("Mail.BufferSize must be > 0")
	}
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail.SendTimeout must be > 0")
	}

	// Routes
	for name, route := range map[string]string{
		"Home":        c.Routes.Home,
		"VerifyEmail": c.Routes.VerifyEmail,
		"TooFast":     c.Routes.TooFast,
		"SignIn":      c.Routes.SignIn,
	} {
		if !strings.HasPrefix(route, "/") {
			return errors.New("Routes." + name + " must be an absolute path")
		}
	}

	return nil
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}
