package shelfauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/shelfauth/internal/logging"
	"github.com/MrEthical07/shelfauth/mail"
	"github.com/MrEthical07/shelfauth/oauth"
	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/verification"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// Builder assembles an Engine. A Builder is single use.
//
//	engine, err := shelfauth.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithRedis(rdb).
//		WithMailSender(sender).
//		Build()
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store       Store
	rateLimiter RateLimiter
	mailSender  mail.Sender
	logger      logging.Logger
	now         func() time.Time

	oauthEndpoint *oauth2.Endpoint

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the persistence backend. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis sets the Redis client backing the rate limiter and, with
// SessionBackendRedis, the session store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRateLimiter replaces the built-in Redis limiter.
func (b *Builder) WithRateLimiter(l RateLimiter) *Builder {
	b.rateLimiter = l
	return b
}

// WithMailSender sets the transport for verification email. Without one, mail is
// logged instead of delivered.
func (b *Builder) WithMailSender(s mail.Sender) *Builder {
	b.mailSender = s
	return b
}

// WithLogger sets the logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// WithOAuthEndpoint points federated login at a provider other than Google.
func (b *Builder) WithOAuthEndpoint(ep oauth2.Endpoint) *Builder {
	b.oauthEndpoint = &ep
	return b
}

// WithClock overrides time.Now for every lifetime decision. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.rateLimiter == nil && b.redis == nil {
		return nil, errors.New("redis client or rate limiter required")
	}
	if cfg.Session.Backend == SessionBackendRedis && b.redis == nil {
		return nil, errors.New("SessionBackendRedis requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Nop{}
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cfg,
		users:   b.store,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- RATE LIMITER --------
	if b.rateLimiter != nil {
		engine.limiter = b.rateLimiter
	} else {
		engine.limiter = newRedisRateLimiter(b.redis, cfg.RateLimit, engine.metrics, logger)
	}

	// -------- PASSWORD --------
	verifier, err := password.NewVerifier(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}
	engine.verifier = verifier

	// -------- SESSIONS --------
	var sessionStore session.Store = b.store
	if cfg.Session.Backend == SessionBackendRedis {
		sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	engine.sessions = session.NewManager(sessionStore, session.Config{
		Lifetime:   cfg.Session.Lifetime,
		Renewal:    cfg.Session.Renewal,
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Security.ProductionMode,
		Now:        now,
	})

	// -------- MAIL --------
	sender := b.mailSender
	if sender == nil {
		sender = mail.LogSender{Logger: logger}
	}
	engine.mailer = mail.NewDispatcher(mail.Config{
		BufferSize:  cfg.Mail.BufferSize,
		DropIfFull:  cfg.Mail.DropIfFull,
		SendTimeout: cfg.Mail.SendTimeout,
		OnResult:    engine.onMailResult,
	}, sender)

	// -------- VERIFICATION --------
	engine.register = verification.NewRegister(b.store, engine.mailer, verification.Config{
		TTL:       cfg.Verification.TTL,
		Secure:    cfg.Security.ProductionMode,
		VerifyURL: cfg.Verification.VerifyURL,
		Now:       now,
	})

	// -------- OAUTH --------
	if cfg.OAuth.Enabled {
		oc := oauth.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
			HandshakeTTL: cfg.OAuth.HandshakeTTL,
			Secure:       cfg.Security.ProductionMode,
			HTTPClient:   cfg.OAuth.HTTPClient,
			Now:          now,
		}
		if b.oauthEndpoint != nil {
			oc.Endpoint = *b.oauthEndpoint
		}
		if engine.initiator, err = oauth.NewInitiator(oc); err != nil {
			engine.mailer.Close()
			return nil, err
		}
		if engine.callback, err = oauth.NewCallback(oc); err != nil {
			engine.mailer.Close()
			return nil, err
		}
	}

	b.built = true

	return engine, nil
}
