package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/mail"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/caarlos0/env/v11"
)

type serverConfig struct {
	Addr           string        `env:"SHELFAUTH_ADDR" envDefault:":8080"`
	DatabaseURL    string        `env:"SHELFAUTH_DATABASE_URL" envDefault:"sqlite://shelfauth.db"`
	RedisAddr      string        `env:"SHELFAUTH_REDIS_ADDR"`
	Production     bool          `env:"SHELFAUTH_PRODUCTION"`
	LogLevel       string        `env:"SHELFAUTH_LOG_LEVEL" envDefault:"info"`
	TrustProxy     bool          `env:"SHELFAUTH_TRUST_PROXY"`
	SessionBackend string        `env:"SHELFAUTH_SESSION_BACKEND" envDefault:"store"`
	SlidingSession bool          `env:"SHELFAUTH_SLIDING_SESSIONS"`
	VerifyURL      string        `env:"SHELFAUTH_VERIFY_URL"`
	PurgeInterval  time.Duration `env:"SHELFAUTH_PURGE_INTERVAL" envDefault:"1h"`
	RateLimit      int           `env:"SHELFAUTH_RATE_LIMIT" envDefault:"5"`
	RateWindow     time.Duration `env:"SHELFAUTH_RATE_WINDOW" envDefault:"1m"`

	Google googleConfig `envPrefix:"SHELFAUTH_GOOGLE_"`
	SMTP   smtpConfig   `envPrefix:"SHELFAUTH_SMTP_"`
}

type googleConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

type smtpConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	FromName string `env:"FROM_NAME" envDefault:"shelfauth"`
}

// loadConfig reads SHELFAUTH_* variables. A nil environ reads the process
// environment.
func loadConfig(environ map[string]string) (serverConfig, error) {
	var cfg serverConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PurgeInterval < 0 {
		return serverConfig{}, errors.New("SHELFAUTH_PURGE_INTERVAL must be >= 0")
	}
	return cfg, nil
}

// engineConfig maps server settings onto the engine defaults and validates the result.
func (c serverConfig) engineConfig() (shelfauth.Config, error) {
	cfg := shelfauth.DefaultConfig()
	cfg.Security.ProductionMode = c.Production
	cfg.Verification.VerifyURL = c.VerifyURL
	cfg.RateLimit.Limit = c.RateLimit
	cfg.RateLimit.Window = c.RateWindow

	switch c.SessionBackend {
	case "", "store":
		cfg.Session.Backend = shelfauth.SessionBackendStore
	case "redis":
		cfg.Session.Backend = shelfauth.SessionBackendRedis
	default:
		return shelfauth.Config{}, fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	if c.SlidingSession {
		cfg.Session.Renewal = session.RenewalSliding
	}

	if c.Google.ClientID != "" {
		cfg.OAuth.Enabled = true
		cfg.OAuth.ClientID = c.Google.ClientID
		cfg.OAuth.ClientSecret = c.Google.ClientSecret
		cfg.OAuth.RedirectURL = c.Google.RedirectURL
	}

	if err := cfg.Validate(); err != nil {
		return shelfauth.Config{}, err
	}
	return cfg, nil
}

// smtpSender returns nil when no relay is configured.
func (c serverConfig) smtpSender() (mail.Sender, error) {
	if c.SMTP.Host == "" {
		return nil, nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		FromName: c.SMTP.FromName,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
