package oauth

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	// StateCookie holds the anti-forgery state during the handshake.
	StateCookie = "google_oauth_state"
	// VerifierCookie holds the PKCE code verifier during the handshake.
	VerifierCookie = "google_code_verifier"
)

// DefaultHandshakeTTL bounds how long a started login may take.
const DefaultHandshakeTTL = 10 * time.Minute

var defaultScopes = []string{"openid", "profile", "email"}

var defaultIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// Config configures both halves of the flow.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint defaults to Google.
	Endpoint oauth2.Endpoint
	Scopes   []string
	// Issuers accepted in the id_token iss claim. Defaults to Google's two forms.
	Issuers      []string
	HandshakeTTL time.Duration
	Secure       bool
	// HTTPClient is used for the token exchange when set.
	HTTPClient *http.Client
	Now        func() time.Time
}

func (c Config) validate() error {
	if c.ClientID == "" {
		return errors.New("oauth: client id is required")
	}
	if c.ClientSecret == "" {
		return errors.New("oauth: client secret is required")
	}
	if c.RedirectURL == "" {
		return errors.New("oauth: redirect url is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Endpoint.AuthURL == "" && c.Endpoint.TokenURL == "" {
		c.Endpoint = endpoints.Google
	}
	if len(c.Scopes) == 0 {
		c.Scopes = defaultScopes
	}
	if len(c.Issuers) == 0 {
		c.Issuers = defaultIssuers
	}
	if c.HandshakeTTL <= 0 {
		c.HandshakeTTL = DefaultHandshakeTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     c.Endpoint,
		Scopes:       c.Scopes,
	}
}

func handshakeCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0)
	}
	return c
}
