package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	// ErrStateMismatch is returned when the callback state is missing or differs
	// from the state cookie.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrMissingCode is returned when the provider did not return a code.
	ErrMissingCode = errors.New("oauth code missing")
	// ErrProviderDenied is returned when the provider redirected back with an error.
	ErrProviderDenied = errors.New("oauth provider returned an error")
	// ErrExchange wraps token endpoint failures.
	ErrExchange = errors.New("oauth code exchange failed")
	// ErrInvalidIDToken is returned when the id_token is absent or fails validation.
	ErrInvalidIDToken = errors.New("oauth id token invalid")
)

// Identity is what the provider asserts about the user.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
}

// flexBool accepts both true and "true"; providers differ.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true":
		*b = true
	case "false", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// Callback completes federated logins.
type Callback struct {
	cfg       Config
	oauth2    *oauth2.Config
	validator *jwt.Validator
	parser    *jwt.Parser
}

// NewCallback validates cfg and returns a Callback.
func NewCallback(cfg Config) (*Callback, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Callback{
		cfg:    cfg,
		oauth2: cfg.oauth2Config(),
		validator: jwt.NewValidator(
			jwt.WithAudience(cfg.ClientID),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.Now),
		),
		parser: jwt.NewParser(),
	}, nil
}

// ClearingCookies expires both handshake cookies.
func (c *Callback) ClearingCookies() []*http.Cookie {
	return []*http.Cookie{
		handshakeCookie(StateCookie, "", -1, c.cfg.Secure),
		handshakeCookie(VerifierCookie, "", -1, c.cfg.Secure),
	}
}

// Complete handles the provider redirect. The returned cookies clear the handshake
// and must be set whatever the error.
func (c *Callback) Complete(ctx context.Context, r *http.Request) (*Identity, []*http.Cookie, error) {
	clearing := c.ClearingCookies()
	query := r.URL.Query()

	stateCookie, err := r.Cookie(StateCookie)
	if err != nil || stateCookie.Value == "" {
		return nil, clearing, ErrStateMismatch
	}
	state := query.Get("state")
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(stateCookie.Value)) != 1 {
		return nil, clearing, ErrStateMismatch
	}

	if e := query.Get("error"); e != "" {
		return nil, clearing, fmt.Errorf("%w: %s", ErrProviderDenied, e)
	}
	code := query.Get("code")
	if code == "" {
		return nil, clearing, ErrMissingCode
	}

	verifierCookie, err := r.Cookie(VerifierCookie)
	if err != nil || verifierCookie.Value == "" {
		return nil, clearing, ErrStateMismatch
	}

	if c.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
	}
	tok, err := c.oauth2.Exchange(ctx, code, oauth2.VerifierOption(verifierCookie.Value))
	if err != nil {
		return nil, clearing, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	raw, _ := tok.Extra("id_token").(string)
	identity, err := c.parseIDToken(raw)
	if err != nil {
		return nil, clearing, err
	}
	return identity, clearing, nil
}

func (c *Callback) parseIDToken(raw string) (*Identity, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing", ErrInvalidIDToken)
	}

	var claims idTokenClaims
	if _, _, err := c.parser.ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if err := c.validator.Validate(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if !slices.Contains(c.cfg.Issuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidIDToken, claims.Issuer)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: subject and email are required", ErrInvalidIDToken)
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailVerified: bool(claims.EmailVerified),
		Name:          claims.Name,
	}, nil
}
