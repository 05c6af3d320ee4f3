// Package oauthtest provides a fake OAuth2 provider for tests.
package oauthtest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Issuer is the iss claim written into id tokens.
const Issuer = "https://accounts.google.com"

// Claims describes the identity the provider asserts for the next exchanges.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Audience      string
	Issuer        string
	ExpiresAt     time.Time
	// OmitIDToken leaves id_token out of the token response.
	OmitIDToken bool
}

// Provider is an httptest server with /auth and /token endpoints.
type Provider struct {
	Server   *httptest.Server
	ClientID string

	mu         sync.Mutex
	claims     Claims
	challenges map[string]string
	exchanges  int
}

// NewProvider starts a provider. Call Close when done.
func NewProvider(clientID string) *Provider {
	p := &Provider{
		ClientID:   clientID,
		challenges: make(map[string]string),
		claims: Claims{
			Subject:       "google-sub-1",
			Email:         "jane@example.com",
			EmailVerified: true,
			Name:          "Jane Doe",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.token)
	p.Server = httptest.NewServer(mux)
	return p
}

// Close stops the server.
func (p *Provider) Close() {
	p.Server.Close()
}

// Endpoint returns the provider endpoints for oauth2.Config.
func (p *Provider) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   p.Server.URL + "/auth",
		TokenURL:  p.Server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// SetClaims replaces the identity used for later exchanges.
func (p *Provider) SetClaims(c Claims) {
	p.mu.Lock()
	p.claims = c
	p.mu.Unlock()
}

// Exchanges returns how many token requests succeeded.
func (p *Provider) Exchanges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges
}

// Authorize simulates the user approving the login: it records the PKCE challenge
// from authURL and returns the code the provider would redirect back with.
func (p *Provider) Authorize(authURL string) (code string, state string) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", ""
	}
	q := u.Query()
	code = "code-" + q.Get("state")[:8]

	p.mu.Lock()
	p.challenges[code] = q.Get("code_challenge")
	p.mu.Unlock()
	return code, q.Get("state")
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	code := r.PostForm.Get("code")
	verifier := r.PostForm.Get("code_verifier")

	p.mu.Lock()
	challenge, ok := p.challenges[code]
	delete(p.challenges, code)
	claims := p.claims
	p.mu.Unlock()

	sum := sha256.Sum256([]byte(verifier))
	if !ok || r.PostForm.Get("client_id") != p.ClientID ||
		base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	resp := map[string]any{
		"access_token": "access-" + code,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !claims.OmitIDToken {
		resp["id_token"] = p.idToken(claims)
	}

	p.mu.Lock()
	p.exchanges++
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *Provider) idToken(c Claims) string {
	aud := c.Audience
	if aud == "" {
		aud = p.ClientID
	}
	iss := c.Issuer
	if iss == "" {
		iss = Issuer
	}
	exp := c.ExpiresAt
	if exp.IsZero() {
		exp = time.Now().Add(time.Hour)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":            iss,
		"aud":            aud,
		"sub":            c.Subject,
		"email":          c.Email,
		"email_verified": c.EmailVerified,
		"name":           c.Name,
		"iat":            time.Now().Unix(),
		"exp":            exp.Unix(),
	})
	signed, _ := token.SignedString([]byte("provider-signing-key"))
	return signed
}
