package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const stateBytes = 32

// Handshake is the per-attempt secret pair plus the URL to send the user to.
type Handshake struct {
	State        string
	CodeVerifier string
	AuthURL      string
	ExpiresAt    time.Time

	ttl    time.Duration
	secure bool
}

// Cookies returns the state and verifier cookies for the handshake.
func (h *Handshake) Cookies() []*http.Cookie {
	maxAge := int(h.ttl / time.Second)
	return []*http.Cookie{
		handshakeCookie(StateCookie, h.State, maxAge, h.secure),
		handshakeCookie(VerifierCookie, h.CodeVerifier, maxAge, h.secure),
	}
}

// Initiator starts federated logins.
type Initiator struct {
	cfg    Config
	oauth2 *oauth2.Config
}

// NewInitiator validates cfg and returns an Initiator.
func NewInitiator(cfg Config) (*Initiator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Initiator{cfg: cfg, oauth2: cfg.oauth2Config()}, nil
}

// Initiate generates a fresh state and code verifier and the matching provider URL.
func (i *Initiator) Initiate() (*Handshake, error) {
	state, err := generateState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	return &Handshake{
		State:        state,
		CodeVerifier: verifier,
		AuthURL:      i.oauth2.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		ExpiresAt:    i.cfg.Now().Add(i.cfg.HandshakeTTL),
		ttl:          i.cfg.HandshakeTTL,
		secure:       i.cfg.Secure,
	}, nil
}

func generateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
