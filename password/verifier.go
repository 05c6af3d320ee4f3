package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks submitted secrets against a Credential and hashes new ones.
// Safe for concurrent use.
type Verifier struct {
	argon *Argon2
	dummy string
}

// NewVerifier builds a Verifier whose new hashes use cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}

	dummy, err := a.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}

	return &Verifier{argon: a, dummy: dummy}, nil
}

// Hash derives a storable hash for secret.
func (v *Verifier) Hash(secret string) (string, error) {
	return v.argon.Hash(secret)
}

// Verify reports whether submitted matches the credential.
//
// FederatedOnly credentials return ErrFederatedOnly and the zero Credential returns
// ErrNoCredential; neither ever reports a match.
func (v *Verifier) Verify(submitted string, cred Credential) (bool, error) {
	switch cred.Method() {
	case MethodPassword:
	case MethodFederated:
		return false, ErrFederatedOnly
	default:
		return false, ErrNoCredential
	}

	hash, _ := cred.Hash()
	if isBcryptHash(hash) {
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(submitted))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
	}
	if !isArgon2Hash(hash) {
		return false, fmt.Errorf("%w: unknown scheme", ErrInvalidHash)
	}

	return v.argon.Verify(submitted, hash)
}

// Dummy spends the cost of one Argon2 verification and discards the result.
// Callers use it on paths where no account was found.
func (v *Verifier) Dummy(submitted string) {
	_, _ = v.argon.Verify(submitted, v.dummy)
}

// NeedsRehash reports whether a password credential should be re-hashed with the
// current parameters. Legacy bcrypt hashes always need it.
func (v *Verifier) NeedsRehash(cred Credential) bool {
	hash, ok := cred.Hash()
	if !ok {
		return false
	}
	if isBcryptHash(hash) {
		return true
	}
	upgrade, err := v.argon.NeedsUpgrade(hash)
	return err == nil && upgrade
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
