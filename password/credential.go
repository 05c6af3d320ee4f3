package password

import "errors"

var (
	// ErrFederatedOnly is returned when a password is checked against an account
	// that only signs in through an identity provider.
	ErrFederatedOnly = errors.New("account has no password")
	// ErrNoCredential is returned for the zero Credential.
	ErrNoCredential = errors.New("no credential")
)

// Method tags how an account authenticates.
type Method uint8

const (
	methodInvalid Method = iota
	// MethodPassword accounts carry a password hash.
	MethodPassword
	// MethodFederated accounts authenticate only through an identity provider.
	MethodFederated
)

func (m Method) String() string {
	switch m {
	case MethodPassword:
		return "password"
	case MethodFederated:
		return "federated"
	default:
		return "invalid"
	}
}

// ParseMethod is the inverse of Method.String.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "password":
		return MethodPassword, true
	case "federated":
		return MethodFederated, true
	default:
		return methodInvalid, false
	}
}

// Credential is either Password(hash) or FederatedOnly. Construct it with
// PasswordCredential or FederatedOnly; fields are unexported so a password
// credential can not be built with an empty hash.
type Credential struct {
	method Method
	hash   string
}

// PasswordCredential wraps a stored hash. An empty hash yields the zero Credential.
func PasswordCredential(hash string) Credential {
	if hash == "" {
		return Credential{}
	}
	return Credential{method: MethodPassword, hash: hash}
}

// FederatedOnly marks an account without a local password.
func FederatedOnly() Credential {
	return Credential{method: MethodFederated}
}

// Method returns the credential's tag.
func (c Credential) Method() Method { return c.method }

// Hash returns the stored hash and whether the credential is a password credential.
func (c Credential) Hash() (string, bool) {
	if c.method != MethodPassword {
		return "", false
	}
	return c.hash, true
}

// Valid reports whether the credential was built by one of the constructors.
func (c Credential) Valid() bool {
	return c.method == MethodPassword || c.method == MethodFederated
}
