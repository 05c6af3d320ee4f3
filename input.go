package shelfauth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/verification"
)

const (
	maxEmailLength   = 254
	minFullNameRunes = 2
	maxFullNameRunes = 100
)

// Validation is the result of validating a typed input. A zero Validation is OK.
type Validation struct {
	Fields map[string]string
}

// OK reports whether validation passed.
func (v Validation) OK() bool {
	return len(v.Fields) == 0
}

func (v *Validation) add(field, reason string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	if _, exists := v.Fields[field]; !exists {
		v.Fields[field] = reason
	}
}

// Err returns ErrValidation when v failed, nil otherwise.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return ErrValidation
}

// SignInInput is the sign-in form.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks shape only. The email is normalised in place on success.
func (in *SignInInput) Validate() Validation {
	var v Validation
	email, reason := normalizeEmail(in.Email)
	if reason != "" {
		v.add("email", reason)
	} else {
		in.Email = email
	}
	switch {
	case in.Password == "":
		v.add("password", "required")
	case len(in.Password) > password.MaxLength:
		v.add("password", "too_long")
	}
	return v
}

// SignUpInput is the sign-up form.
type SignUpInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the form and normalises email and name in place on success.
func (in *SignUpInput) Validate() Validation {
	var v Validation

	name := strings.Join(strings.Fields(in.FullName), " ")
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		v.add("fullName", "required")
	case !utf8.ValidString(name):
		v.add("fullName", "invalid")
	case n < minFullNameRunes:
		v.add("fullName", "too_short")
	case n > maxFullNameRunes:
		v.add("fullName", "too_long")
	}

	email, reason := normalizeEmail(in.Email)
	if reason != "" {
		v.add("email", reason)
	}

	switch {
	case in.Password == "":
		v.add("password", "required")
	case len(in.Password) < password.MinLength:
		v.add("password", "too_short")
	case len(in.Password) > password.MaxLength:
		v.add("password", "too_long")
	}

	if v.OK() {
		in.FullName = name
		in.Email = email
	}
	return v
}

// VerifyEmailInput is the verification form. RequestID comes from the
// email_verification cookie.
type VerifyEmailInput struct {
	RequestID string `json:"-"`
	Code      string `json:"code"`
}

// Validate checks the code shape and normalises it to upper case.
func (in *VerifyEmailInput) Validate() Validation {
	var v Validation
	if in.RequestID == "" {
		v.add("requestId", "required")
	}
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	switch {
	case code == "":
		v.add("code", "required")
	case len(code) != verification.CodeLength:
		v.add("code", "invalid")
	default:
		in.Code = code
	}
	return v
}

func normalizeEmail(raw string) (string, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "required"
	}
	if len(trimmed) > maxEmailLength {
		return "", "too_long"
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || addr.Name != "" {
		return "", "invalid"
	}
	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", "invalid"
	}
	return strings.ToLower(addr.Address), ""
}
