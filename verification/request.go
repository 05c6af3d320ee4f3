package verification

import (
	"context"
	"crypto/rand"
	"time"
)

// CodeLength is the number of characters in a verification code.
const CodeLength = 8

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// Request is one pending email verification.
type Request struct {
	ID         string
	UserID     string
	Email      string
	Code       string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the request is past its expiry at now.
func (r *Request) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists verification requests.
//
// ReplaceVerificationRequest deletes every other request of req.UserID and inserts
// req atomically. ConsumeVerificationRequest sets ConsumedAt only if it is unset
// and reports whether it did.
type Store interface {
	ReplaceVerificationRequest(ctx context.Context, req *Request) error
	GetVerificationRequest(ctx context.Context, id string) (*Request, error)
	ConsumeVerificationRequest(ctx context.Context, id string, at time.Time) (bool, error)
}

// GenerateCode returns CodeLength characters drawn uniformly from A-Z and 2-7.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// 256 is a multiple of 32, so masking keeps the distribution uniform.
	for i := range buf {
		buf[i] = codeAlphabet[buf[i]&31]
	}
	return string(buf), nil
}
