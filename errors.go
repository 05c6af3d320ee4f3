package shelfauth

import "errors"

var (
	// ErrValidation is returned when typed input fails validation.
	ErrValidation = errors.New("invalid input")
	// ErrRateLimited is returned when the caller exceeded the quota for a scope.
	ErrRateLimited = errors.New("rate limited")
	// ErrRateLimiterUnavailable is returned when the limiter denies because its backend is down.
	ErrRateLimiterUnavailable = errors.New("rate limiter unavailable")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned on password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrFederatedAccount is returned when a password sign-in targets a federated-only account.
	ErrFederatedAccount = errors.New("account uses federated sign-in")
	// ErrEmailInUse is returned when sign-up hits an existing email.
	ErrEmailInUse = errors.New("email already in use")
	// ErrUnauthorized is returned when no valid session backs the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidStatusTransition is returned for any status change other than PENDING to APPROVED or REJECTED.
	ErrInvalidStatusTransition = errors.New("invalid account status transition")
	// ErrEmailAlreadyVerified is returned when verification is requested for a verified user.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrFederatedLoginDisabled is returned when no OAuth client is configured.
	ErrFederatedLoginDisabled = errors.New("federated login disabled")
	// ErrEngineNotReady is returned when Engine is nil or was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
)
