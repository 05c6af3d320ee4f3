package shelfauth

import "net/http"

// Outcome keys. These are consumed by the presentation layer and must keep their meaning.
const (
	KeyValidationFailed     = "validation_failed"
	KeyRateLimited          = "rate_limited"
	KeyUserNotFound         = "user_not_found"
	KeyInvalidCredentials   = "invalid_credentials"
	KeyFederatedAccount     = "federated_account"
	KeyEmailInUse           = "email_in_use"
	KeySignInSuccess        = "sign_in_success"
	KeySignUpSuccess        = "sign_up_success"
	KeySignUpIncomplete     = "sign_up_incomplete"
	KeyInternalError        = "internal_error"
	KeyVerificationInvalid  = "verification_invalid"
	KeyVerificationExpired  = "verification_expired"
	KeyEmailVerified        = "email_verified"
	KeyEmailAlreadyVerified = "email_already_verified"
	KeyVerificationSent     = "verification_sent"
	KeyOAuthStateMismatch   = "oauth_state_mismatch"
	KeyOAuthFailed          = "oauth_failed"
	KeyOAuthStarted         = "oauth_started"
	KeySignedOut            = "signed_out"
	KeyUnauthorized         = "unauthorized"
)

var outcomeMessages = map[string]string{
	KeyValidationFailed:     "Some fields are invalid.",
	KeyRateLimited:          "Too many requests. Please try again later.",
	KeyUserNotFound:         "No user with that email found.",
	KeyInvalidCredentials:   "Invalid email or password.",
	KeyFederatedAccount:     "This account signs in with Google.",
	KeyEmailInUse:           "This email is already in use.",
	KeySignInSuccess:        "Signed in.",
	KeySignUpSuccess:        "Account created. Check your inbox for a verification code.",
	KeySignUpIncomplete:     "Your account was created but setup did not finish. Please sign in.",
	KeyInternalError:        "Something went wrong. Please try again.",
	KeyVerificationInvalid:  "That code is not valid.",
	KeyVerificationExpired:  "That code has expired. Request a new one.",
	KeyEmailVerified:        "Email verified.",
	KeyEmailAlreadyVerified: "Your email is already verified.",
	KeyVerificationSent:     "A new verification code is on its way.",
	KeyOAuthStateMismatch:   "The sign-in attempt could not be confirmed. Please try again.",
	KeyOAuthFailed:          "Google sign-in failed. Please try again.",
	KeyOAuthStarted:         "Redirecting to Google.",
	KeySignedOut:            "Signed out.",
	KeyUnauthorized:         "Please sign in.",
}

// Outcome is the uniform result of every orchestrator. Success outcomes carry a
// RedirectTo; failures carry a Key from the list above. Cookies must be written to
// the response in both cases.
type Outcome struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Key        string         `json:"key"`
	Data       any            `json:"data,omitempty"`
	RedirectTo string         `json:"-"`
	Cookies    []*http.Cookie `json:"-"`
}

// Redirect reports whether the caller should answer with a redirect instead of a body.
func (o Outcome) Redirect() bool {
	return o.RedirectTo != ""
}

func success(key, redirectTo string, cookies ...*http.Cookie) Outcome {
	return Outcome{
		Success:    true,
		Message:    outcomeMessages[key],
		Key:        key,
		RedirectTo: redirectTo,
		Cookies:    cookies,
	}
}

func failure(key string, cookies ...*http.Cookie) Outcome {
	return Outcome{
		Success: false,
		Message: outcomeMessages[key],
		Key:     key,
		Cookies: cookies,
	}
}

func validationFailure(v Validation) Outcome {
	out := failure(KeyValidationFailed)
	out.Data = map[string]any{"fields": v.Fields}
	return out
}
