package shelfauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/storage"
	"github.com/google/uuid"
)

// SignUp creates a PENDING password account, issues the first verification code
// and signs the user in.
//
// The writes are independent. Once the user row exists, a failure in a later step
// yields sign_up_incomplete; signing in again recovers, and the code can be resent.
func (e *Engine) SignUp(ctx context.Context, in SignUpInput) Outcome {
	if e == nil {
		return failure(KeyInternalError)
	}

	if v := in.Validate(); !v.OK() {
		return validationFailure(v)
	}
	if out, stop := e.throttle(ctx, scopeSignUp, clientIPFromContext(ctx)); stop {
		return out
	}

	if _, err := e.users.GetUserByEmail(ctx, in.Email); err == nil {
		e.metrics.Inc(MetricSignUpDuplicate)
		return failure(KeyEmailInUse)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return e.internalError(ctx, "sign-up lookup", err)
	}

	hash, err := e.verifier.Hash(in.Password)
	if err != nil {
		return e.internalError(ctx, "sign-up hash", err)
	}

	wctx := writeContext(ctx)
	user := &User{
		ID:         uuid.NewString(),
		Email:      in.Email,
		FullName:   in.FullName,
		Credential: password.PasswordCredential(hash),
		Status:     StatusPending,
		CreatedAt:  e.now(),
	}
	if err := e.users.CreateUser(wctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			e.metrics.Inc(MetricSignUpDuplicate)
			return failure(KeyEmailInUse)
		}
		return e.internalError(ctx, "sign-up create user", err)
	}

	var (
		cookies    []*http.Cookie
		incomplete bool
	)

	if cookie, err := e.startVerification(wctx, user); err != nil {
		e.logger.Error(ctx, "sign-up verification request failed", "user_id", user.ID, "error", err)
		incomplete = true
	} else {
		cookies = append(cookies, cookie)
	}

	if cookie, err := e.issueSession(ctx, user.ID); err != nil {
		e.logger.Error(ctx, "sign-up session failed", "user_id", user.ID, "error", err)
		incomplete = true
	} else {
		cookies = append(cookies, cookie)
	}

	if incomplete {
		e.metrics.Inc(MetricSignUpIncomplete)
		return failure(KeySignUpIncomplete, cookies...)
	}

	e.metrics.Inc(MetricSignUpSuccess)
	return success(KeySignUpSuccess, e.config.Routes.VerifyEmail, cookies...)
}
