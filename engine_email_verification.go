package shelfauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/shelfauth/storage"
	"github.com/MrEthical07/shelfauth/verification"
)

// startVerification replaces the user's pending request, queues the email and
// returns the request cookie. A mail failure is logged; the request stays valid
// and can be resent.
func (e *Engine) startVerification(ctx context.Context, user *User) (*http.Cookie, error) {
	req, err := e.register.CreateRequest(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricVerificationIssued)

	if err := e.register.SendVerificationEmail(user.FullName, req.Email, req.Code); err != nil {
		e.metrics.Inc(MetricMailFailed)
		e.logger.Warn(ctx, "verification email not queued", "user_id", user.ID, "error", err)
	}
	return e.register.Cookie(req), nil
}

// VerifyEmail redeems the pending request of userID with the submitted code.
// On success the email is marked verified and, with ApproveOnVerify, a PENDING
// account becomes APPROVED.
func (e *Engine) VerifyEmail(ctx context.Context, userID string, in VerifyEmailInput) Outcome {
	if e == nil {
		return failure(KeyInternalError)
	}
	if userID == "" {
		return failure(KeyUnauthorized)
	}

	if v := in.Validate(); !v.OK() {
		return validationFailure(v)
	}
	if out, stop := e.throttle(ctx, scopeVerifyEmail, in.RequestID); stop {
		return out
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failure(KeyUnauthorized)
		}
		return e.internalError(ctx, "verify-email lookup", err)
	}
	if user.EmailVerified() {
		return failure(KeyEmailAlreadyVerified, e.register.BlankCookie())
	}

	wctx := writeContext(ctx)
	if _, err := e.register.Redeem(wctx, in.RequestID, user.ID, in.Code); err != nil {
		switch {
		case errors.Is(err, verification.ErrRequestExpired):
			e.metrics.Inc(MetricVerificationFailed)
			return failure(KeyVerificationExpired)
		case errors.Is(err, verification.ErrRequestNotFound),
			errors.Is(err, verification.ErrRequestConsumed),
			errors.Is(err, verification.ErrCodeMismatch):
			e.metrics.Inc(MetricVerificationFailed)
			return failure(KeyVerificationInvalid)
		default:
			return e.internalError(ctx, "verify-email redeem", err)
		}
	}

	if err := e.users.MarkEmailVerified(wctx, user.ID, e.now()); err != nil {
		return e.internalError(ctx, "verify-email mark", err)
	}
	if e.config.Verification.ApproveOnVerify && user.Status == StatusPending {
		if err := e.users.UpdateUserStatus(wctx, user.ID, StatusPending, StatusApproved); err != nil && !errors.Is(err, storage.ErrConflict) {
			e.logger.Error(ctx, "approve after verification failed", "user_id", user.ID, "error", err)
		}
	}

	e.metrics.Inc(MetricVerificationRedeemed)
	return success(KeyEmailVerified, e.config.Routes.Home, e.register.BlankCookie())
}

// ResendVerification issues a fresh code for userID, invalidating the previous one.
func (e *Engine) ResendVerification(ctx context.Context, userID string) Outcome {
	if e == nil {
		return failure(KeyInternalError)
	}
	if userID == "" {
		return failure(KeyUnauthorized)
	}
	if out, stop := e.throttle(ctx, scopeResendVerification, userID); stop {
		return out
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failure(KeyUnauthorized)
		}
		return e.internalError(ctx, "resend-verification lookup", err)
	}
	if user.EmailVerified() {
		return failure(KeyEmailAlreadyVerified)
	}

	cookie, err := e.startVerification(writeContext(ctx), user)
	if err != nil {
		return e.internalError(ctx, "resend-verification create", err)
	}
	return success(KeyVerificationSent, "", cookie)
}
