package shelfauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shelfauth/storage"
)

// SetAccountStatus moves a PENDING account to APPROVED or REJECTED. Any other
// transition returns ErrInvalidStatusTransition. Rejecting an account ends all of
// its sessions.
func (e *Engine) SetAccountStatus(ctx context.Context, userID string, next AccountStatus) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if next != StatusApproved && next != StatusRejected {
		return ErrInvalidStatusTransition
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !user.Status.CanTransition(next) {
		return ErrInvalidStatusTransition
	}

	wctx := writeContext(ctx)
	if err := e.users.UpdateUserStatus(wctx, userID, StatusPending, next); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrInvalidStatusTransition
		}
		return err
	}

	if next == StatusRejected {
		if err := e.sessions.InvalidateUserSessions(wctx, userID); err != nil {
			return fmt.Errorf("status updated, sessions not revoked: %w", err)
		}
	}
	return nil
}
