package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
)

// storeError 将存储层哨兵错误翻译为 apperror
func storeError(err error, entity string) error {
	var appErr *apperror.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, database.ErrNotFound):
		return apperror.NotFound("%s not found", entity)
	case errors.Is(err, database.ErrDuplicateEmail):
		return apperror.Conflict("email already belongs to a member")
	case errors.Is(err, database.ErrConflict):
		return apperror.Conflict("%s already exists", entity)
	case errors.Is(err, database.ErrNotPending):
		return apperror.InvalidState("%s has already been processed", entity)
	case errors.Is(err, database.ErrCapacityExceeded):
		return apperror.CapacityExceeded("project has reached its member limit")
	case errors.Is(err, database.ErrProjectClosed):
		return apperror.InvalidState("project no longer accepts members")
	case errors.Is(err, database.ErrNotOwner):
		return apperror.Forbidden("only the owner can change this %s", entity)
	case errors.Is(err, database.ErrStatusRegression):
		return apperror.InvalidState("%s status cannot move backwards", entity)
	case errors.Is(err, database.ErrAuraMissing):
		return apperror.Validation("aura is not on this profile")
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.Internal(err, "storage timeout")
	}
	return apperror.Internal(err, "storage failure on %s", entity)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// notifyTimeout bounds post-commit email delivery.
const notifyTimeout = 10 * time.Second

// notify 在请求上下文之外投递邮件；失败只记录日志
func notify(ctx context.Context, what string, send func(context.Context) error) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := send(sendCtx); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("email", what).Warn("⚠️  Email delivery failed")
	}
}
