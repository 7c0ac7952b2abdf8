// Package service holds the account and session logic between the HTTP
// handlers and the user repository. Every error it returns is an
// *apperr.Error.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/account-auth/internal/apperr"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/queue"
	"github.com/iliyamo/account-auth/internal/repository"
)

// UserStore is the persistence the services need. *repository.UserRepo
// implements it.
type UserStore interface {
	Create(ctx context.Context, u repository.NewUser, cost int) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	NicknameTaken(ctx context.Context, nickname string) (bool, error)
	UpdateProfile(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.User, error)
	SetRefreshToken(ctx context.Context, id int64, token *string, expiresAt *time.Time) error
}

// EventPublisher delivers auth events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// storeError translates repository sentinels into error kinds.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, op, "user not found", err)
	case errors.Is(err, repository.ErrUsernameExists):
		return apperr.Wrap(apperr.KindConflict, op, "username already exists", err)
	case errors.Is(err, repository.ErrEmailExists):
		return apperr.Wrap(apperr.KindConflict, op, "email already exists", err)
	case errors.Is(err, repository.ErrNicknameExists):
		return apperr.Wrap(apperr.KindConflict, op, "nickname already exists", err)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Wrap(apperr.KindConflict, op, "account already exists", err)
	default:
		return apperr.Wrap(apperr.KindInternal, op, "internal error", err)
	}
}
