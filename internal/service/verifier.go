package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/iliyamo/account-auth/internal/apperr"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/repository"
	"github.com/iliyamo/account-auth/internal/utils"
)

// ErrCredentialsNotFound is returned for an unknown identifier and for a
// wrong password alike.
var ErrCredentialsNotFound = errors.New("credentials not found")

// Verifier checks an identifier/password pair against the store.
type Verifier struct {
	users UserStore
	// dummyHash is compared against when the user does not exist so both
	// outcomes cost one bcrypt comparison at the configured cost.
	dummyHash func() string
}

// NewVerifier returns a Verifier whose timing-equalisation hash uses cost.
func NewVerifier(users UserStore, cost int) *Verifier {
	return &Verifier{
		users: users,
		dummyHash: sync.OnceValue(func() string {
			h, err := utils.HashPassword("not-a-real-password", cost)
			if err != nil {
				return ""
			}
			return h
		}),
	}
}

// Verify returns the user identified by identifier (its username) when
// password matches, with the password hash cleared.
func (v *Verifier) Verify(ctx context.Context, identifier, password string) (*model.User, error) {
	const op = "verify"
	u, err := v.users.GetByUsername(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = utils.VerifyPassword(v.dummyHash(), password)
			return nil, ErrCredentialsNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, op, "internal error", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrCredentialsNotFound
	}
	clean := u.Sanitized()
	return &clean, nil
}
