package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/account-auth/internal/apperr"
	"github.com/iliyamo/account-auth/internal/logging"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/queue"
	"github.com/iliyamo/account-auth/internal/repository"
	"github.com/iliyamo/account-auth/internal/token"
)

// SessionPolicy holds the configurable parts of the session lifecycle.
type SessionPolicy struct {
	// StrictPersist rejects a login whose refresh token could not be stored.
	// When false the failure is logged and the tokens are returned anyway;
	// such a refresh token will not pass Refresh.
	StrictPersist bool
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             model.PublicUser
}

// RefreshResult is returned by a successful Refresh.
type RefreshResult struct {
	AccessToken string
}

// LogoutRequest names the session to end. UserID takes precedence; when it
// is zero the refresh token identifies the user.
type LogoutRequest struct {
	UserID       int64
	RefreshToken string
}

// SessionManager implements login, refresh and logout on top of the single
// refresh slot stored on each user row. Concurrent logins of the same user
// are not serialized: whichever write lands last owns the slot.
type SessionManager struct {
	users    UserStore
	verifier *Verifier
	tokens   *token.Issuer
	policy   SessionPolicy
	events   EventPublisher
	log      logging.Logger
	now      func() time.Time
}

// NewSessionManager wires a SessionManager. events may be nil.
func NewSessionManager(users UserStore, verifier *Verifier, tokens *token.Issuer, policy SessionPolicy,
	events EventPublisher, log logging.Logger) *SessionManager {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &SessionManager{
		users:    users,
		verifier: verifier,
		tokens:   tokens,
		policy:   policy,
		events:   events,
		log:      log.With("component", "session"),
		now:      time.Now,
	}
}

// Login verifies the credentials, mints an access/refresh pair and stores
// the refresh token in the user's slot, replacing any previous one.
func (s *SessionManager) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	const op = "login"
	u, err := s.verifier.Verify(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, ErrCredentialsNotFound) {
			s.log.Info(ctx, "login rejected")
			return nil, apperr.Wrap(apperr.KindUnauthorized, op, "invalid credentials", err)
		}
		return nil, err
	}

	access, err := s.tokens.IssueAccess(token.Identity{UserID: u.ID, Username: u.Username, Email: u.Email})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, "internal error", err)
	}
	refresh, exp, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, "internal error", err)
	}

	if err := s.users.SetRefreshToken(ctx, u.ID, &refresh, &exp); err != nil {
		if s.policy.StrictPersist {
			s.log.Error(ctx, "persist refresh token failed", "user_id", u.ID, "err", err)
			return nil, apperr.Wrap(apperr.KindBadRequest, op, "could not start session", err)
		}
		s.log.Warn(ctx, "persist refresh token failed, continuing", "user_id", u.ID, "err", err)
	}

	s.log.Info(ctx, "user logged in", "user_id", u.ID)
	s.publish(ctx, queue.EventLoggedIn, u.ID, u.Username)
	return &LoginResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: exp,
		User:             u.Public(),
	}, nil
}

// Refresh exchanges a refresh token for a new access token. The token must
// verify and equal the value currently in the user's slot. A slot past its
// stored expiry is cleared. The slot is otherwise left untouched, so the
// same refresh token keeps working until logout, expiry or the next login.
func (s *SessionManager) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	const op = "refresh"
	if refreshToken == "" {
		return nil, apperr.New(apperr.KindBadRequest, op, "refresh token required")
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, op, "invalid refresh token", err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, op, "invalid refresh token", err)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindUnauthorized, op, "invalid refresh token", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, op, "internal error", err)
	}
	if !u.HasRefreshSlot() || *u.RefreshToken != refreshToken {
		return nil, apperr.New(apperr.KindUnauthorized, op, "invalid refresh token")
	}
	if u.RefreshTokenExpiresAt != nil && s.now().After(*u.RefreshTokenExpiresAt) {
		if err := s.users.SetRefreshToken(ctx, u.ID, nil, nil); err != nil {
			s.log.Error(ctx, "clear expired refresh token failed", "user_id", u.ID, "err", err)
		}
		s.publish(ctx, queue.EventRefreshExpired, u.ID, u.Username)
		return nil, apperr.New(apperr.KindUnauthorized, op, "refresh token expired")
	}

	access, err := s.tokens.IssueAccess(token.Identity{UserID: u.ID, Username: u.Username, Email: u.Email})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, "internal error", err)
	}
	return &RefreshResult{AccessToken: access}, nil
}

// Logout clears the refresh slot of the user named by req. It never fails:
// an unresolvable request clears nothing and store errors are only logged.
func (s *SessionManager) Logout(ctx context.Context, req LogoutRequest) {
	userID := req.UserID
	if userID == 0 && req.RefreshToken != "" {
		userID = s.resolveRefreshOwner(ctx, req.RefreshToken)
	}
	if userID == 0 {
		return
	}
	if err := s.users.SetRefreshToken(ctx, userID, nil, nil); err != nil {
		s.log.Warn(ctx, "clear refresh token failed", "user_id", userID, "err", err)
		return
	}
	s.log.Info(ctx, "user logged out", "user_id", userID)
	s.publish(ctx, queue.EventLoggedOut, userID, "")
}

// resolveRefreshOwner returns the id of the user whose slot holds raw, or 0.
func (s *SessionManager) resolveRefreshOwner(ctx context.Context, raw string) int64 {
	claims, err := s.tokens.VerifyRefresh(raw)
	if err != nil {
		return 0
	}
	id, err := claims.UserID()
	if err != nil {
		return 0
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn(ctx, "logout lookup failed", "user_id", id, "err", err)
		}
		return 0
	}
	if !u.HasRefreshSlot() || *u.RefreshToken != raw {
		return 0
	}
	return u.ID
}

func (s *SessionManager) publish(ctx context.Context, typ string, userID int64, username string) {
	if err := s.events.Publish(ctx, queue.NewAuthEvent(typ, userID, username)); err != nil {
		s.log.Warn(ctx, "publish auth event failed", "type", typ, "err", err)
	}
}
