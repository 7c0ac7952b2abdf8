package service

import (
	"context"
	"strings"

	"github.com/iliyamo/account-auth/internal/apperr"
	"github.com/iliyamo/account-auth/internal/logging"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/queue"
	"github.com/iliyamo/account-auth/internal/repository"
	"github.com/iliyamo/account-auth/internal/token"
)

// SignupInput creates a nickname account without an email.
type SignupInput struct {
	ID              string
	Password        string
	Nickname        string
	ProfileImageURL *string
}

// RegisterInput creates an email account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// RegisterResult carries the access token minted for a fresh registration.
type RegisterResult struct {
	AccessToken string
	User        model.PublicUser
}

// ProfileService implements account creation, the profile endpoints and
// the availability checks.
type ProfileService struct {
	users      UserStore
	tokens     *token.Issuer
	bcryptCost int
	events     EventPublisher
	log        logging.Logger
}

// NewProfileService wires a ProfileService. events may be nil.
func NewProfileService(users UserStore, tokens *token.Issuer, bcryptCost int, events EventPublisher,
	log logging.Logger) *ProfileService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &ProfileService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		events:     events,
		log:        log.With("component", "profile"),
	}
}

// Signup creates an account identified by in.ID with a mandatory nickname.
func (p *ProfileService) Signup(ctx context.Context, in SignupInput) error {
	const op = "signup"
	id := strings.TrimSpace(in.ID)
	nickname := strings.TrimSpace(in.Nickname)

	taken, err := p.users.UsernameTaken(ctx, id)
	if err != nil {
		return storeError(op, err)
	}
	if taken {
		return apperr.New(apperr.KindConflict, op, "username already exists")
	}
	taken, err = p.users.NicknameTaken(ctx, nickname)
	if err != nil {
		return storeError(op, err)
	}
	if taken {
		return apperr.New(apperr.KindConflict, op, "nickname already exists")
	}

	u, err := p.users.Create(ctx, repository.NewUser{
		Username:        id,
		Password:        in.Password,
		Nickname:        &nickname,
		ProfileImageURL: in.ProfileImageURL,
	}, p.bcryptCost)
	if err != nil {
		return storeError(op, err)
	}
	p.log.Info(ctx, "user signed up", "user_id", u.ID)
	p.publish(ctx, queue.EventSignedUp, u)
	return nil
}

// Register creates an email account and returns an access token for it.
// No refresh token is issued; the client logs in to obtain one.
func (p *ProfileService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	const op = "register"
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)

	taken, err := p.users.EmailTaken(ctx, email)
	if err != nil {
		return nil, storeError(op, err)
	}
	if taken {
		return nil, apperr.New(apperr.KindConflict, op, "email already exists")
	}
	taken, err = p.users.UsernameTaken(ctx, username)
	if err != nil {
		return nil, storeError(op, err)
	}
	if taken {
		return nil, apperr.New(apperr.KindConflict, op, "username already exists")
	}

	u, err := p.users.Create(ctx, repository.NewUser{Username: username, Email: &email, Password: in.Password}, p.bcryptCost)
	if err != nil {
		return nil, storeError(op, err)
	}
	access, err := p.tokens.IssueAccess(token.Identity{UserID: u.ID, Username: u.Username, Email: u.Email})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, "internal error", err)
	}
	p.log.Info(ctx, "user registered", "user_id", u.ID)
	p.publish(ctx, queue.EventSignedUp, u)
	return &RegisterResult{AccessToken: access, User: u.Public()}, nil
}

// GetProfile returns the profile of the user with id.
func (p *ProfileService) GetProfile(ctx context.Context, id int64) (*model.Profile, error) {
	u, err := p.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get profile", err)
	}
	prof := u.Profile()
	return &prof, nil
}

// UpdateProfile applies upd to the user with id. A nickname change is
// rejected when another user already holds the nickname.
func (p *ProfileService) UpdateProfile(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.Profile, error) {
	const op = "update profile"
	if upd.Nickname != nil {
		nickname := strings.TrimSpace(*upd.Nickname)
		upd.Nickname = &nickname

		current, err := p.users.GetByID(ctx, id)
		if err != nil {
			return nil, storeError(op, err)
		}
		if current.Nickname == nil || *current.Nickname != nickname {
			taken, err := p.users.NicknameTaken(ctx, nickname)
			if err != nil {
				return nil, storeError(op, err)
			}
			if taken {
				return nil, apperr.New(apperr.KindConflict, op, "nickname already exists")
			}
		}
	}
	u, err := p.users.UpdateProfile(ctx, id, upd)
	if err != nil {
		return nil, storeError(op, err)
	}
	prof := u.Profile()
	return &prof, nil
}

// CheckUsername reports whether username is free. Blank input is never
// available.
func (p *ProfileService) CheckUsername(ctx context.Context, username string) (bool, error) {
	return p.available(ctx, "check username", username, p.users.UsernameTaken)
}

// CheckNickname reports whether nickname is free. Blank input is never
// available.
func (p *ProfileService) CheckNickname(ctx context.Context, nickname string) (bool, error) {
	return p.available(ctx, "check nickname", nickname, p.users.NicknameTaken)
}

func (p *ProfileService) available(ctx context.Context, op, value string,
	taken func(context.Context, string) (bool, error)) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	t, err := taken(ctx, value)
	if err != nil {
		return false, storeError(op, err)
	}
	return !t, nil
}

func (p *ProfileService) publish(ctx context.Context, typ string, u *model.User) {
	if err := p.events.Publish(ctx, queue.NewAuthEvent(typ, u.ID, u.Username)); err != nil {
		p.log.Warn(ctx, "publish auth event failed", "type", typ, "err", err)
	}
}
