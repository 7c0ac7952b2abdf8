package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/queue"
	"github.com/iliyamo/account-auth/internal/repository"
	"github.com/iliyamo/account-auth/internal/token"
	"github.com/iliyamo/account-auth/internal/utils"
)

// memStore is an in-memory UserStore with failure injection.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*model.User
	setCalls int
	setErr   error
	getErr   error
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*model.User{}}
}

func (m *memStore) Create(_ context.Context, u repository.NewUser, cost int) (*model.User, error) {
	hash, err := utils.HashPassword(u.Password, cost)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		switch {
		case existing.Username == u.Username:
			return nil, repository.ErrUsernameExists
		case u.Email != nil && existing.Email != nil && *existing.Email == *u.Email:
			return nil, repository.ErrEmailExists
		case u.Nickname != nil && existing.Nickname != nil && *existing.Nickname == *u.Nickname:
			return nil, repository.ErrNicknameExists
		}
	}
	m.nextID++
	now := time.Now().UTC()
	row := &model.User{
		ID:              m.nextID,
		Username:        u.Username,
		Email:           u.Email,
		PasswordHash:    hash,
		Nickname:        u.Nickname,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.users[row.ID] = row
	cp := *row
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) find(match func(*model.User) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return true
		}
	}
	return false
}

func (m *memStore) UsernameTaken(_ context.Context, username string) (bool, error) {
	return m.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (m *memStore) EmailTaken(_ context.Context, email string) (bool, error) {
	return m.find(func(u *model.User) bool { return u.Email != nil && *u.Email == email }), nil
}

func (m *memStore) NicknameTaken(_ context.Context, nickname string) (bool, error) {
	return m.find(func(u *model.User) bool { return u.Nickname != nil && *u.Nickname == nickname }), nil
}

func (m *memStore) UpdateProfile(_ context.Context, id int64, upd model.ProfileUpdate) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Nickname != nil {
		u.Nickname = upd.Nickname
	}
	switch {
	case upd.ClearImage:
		u.ProfileImageURL = nil
	case upd.ProfileImageURL != nil:
		u.ProfileImageURL = upd.ProfileImageURL
	}
	switch {
	case upd.ClearBio:
		u.Bio = nil
	case upd.Bio != nil:
		u.Bio = upd.Bio
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SetRefreshToken(_ context.Context, id int64, tok *string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.RefreshToken = tok
	u.RefreshTokenExpiresAt = expiresAt
	return nil
}

func (m *memStore) slot(id int64) (*string, *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	return u.RefreshToken, u.RefreshTokenExpiresAt
}

func (m *memStore) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls
}

// recorder collects published auth events.
type recorder struct {
	mu     sync.Mutex
	events []queue.AuthEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev queue.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer(token.Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return iss
}

func seedUser(t *testing.T, store *memStore, username, password string) *model.User {
	t.Helper()
	email := strings.ToLower(username) + "@example.com"
	u, err := store.Create(context.Background(), repository.NewUser{
		Username: username,
		Email:    &email,
		Password: password,
	}, bcrypt.MinCost)
	require.NoError(t, err)
	return u
}
