package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/utils"
)

const userColumns = "id, username, email, password, nickname, profile_image_url, bio, " +
	"refresh_token, refresh_token_expires_at, created_at, updated_at"

// NewUser is the input of UserRepo.Create. Password is plain text; the
// repository stores only its bcrypt hash.
type NewUser struct {
	Username        string
	Email           *string
	Password        string
	Nickname        *string
	ProfileImageURL *string
}

// UserRepo persists the users table, including the single refresh slot
// (refresh_token + refresh_token_expires_at) of each user.
type UserRepo struct {
	DB      *sql.DB
	Dialect Dialect
	now     func() time.Time
}

func NewUserRepo(db *sql.DB, dialect Dialect) *UserRepo {
	return &UserRepo{DB: db, Dialect: dialect, now: time.Now}
}

// Create hashes the password, inserts the user and returns the stored row.
func (r *UserRepo) Create(ctx context.Context, u NewUser, cost int) (*model.User, error) {
	username := strings.TrimSpace(u.Username)
	hash, err := utils.HashPassword(u.Password, cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := r.now().UTC()
	args := []any{username, u.Email, hash, u.Nickname, u.ProfileImageURL, now, now}
	query := "INSERT INTO users (username, email, password, nickname, profile_image_url, created_at, updated_at) " +
		"VALUES (?,?,?,?,?,?,?)"

	var id int64
	if r.Dialect == Postgres {
		err = r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query+" RETURNING id"), args...).Scan(&id)
	} else {
		var res sql.Result
		res, err = r.DB.ExecContext(ctx, query, args...)
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches the full row, refresh slot included. The result is for
// internal session checks only.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "id", id)
}

// GetByUsername fetches a user by its login identifier.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "username", strings.TrimSpace(username))
}

// GetByNickname fetches a user by nickname.
func (r *UserRepo) GetByNickname(ctx context.Context, nickname string) (*model.User, error) {
	return r.getOne(ctx, "nickname", strings.TrimSpace(nickname))
}

// UsernameTaken reports whether a user with the username exists.
func (r *UserRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", strings.TrimSpace(username))
}

// EmailTaken reports whether a user with the email exists.
func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", strings.TrimSpace(email))
}

// NicknameTaken reports whether a user with the nickname exists.
func (r *UserRepo) NicknameTaken(ctx context.Context, nickname string) (bool, error) {
	return r.exists(ctx, "nickname", strings.TrimSpace(nickname))
}

// UpdateProfile applies the non-nil fields of upd and returns the new row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.User, error) {
	if upd.Empty() {
		return r.GetByID(ctx, id)
	}
	var (
		sets []string
		args []any
	)
	if upd.Nickname != nil {
		sets = append(sets, "nickname = ?")
		args = append(args, strings.TrimSpace(*upd.Nickname))
	}
	switch {
	case upd.ClearImage:
		sets = append(sets, "profile_image_url = NULL")
	case upd.ProfileImageURL != nil:
		sets = append(sets, "profile_image_url = ?")
		args = append(args, *upd.ProfileImageURL)
	}
	switch {
	case upd.ClearBio:
		sets = append(sets, "bio = NULL")
	case upd.Bio != nil:
		sets = append(sets, "bio = ?")
		args = append(args, *upd.Bio)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC(), id)

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query), args...)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := r.ensureAffected(ctx, res, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// SetRefreshToken overwrites the refresh slot of a user in a single-row
// update. Passing nil for both clears the slot. Concurrent writers are not
// serialized here; the last committed write wins.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id int64, token *string, expiresAt *time.Time) error {
	var exp any
	if expiresAt != nil {
		exp = expiresAt.UTC()
	}
	res, err := r.DB.ExecContext(ctx,
		r.Dialect.Rebind("UPDATE users SET refresh_token = ?, refresh_token_expires_at = ?, updated_at = ? WHERE id = ?"),
		token, exp, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.ensureAffected(ctx, res, id)
}

// ensureAffected turns a zero-row update into ErrNotFound. MySQL reports
// zero affected rows when the values did not change, so the row is probed
// before giving up.
func (r *UserRepo) ensureAffected(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n > 0 {
		return nil
	}
	found, err := r.exists(ctx, "id", id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, column string, value any) (*model.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + column + " = ? LIMIT 1"
	u, err := scanUser(r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *UserRepo) exists(ctx context.Context, column string, value any) (bool, error) {
	var one int
	query := "SELECT 1 FROM users WHERE " + column + " = ? LIMIT 1"
	err := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), value).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u          model.User
		email      sql.NullString
		nickname   sql.NullString
		image      sql.NullString
		bio        sql.NullString
		refresh    sql.NullString
		refreshExp sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &nickname, &image, &bio,
		&refresh, &refreshExp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Email = nullString(email)
	u.Nickname = nullString(nickname)
	u.ProfileImageURL = nullString(image)
	u.Bio = nullString(bio)
	u.RefreshToken = nullString(refresh)
	if refreshExp.Valid {
		t := refreshExp.Time.UTC()
		u.RefreshTokenExpiresAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
