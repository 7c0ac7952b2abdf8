package model

import "time"

// User represents an account record as stored in the `users` table. It is
// the internal shape used by the repository and service layers; responses
// are built from PublicUser or Profile so that the password hash and the
// refresh slot never leave the process.
//
// Fields:
//
//	ID                    – primary key identifier of the user.
//	Username              – unique login identifier.
//	Email                 – unique email address, nil for signup accounts.
//	PasswordHash          – bcrypt hash of the password.
//	Nickname              – display name, unique at the application layer.
//	ProfileImageURL       – avatar reference.
//	Bio                   – free-form introduction.
//	RefreshToken          – the single valid refresh token, nil when logged out.
//	RefreshTokenExpiresAt – expiry of RefreshToken.
//	CreatedAt / UpdatedAt – row timestamps.
type User struct {
	ID                    int64      // users.id
	Username              string     // users.username
	Email                 *string    // users.email (nullable)
	PasswordHash          string     // users.password
	Nickname              *string    // users.nickname (nullable)
	ProfileImageURL       *string    // users.profile_image_url (nullable)
	Bio                   *string    // users.bio (nullable)
	RefreshToken          *string    // users.refresh_token (nullable)
	RefreshTokenExpiresAt *time.Time // users.refresh_token_expires_at (nullable)
	CreatedAt             time.Time  // users.created_at
	UpdatedAt             time.Time  // users.updated_at
}

// Sanitized returns a copy of u without the password hash.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// HasRefreshSlot reports whether a refresh token is currently stored.
func (u User) HasRefreshSlot() bool {
	return u.RefreshToken != nil && *u.RefreshToken != ""
}

// PublicUser is the projection returned alongside issued tokens. It never
// contains the password or the refresh slot.
type PublicUser struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Nickname        *string   `json:"nickname"`
	ProfileImageURL *string   `json:"profileImageUrl"`
	Email           *string   `json:"email"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Public builds the PublicUser projection of u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Username:        u.Username,
		Nickname:        u.Nickname,
		ProfileImageURL: u.ProfileImageURL,
		Email:           u.Email,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// Profile is the projection served by the profile endpoints.
type Profile struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Nickname        *string   `json:"nickname"`
	ProfileImageURL *string   `json:"profileImageUrl"`
	Bio             *string   `json:"bio"`
	Email           *string   `json:"email"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Profile builds the Profile projection of u.
func (u User) Profile() Profile {
	return Profile{
		ID:              u.ID,
		Username:        u.Username,
		Nickname:        u.Nickname,
		ProfileImageURL: u.ProfileImageURL,
		Bio:             u.Bio,
		Email:           u.Email,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// ProfileUpdate lists the profile fields a user may change. A nil field is
// left untouched; ClearImage / ClearBio reset the column to NULL.
type ProfileUpdate struct {
	Nickname        *string
	ProfileImageURL *string
	ClearImage      bool
	Bio             *string
	ClearBio        bool
}

// Empty reports whether the update would change nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Nickname == nil && p.ProfileImageURL == nil && p.Bio == nil && !p.ClearImage && !p.ClearBio
}
