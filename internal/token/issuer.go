// Package token mints and verifies the HS256 JWTs the service hands out.
//
// Access tokens are stateless and carry the identity claims the gatekeeper
// needs. Refresh tokens carry only the subject and a "refresh" type marker;
// whether one is still usable is decided by the session layer, which
// compares it to the value stored on the user row.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RefreshType is the value of the "type" claim on refresh tokens.
const RefreshType = "refresh"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures and foreign
	// signing algorithms.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidTokenKind is returned when a token of one kind is presented
	// where the other kind is expected.
	ErrInvalidTokenKind = errors.New("invalid token kind")
)

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
	Type     string  `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (int64, error) {
	return parseSubject(c.Subject)
}

// RefreshClaims is the claim set of a refresh token.
type RefreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *RefreshClaims) UserID() (int64, error) {
	return parseSubject(c.Subject)
}

// Identity is what an access token asserts about its bearer.
type Identity struct {
	UserID   int64
	Username string
	Email    *string
}

// Options configures an Issuer. RefreshSecret may equal AccessSecret.
type Options struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Issuer signs and verifies access and refresh tokens.
type Issuer struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates opts and returns an Issuer.
func NewIssuer(opts Options) (*Issuer, error) {
	if opts.AccessSecret == "" {
		return nil, errors.New("token: access secret is required")
	}
	if opts.RefreshSecret == "" {
		opts.RefreshSecret = opts.AccessSecret
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		accessKey:  []byte(opts.AccessSecret),
		refreshKey: []byte(opts.RefreshSecret),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess signs an access token for id.
func (i *Issuer) IssueAccess(id Identity) (string, error) {
	now := i.now().UTC()
	claims := AccessClaims{
		Username: id.Username,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefresh signs a refresh token for userID and returns it together with
// the expiry to persist next to it.
func (i *Issuer) IssueRefresh(userID int64) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.refreshTTL)
	claims := RefreshClaims{
		Type: RefreshType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

// RefreshExpiry returns the absolute expiry of a refresh token issued now.
func (i *Issuer) RefreshExpiry() time.Time {
	return i.now().UTC().Add(i.refreshTTL)
}

// VerifyRefresh checks signature and expiry of raw and requires the
// refresh type marker, so access tokens cannot be replayed as refresh tokens.
func (i *Issuer) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(raw, claims, i.refreshKey); err != nil {
		return nil, err
	}
	if claims.Type != RefreshType {
		return nil, ErrInvalidTokenKind
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess checks signature and expiry of raw and rejects refresh
// tokens.
func (i *Issuer) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(raw, claims, i.accessKey); err != nil {
		return nil, err
	}
	if claims.Type != "" {
		return nil, ErrInvalidTokenKind
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(raw string, claims jwt.Claims, key []byte) error {
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}

func parseSubject(sub string) (int64, error) {
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", sub)
	}
	return id, nil
}
