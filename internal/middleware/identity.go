package middleware

// identity.go holds the cookie names and the helpers that move the
// authenticated identity between the gatekeeper and the handlers.

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-auth/internal/token"
)

// Cookie names carrying the tokens.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

const (
	ctxClaimsKey = "claims"
	ctxUserIDKey = "user_id"
)

// TokenFromRequest returns the raw access token of the request, preferring
// the access_token cookie over the Authorization header. It returns "" when
// neither is present.
func TokenFromRequest(c echo.Context) string {
	if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// UserID returns the id stored by JWTAuth.
func UserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxUserIDKey).(int64)
	return id, ok && id > 0
}

// claimsFrom returns the access token claims stored by JWTAuth, or nil.
func claimsFrom(c echo.Context) *token.AccessClaims {
	cl, _ := c.Get(ctxClaimsKey).(*token.AccessClaims)
	return cl
}
