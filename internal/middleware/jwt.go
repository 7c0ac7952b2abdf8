package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-auth/internal/token"
)

// JWTAuth returns an Echo middleware that requires a valid access token and
// injects its claims into the request context. The token is read from the
// access_token cookie first and from an "Authorization: Bearer" header
// otherwise. Handlers read the user id back with UserID.
func JWTAuth(tokens *token.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := TokenFromRequest(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}
			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			// VerifyAccess guarantees a parseable subject.
			id, _ := claims.UserID()
			c.Set(ctxClaimsKey, claims)
			c.Set(ctxUserIDKey, id)
			return next(c)
		}
	}
}
