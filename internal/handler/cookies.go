package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// setTokenCookie writes an HttpOnly token cookie. Production cookies are
// Secure and SameSite=None so a separately hosted frontend can send them;
// elsewhere they are SameSite=Lax over plain HTTP.
func (h *AuthHandler) setTokenCookie(c echo.Context, name, value string, maxAge time.Duration) {
	c.SetCookie(h.tokenCookie(name, value, int(maxAge/time.Second)))
}

// clearTokenCookie expires the cookie with the attributes it was set with.
func (h *AuthHandler) clearTokenCookie(c echo.Context, name string) {
	ck := h.tokenCookie(name, "", -1)
	ck.Expires = time.Unix(0, 0)
	c.SetCookie(ck)
}

func (h *AuthHandler) tokenCookie(name, value string, maxAge int) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if h.Cfg.IsProduction() {
		ck.Secure = true
		ck.SameSite = http.SameSiteNoneMode
	}
	return ck
}
