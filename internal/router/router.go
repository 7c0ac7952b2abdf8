// Package router registers the HTTP routes and the global middleware.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/account-auth/internal/config"
	"github.com/iliyamo/account-auth/internal/handler"
	"github.com/iliyamo/account-auth/internal/middleware"
)

// New builds the Echo instance with recover, CORS, the request validator
// and every route.
func New(cfg config.Config, a *handler.AuthHandler, db *sql.DB, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	RegisterRoutes(e, db)
	RegisterAuth(e, cfg, a, rdb)
	return e
}

// RegisterRoutes registers routes outside /auth: the health check.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the /auth group. Profile routes require an access
// token; the availability checks go through the Redis response cache.
func RegisterAuth(e *echo.Echo, cfg config.Config, a *handler.AuthHandler, rdb *redis.Client) {
	g := e.Group("/auth")
	g.POST("/signup", a.Signup)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout works with an expired access token too, so it is not behind JWTAuth.
	g.POST("/logout", a.Logout)

	cache := middleware.NewRedisCache(cfg.Cache, rdb)
	g.GET("/check-username", a.CheckUsername, cache)
	g.GET("/check-nickname", a.CheckNickname, cache)

	jwt := middleware.JWTAuth(a.Tokens)
	g.GET("/profile", a.GetProfile, jwt)
	g.PATCH("/profile", a.UpdateProfile, jwt)
}
