package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-auth/internal/config"
	"github.com/iliyamo/account-auth/internal/logging"
	"github.com/iliyamo/account-auth/internal/middleware"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/service"
	"github.com/iliyamo/account-auth/internal/token"
)

// AuthHandler bundles dependencies for the /auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Sessions *service.SessionManager
	Profiles *service.ProfileService
	Tokens   *token.Issuer
	Log      logging.Logger
}

func NewAuthHandler(cfg config.Config, sessions *service.SessionManager, profiles *service.ProfileService,
	tokens *token.Issuer, log logging.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Sessions: sessions, Profiles: profiles, Tokens: tokens, Log: log}
}

// ----- DTOs -----

type signupReq struct {
	ID              string  `json:"id" validate:"required,min=3,handle"`
	Password        string  `json:"password" validate:"required,min=6"`
	Nickname        string  `json:"nickname" validate:"required,min=2"`
	ProfileImageURL *string `json:"profileImageUrl" validate:"omitempty,url"`
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginReq struct {
	ID       string `json:"id" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// updateProfileReq: an empty profileImageUrl or bio clears the field. A
// nickname that is blank after trimming fails the min rule.
type updateProfileReq struct {
	Nickname        *string `json:"nickname" validate:"omitempty,min=2,max=20"`
	ProfileImageURL *string `json:"profileImageUrl" validate:"omitempty,url"`
	Bio             *string `json:"bio" validate:"omitempty,max=150"`
}

func (r *signupReq) normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Nickname = strings.TrimSpace(r.Nickname)
	if r.ProfileImageURL != nil {
		trimmed := strings.TrimSpace(*r.ProfileImageURL)
		r.ProfileImageURL = &trimmed
		if trimmed == "" {
			r.ProfileImageURL = nil
		}
	}
}

func (r *registerReq) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
}

func (r *loginReq) normalize() {
	r.ID = strings.TrimSpace(r.ID)
}

func (r *updateProfileReq) normalize() {
	if r.Nickname != nil {
		trimmed := strings.TrimSpace(*r.Nickname)
		r.Nickname = &trimmed
	}
}

type loginResp struct {
	User         model.PublicUser `json:"user"`
	AccessToken  string           `json:"access_token,omitempty"`
	RefreshToken string           `json:"refresh_token,omitempty"`
}

type registerResp struct {
	AccessToken string           `json:"access_token"`
	User        model.PublicUser `json:"user"`
}

func (h *AuthHandler) bodyDelivery() bool {
	return h.Cfg.TokenDelivery == config.DeliveryBody
}

func dbContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// normalizer is implemented by request DTOs whose fields are trimmed
// before validation, so length rules see the value that gets stored.
type normalizer interface {
	normalize()
}

// decode binds, normalizes and validates the request body into req. It
// returns the client message of the first problem, or "".
func decode(c echo.Context, req any) string {
	if err := c.Bind(req); err != nil {
		return "invalid body"
	}
	if n, ok := req.(normalizer); ok {
		n.normalize()
	}
	if err := c.Validate(req); err != nil {
		return err.Error()
	}
	return ""
}

// Signup creates a nickname account and answers with a bare true.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if msg := decode(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.Profiles.Signup(ctx, service.SignupInput{
		ID:              req.ID,
		Password:        req.Password,
		Nickname:        req.Nickname,
		ProfileImageURL: req.ProfileImageURL,
	}); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, true)
}

// Register creates an email account and returns an access token for it.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if msg := decode(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := h.Profiles.Register(ctx, service.RegisterInput{Email: req.Email, Username: req.Username, Password: req.Password})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, registerResp{AccessToken: res.AccessToken, User: res.User})
}

// Login verifies credentials and hands out the token pair as cookies, and
// in the body too when TOKEN_DELIVERY=body.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if msg := decode(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := h.Sessions.Login(ctx, req.ID, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	h.setTokenCookie(c, middleware.AccessCookie, res.AccessToken, h.Tokens.AccessTTL())
	h.setTokenCookie(c, middleware.RefreshCookie, res.RefreshToken, h.Tokens.RefreshTTL())

	resp := loginResp{User: res.User}
	if h.bodyDelivery() {
		resp.AccessToken = res.AccessToken
		resp.RefreshToken = res.RefreshToken
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh issues a new access token for the refresh token in the
// refresh_token cookie, or in the JSON body when no cookie is sent.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := h.refreshTokenFrom(c)
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := h.Sessions.Refresh(ctx, raw)
	if err != nil {
		return h.fail(c, err)
	}
	h.setTokenCookie(c, middleware.AccessCookie, res.AccessToken, h.Tokens.AccessTTL())

	body := echo.Map{"message": "access token refreshed"}
	if h.bodyDelivery() {
		body["access_token"] = res.AccessToken
	}
	return c.JSON(http.StatusOK, body)
}

// Logout ends the session named by a valid access token or, failing that,
// by the refresh token. It always succeeds and always clears both cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req service.LogoutRequest
	if raw := middleware.TokenFromRequest(c); raw != "" {
		if claims, err := h.Tokens.VerifyAccess(raw); err == nil {
			req.UserID, _ = claims.UserID()
		}
	}
	if req.UserID == 0 {
		req.RefreshToken = h.refreshTokenFrom(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	h.Sessions.Logout(ctx, req)
	h.clearTokenCookie(c, middleware.AccessCookie)
	h.clearTokenCookie(c, middleware.RefreshCookie)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// GetProfile returns the caller's profile. Requires JWTAuth.
func (h *AuthHandler) GetProfile(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	prof, err := h.Profiles.GetProfile(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, prof)
}

// UpdateProfile changes nickname, avatar or bio of the caller. Requires JWTAuth.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.normalize()

	// An empty avatar or bio clears the field and skips the url rule.
	var upd model.ProfileUpdate
	if req.ProfileImageURL != nil && *req.ProfileImageURL == "" {
		upd.ClearImage = true
		req.ProfileImageURL = nil
	}
	if req.Bio != nil && *req.Bio == "" {
		upd.ClearBio = true
		req.Bio = nil
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	upd.Nickname = req.Nickname
	upd.ProfileImageURL = req.ProfileImageURL
	upd.Bio = req.Bio

	ctx, cancel := dbContext(c)
	defer cancel()

	prof, err := h.Profiles.UpdateProfile(ctx, id, upd)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, prof)
}

// CheckUsername answers whether ?username= is free.
func (h *AuthHandler) CheckUsername(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	ok, err := h.Profiles.CheckUsername(ctx, c.QueryParam("username"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"available": ok})
}

// CheckNickname answers whether ?nickname= is free.
func (h *AuthHandler) CheckNickname(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	ok, err := h.Profiles.CheckNickname(ctx, c.QueryParam("nickname"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"available": ok})
}

func (h *AuthHandler) refreshTokenFrom(c echo.Context) string {
	if ck, err := c.Cookie(middleware.RefreshCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	var req refreshReq
	_ = c.Bind(&req)
	return strings.TrimSpace(req.RefreshToken)
}
