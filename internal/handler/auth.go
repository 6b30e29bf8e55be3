package handler

import (
	"context"  // provides context with cancellation for DB calls
	"errors"   // sentinel error matching
	"fmt"      // lock message formatting
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // timeouts for DB calls and lock arithmetic

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/stratboard/strategy-api/internal/auth"
	"github.com/stratboard/strategy-api/internal/config"
	"github.com/stratboard/strategy-api/internal/httpx"
	"github.com/stratboard/strategy-api/internal/metrics"
	"github.com/stratboard/strategy-api/internal/middleware"
	"github.com/stratboard/strategy-api/internal/model"
	"github.com/stratboard/strategy-api/internal/repository"
	"github.com/stratboard/strategy-api/internal/validate"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Issuer *auth.Issuer
}

func NewAuthHandler(cfg config.Config, users *repository.UserRepo, issuer *auth.Issuer) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Issuer: issuer}
}

// ----- DTOs -----

type registerReq struct {
	FirstName       string `json:"first_name" validate:"required,personname"`
	LastName        string `json:"last_name" validate:"required,personname"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,strongpassword"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type profileReq struct {
	FirstName string `json:"first_name" validate:"required,personname"`
	LastName  string `json:"last_name" validate:"required,personname"`
}

type resetRequestReq struct {
	Email string `json:"email" validate:"required,email"`
}

// userView is the sanitized account representation.  Password hash and the
// token columns never leave the server.
type userView struct {
	ID            uint64     `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func viewOf(u *model.User) userView {
	v := userView{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
	if u.LastLoginAt.Valid {
		t := u.LastLoginAt.Time
		v.LastLoginAt = &t
	}
	return v
}

type authResp struct {
	User   userView       `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

// Register creates an account and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return httpx.FailDetails(c, http.StatusBadRequest, httpx.CodeValidation, "validation failed", validate.Describe(err))
	}

	hash, err := auth.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		logrus.WithError(err).Error("register: password hash failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}

	u := &model.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	u.VerificationToken.String = uuid.NewString()
	u.VerificationToken.Valid = true

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return httpx.Fail(c, http.StatusConflict, httpx.CodeUserExists, "an account with this email already exists")
		}
		logrus.WithError(err).Error("register: insert failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}

	pair, err := h.Issuer.IssuePair(u)
	if err != nil {
		logrus.WithError(err).Error("register: token issue failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	return httpx.OK(c, http.StatusCreated, authResp{User: viewOf(u), Tokens: pair})
}

// Login verifies credentials under the lockout policy and returns a token
// pair.  An unknown email and a wrong password answer identically so the
// endpoint does not reveal which accounts exist.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "email and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			metrics.LoginFailures.WithLabelValues("invalid_credentials").Inc()
			return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeInvalidCredentials, "invalid email or password")
		}
		logrus.WithError(err).Error("login: user lookup failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}

	now := time.Now().UTC()
	if u.Locked(now) {
		mins := int(u.LockRemaining(now).Minutes()) + 1
		metrics.LoginFailures.WithLabelValues("locked").Inc()
		return httpx.Fail(c, http.StatusLocked, httpx.CodeAccountLocked,
			fmt.Sprintf("account locked, try again in %d minutes", mins))
	}

	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		attempts := u.FailedAttempts + 1
		var lockedUntil *time.Time
		if attempts >= h.Cfg.LockoutThreshold {
			t := now.Add(h.Cfg.LockoutDuration)
			lockedUntil = &t
			// The counter restarts once the lock is set.
			attempts = 0
		}
		if err := h.Users.RecordFailure(ctx, u.ID, attempts, lockedUntil); err != nil {
			logrus.WithError(err).WithField("user_id", u.ID).Error("login: failed to record attempt")
		}
		metrics.LoginFailures.WithLabelValues("invalid_credentials").Inc()
		// The attempt that trips the lock still answers 401; the lock is
		// enforced from the next attempt on.
		remaining := h.Cfg.LockoutThreshold - attempts
		if lockedUntil != nil {
			remaining = 0
		}
		return httpx.FailDetails(c, http.StatusUnauthorized, httpx.CodeInvalidCredentials,
			"invalid email or password", echo.Map{"attempts_remaining": remaining})
	}

	if err := h.Users.RecordSuccess(ctx, u.ID, now); err != nil {
		logrus.WithError(err).WithField("user_id", u.ID).Error("login: failed to record success")
	}
	u.FailedAttempts = 0
	u.LockedUntil.Valid = false
	u.LastLoginAt.Time, u.LastLoginAt.Valid = now, true

	pair, err := h.Issuer.IssuePair(u)
	if err != nil {
		logrus.WithError(err).Error("login: token issue failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	return httpx.OK(c, http.StatusOK, authResp{User: viewOf(u), Tokens: pair})
}

// Refresh exchanges a valid refresh token for a fresh pair.  The presented
// refresh token is not rotated or revoked; it stays usable until its own
// expiry.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeRefreshRequired, "refresh_token is required")
	}

	claims, err := h.Issuer.VerifyRefresh(strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeInvalidRefresh, "invalid or expired refresh token")
	}
	uid, err := claims.UserID()
	if err != nil {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeInvalidRefresh, "invalid or expired refresh token")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeUserNotFound, "user no longer exists")
		}
		logrus.WithError(err).Error("refresh: user lookup failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}

	pair, err := h.Issuer.IssuePair(u)
	if err != nil {
		logrus.WithError(err).Error("refresh: token issue failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	return httpx.OK(c, http.StatusOK, authResp{User: viewOf(u), Tokens: pair})
}

// Profile returns the authenticated account.
func (h *AuthHandler) Profile(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
	}
	return httpx.OK(c, http.StatusOK, viewOf(u))
}

// UpdateProfile changes the account's names.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := validate.Struct(req); err != nil {
		return httpx.FailDetails(c, http.StatusBadRequest, httpx.CodeValidation, "validation failed", validate.Describe(err))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.UpdateProfile(ctx, u.ID, req.FirstName, req.LastName); err != nil {
		logrus.WithError(err).WithField("user_id", u.ID).Error("profile update failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	u.FirstName = req.FirstName
	u.LastName = req.LastName
	return httpx.OK(c, http.StatusOK, viewOf(u))
}

// RequestPasswordReset stores a reset token hash for the account if it
// exists.  The response is the same either way so the endpoint cannot be
// used to probe for registered emails.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	const reply = "if an account exists for this email, a reset link has been sent"

	var req resetRequestReq
	if err := c.Bind(&req); err != nil {
		return httpx.Msg(c, http.StatusOK, reply)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if validate.Struct(req) != nil {
		return httpx.Msg(c, http.StatusOK, reply)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			logrus.WithError(err).Error("reset request: user lookup failed")
		}
		return httpx.Msg(c, http.StatusOK, reply)
	}

	raw := uuid.NewString()
	expires := time.Now().UTC().Add(time.Hour)
	if err := h.Users.SetResetToken(ctx, u.ID, auth.HashResetToken(raw), expires); err != nil {
		logrus.WithError(err).WithField("user_id", u.ID).Error("reset request: token store failed")
		return httpx.Msg(c, http.StatusOK, reply)
	}
	// Mail delivery is outside this service; the token is handed to the
	// mailer pipeline via logs in dev.
	if h.Cfg.Env == "dev" {
		logrus.WithField("user_id", u.ID).WithField("reset_token", raw).Debug("password reset token issued")
	}
	return httpx.Msg(c, http.StatusOK, reply)
}

// Logout always succeeds.  Tokens are stateless bearer credentials with no
// server-side revocation list, so logging out is the client discarding its
// pair.
func (h *AuthHandler) Logout(c echo.Context) error {
	if u, ok := middleware.CurrentUser(c); ok {
		logrus.WithField("user_id", u.ID).Debug("user logged out")
	}
	return httpx.Msg(c, http.StatusOK, "logged out")
}
