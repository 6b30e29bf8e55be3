package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/stratboard/strategy-api/internal/auth"
	"github.com/stratboard/strategy-api/internal/httpx"
	"github.com/stratboard/strategy-api/internal/model"
	"github.com/stratboard/strategy-api/internal/repository"
)

// Context keys set by Authenticate and read by handlers.
const (
	CtxUser   = "user"    // *model.User
	CtxUserID = "user_id" // uint64
	CtxRole   = "role"    // string
)

// Authenticate returns an Echo middleware that validates a Bearer access
// token, loads the account and attaches it to the request context.  The
// account is loaded on every request so a locked or soft-deleted user is
// rejected even while holding a still-valid token.
func Authenticate(issuer *auth.Issuer, users *repository.UserRepo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header is "Bearer <token>".  Anything else is NO_TOKEN.
			header := c.Request().Header.Get("Authorization")
			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authorization bearer token required")
			}

			claims, err := issuer.VerifyAccess(parts[1])
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeTokenExpired, "access token expired")
				}
				return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeInvalidToken, "invalid access token")
			}
			uid, err := claims.UserID()
			if err != nil {
				return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeInvalidToken, "invalid access token")
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, uid)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeUserNotFound, "user no longer exists")
				}
				logrus.WithError(err).Error("auth middleware: user lookup failed")
				return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
			}
			// Even with a valid token a locked account stays out.
			if u.Locked(time.Now().UTC()) {
				mins := int(u.LockRemaining(time.Now().UTC()).Minutes()) + 1
				return httpx.Fail(c, http.StatusLocked, httpx.CodeAccountLocked,
					fmt.Sprintf("account locked, try again in %d minutes", mins))
			}

			c.Set(CtxUser, u)
			c.Set(CtxUserID, u.ID)
			c.Set(CtxRole, u.Role)
			return next(c)
		}
	}
}

// RequireRole returns a middleware that enforces that the authenticated
// user's role is one of the allowed set.  It assumes Authenticate has run
// earlier in the chain.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || !allowed[role] {
				return httpx.Fail(c, http.StatusForbidden, httpx.CodeInsufficientRole, "insufficient permissions")
			}
			return next(c)
		}
	}
}

// OptionalAuthenticate attaches the account when a valid bearer token is
// present and otherwise lets the request through anonymously.  Public
// endpoints use it so admins browsing with a token get the richer view
// while guests are not challenged.
func OptionalAuthenticate(issuer *auth.Issuer, users *repository.UserRepo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return next(c)
			}
			claims, err := issuer.VerifyAccess(parts[1])
			if err != nil {
				return next(c)
			}
			uid, err := claims.UserID()
			if err != nil {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, uid)
			if err != nil || u.Locked(time.Now().UTC()) {
				return next(c)
			}
			c.Set(CtxUser, u)
			c.Set(CtxUserID, u.ID)
			c.Set(CtxRole, u.Role)
			return next(c)
		}
	}
}

// CurrentUser pulls the account attached by Authenticate out of the
// context.  The bool is false on unauthenticated routes.
func CurrentUser(c echo.Context) (*model.User, bool) {
	u, ok := c.Get(CtxUser).(*model.User)
	return u, ok
}
