package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/stratboard/strategy-api/internal/auth"
	"github.com/stratboard/strategy-api/internal/config"
	"github.com/stratboard/strategy-api/internal/handler"
	"github.com/stratboard/strategy-api/internal/metrics"
	"github.com/stratboard/strategy-api/internal/middleware"
	"github.com/stratboard/strategy-api/internal/model"
	"github.com/stratboard/strategy-api/internal/repository"
)

// Register wires every route of the API onto the provided Echo instance.
// The /v1 group carries the general rate limit; the abuse-prone auth
// endpoints additionally carry their own much tighter budgets.
func Register(
	e *echo.Echo,
	rl config.RateLimitConfig,
	rdb *redis.Client,
	issuer *auth.Issuer,
	users *repository.UserRepo,
	a *handler.AuthHandler,
	s *handler.StrategyHandler,
) {
	// Ops endpoints stay outside the rate-limited group so probes and
	// scrapes never get throttled.
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", metrics.Handler())

	v1 := e.Group("/v1")
	v1.Use(middleware.RateLimit(rl, rl.General, "general", rdb))

	authn := middleware.Authenticate(issuer, users)

	// Unauthenticated auth operations.  Login, register and reset-request
	// carry tight per-IP budgets on top of the general limit.
	ag := v1.Group("/auth")
	ag.POST("/register", a.Register, middleware.RateLimit(rl, rl.Register, "register", rdb))
	ag.POST("/login", a.Login, middleware.RateLimit(rl, rl.Login, "login", rdb))
	ag.POST("/refresh", a.Refresh)
	ag.POST("/password/reset-request", a.RequestPasswordReset, middleware.RateLimit(rl, rl.Reset, "reset", rdb))
	// Logout works with or without a token; an attached user is only logged.
	ag.POST("/logout", a.Logout, middleware.OptionalAuthenticate(issuer, users))
	// Profile endpoints require a live session.
	ag.GET("/profile", a.Profile, authn)
	ag.PUT("/profile", a.UpdateProfile, authn)

	// Strategy reads are public; an optional token upgrades the view for
	// owners and admins.
	v1.GET("/strategies", s.List, middleware.OptionalAuthenticate(issuer, users))
	v1.GET("/strategies/:id", s.Get, middleware.OptionalAuthenticate(issuer, users))

	// Strategy writes require a session; status review is admin-only.
	v1.POST("/strategies", s.Create, authn, middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	v1.PUT("/strategies/:id", s.Update, authn, middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	v1.DELETE("/strategies/:id", s.Delete, authn, middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	v1.POST("/strategies/:id/submit", s.Submit, authn, middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	v1.PUT("/strategies/:id/status", s.UpdateStatus, authn, middleware.RequireRole(model.RoleAdmin))
}
