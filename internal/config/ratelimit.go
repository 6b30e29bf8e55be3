package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitRule describes one sliding-window limit: at most Limit requests
// per client within Window.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the per-route-class limits.  General applies to the
// whole API surface; the remaining rules guard the abuse-prone auth
// endpoints with much tighter budgets.  Keys are always derived from the
// client IP.
type RateLimitConfig struct {
	Enabled  bool
	Prefix   string
	Debug    bool
	General  RateLimitRule
	Login    RateLimitRule
	Register RateLimitRule
	Reset    RateLimitRule
}

func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:  envBool("RATE_LIMIT_ENABLED", true),
		Prefix:   envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:    envBool("RATE_LIMIT_DEBUG", false),
		General:  rule("RATE_LIMIT_GENERAL", 100, 15*time.Minute),
		Login:    rule("RATE_LIMIT_LOGIN", 5, 15*time.Minute),
		Register: rule("RATE_LIMIT_REGISTER", 3, time.Hour),
		Reset:    rule("RATE_LIMIT_RESET", 3, time.Hour),
	}
}

// rule reads <prefix>_LIMIT and <prefix>_WINDOW, falling back to the given
// defaults and clamping nonsensical values.
func rule(prefix string, limit int, window time.Duration) RateLimitRule {
	r := RateLimitRule{
		Limit:  envInt(prefix+"_LIMIT", limit),
		Window: envDur(prefix+"_WINDOW", window),
	}
	if r.Limit < 1 {
		r.Limit = 1
	}
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	return r
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
