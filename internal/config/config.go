package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Two separate JWT secrets are required so that a
// leaked access-token key cannot be used to forge refresh tokens (and vice
// versa).
type Config struct {
	Env              string        // application environment (e.g. "dev", "prod")
	Port             string        // HTTP port to listen on
	DBUser           string        // database username
	DBPass           string        // database password (optional)
	DBHost           string        // database host address
	DBPort           string        // database port number
	DBName           string        // database name
	DBMaxOpenConns   int           // connection pool cap
	DBMaxIdleConns   int           // idle connections kept in the pool
	DBConnLifetime   time.Duration // recycle age for pooled connections
	DBPingTimeout    time.Duration // startup connectivity check timeout
	AccessSecret     string        // secret used to sign access tokens
	RefreshSecret    string        // secret used to sign refresh tokens
	JWTIssuer        string        // iss claim stamped on and required from every token
	JWTAudience      string        // aud claim stamped on and required from every token
	AccessTTL        time.Duration // access token time-to-live
	RefreshTTL       time.Duration // refresh token time-to-live
	BcryptCost       int           // bcrypt cost for password hashing
	LockoutThreshold int           // failed logins before the account is locked
	LockoutDuration  time.Duration // how long a triggered lock lasts
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Tunables with safe
// defaults use the env* helpers shared with ratelimit.go.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty password allowed
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		DBMaxOpenConns:   envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:   envInt("DB_MAX_IDLE_CONNS", 25),
		DBConnLifetime:   envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		DBPingTimeout:    envDur("DB_PING_TIMEOUT", 5*time.Second),
		AccessSecret:     must("JWT_ACCESS_SECRET"),
		RefreshSecret:    must("JWT_REFRESH_SECRET"),
		JWTIssuer:        envStr("JWT_ISSUER", "strategy-api"),
		JWTAudience:      envStr("JWT_AUDIENCE", "strategy-clients"),
		AccessTTL:        envDur("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTTL:       envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:       envInt("BCRYPT_COST", 12),
		LockoutThreshold: envInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  envDur("LOCKOUT_DURATION", 30*time.Minute),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
