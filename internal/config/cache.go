package config

import "time"

// CacheConfig defines settings for the strategy read-through cache.  When
// Enabled is false or no Redis client is configured, caching is disabled and
// every read goes to the database.  TTL bounds how long a stale entry can
// survive a missed invalidation.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 5*time.Minute),
		Prefix:  envStr("CACHE_PREFIX", "strategies"),
	}
}
