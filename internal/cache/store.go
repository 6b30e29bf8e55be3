// Package cache implements a best-effort read-through cache for strategy
// queries on top of Redis.  Values are JSON-encoded and carry a TTL;
// invalidation bumps a namespace version instead of scanning for keys, so a
// write invalidates every list/detail entry with a single INCR.  All Redis
// failures degrade to a cache miss; the request itself never fails because
// of the cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stratboard/strategy-api/internal/config"
)

// Store is the strategy cache.  A nil client disables it entirely.
type Store struct {
	rdb *redis.Client
	cfg config.CacheConfig
}

func NewStore(cfg config.CacheConfig, rdb *redis.Client) *Store {
	return &Store{rdb: rdb, cfg: cfg}
}

// Enabled reports whether reads should consult Redis at all.
func (s *Store) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.rdb != nil
}

// key prepends the prefix and the current namespace version.  Reading the
// version costs one round trip; a missing version key means version 0.
func (s *Store) key(ctx context.Context, suffix string) (string, error) {
	ver, err := s.rdb.Get(ctx, s.cfg.Prefix+":ver").Result()
	if err != nil {
		if err != redis.Nil {
			return "", err
		}
		ver = "0"
	}
	return fmt.Sprintf("%s:v%s:%s", s.cfg.Prefix, ver, suffix), nil
}

// Get unmarshals the cached value for suffix into dest.  The bool result is
// true only on a clean hit.
func (s *Store) Get(ctx context.Context, suffix string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	k, err := s.key(ctx, suffix)
	if err != nil {
		return false
	}
	raw, err := s.rdb.Get(ctx, k).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		_ = s.rdb.Del(ctx, k).Err()
		return false
	}
	return true
}

// Set stores value under suffix with the configured TTL.
func (s *Store) Set(ctx context.Context, suffix string, value interface{}) {
	if !s.Enabled() {
		return
	}
	k, err := s.key(ctx, suffix)
	if err != nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, k, raw, s.cfg.TTL).Err(); err != nil {
		logrus.WithError(err).Debug("cache set failed")
	}
}

// Invalidate bumps the namespace version, orphaning every existing entry.
// Orphans expire on their own TTL.  Invalidation is not transactional with
// the database write: a crash in between leaves stale entries until TTL
// expiry.
func (s *Store) Invalidate(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.rdb.Incr(ctx, s.cfg.Prefix+":ver").Err(); err != nil {
		logrus.WithError(err).Warn("cache invalidation failed; stale entries until TTL")
	}
}
