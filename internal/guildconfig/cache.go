package guildconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predeactor/captchad/internal/domain"
)

const defaultCacheTTL = time.Minute

type CacheConfig struct {
	Store  Store
	Redis  redis.UniversalClient
	Prefix string
	// TTL bounds cache staleness. Zero means defaultCacheTTL.
	TTL time.Duration
}

// CachedStore is a read-through cache in front of another store. A cache
// failure never fails the read; the inner store stays authoritative.
type CachedStore struct {
	store  Store
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCachedStore(c CacheConfig) *CachedStore {
	ttl := c.TTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
	}
}

func (s *CachedStore) Read(ctx context.Context, guild domain.GuildID) (domain.GuildConfig, error) {
	key := s.key(guild)

	if raw, err := s.redis.Get(ctx, key).Bytes(); err == nil {
		var c domain.GuildConfig
		if err := json.Unmarshal(raw, &c); err == nil {
			return c, nil
		}
		slog.DebugContext(ctx, "guildconfig: dropping undecodable cache entry", "key", key)
	}

	c, err := s.store.Read(ctx, guild)
	if err != nil {
		return domain.GuildConfig{}, err
	}

	if raw, err := json.Marshal(c); err == nil {
		if err := s.redis.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			slog.DebugContext(ctx, "guildconfig: cache write failed", "key", key, "error", err)
		}
	}

	return c, nil
}

// Invalidate drops the cached entry for a guild, typically after the
// configuration surface rewrites the row.
func (s *CachedStore) Invalidate(ctx context.Context, guild domain.GuildID) error {
	return s.redis.Del(ctx, s.key(guild)).Err()
}

func (s *CachedStore) key(guild domain.GuildID) string {
	return fmt.Sprintf("%s:%s:config", s.prefix, guild)
}
