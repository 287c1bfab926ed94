package guildconfig_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
	"github.com/predeactor/captchad/internal/guildconfig"
)

func TestCachedStore_Read(t *testing.T) {
	inner := guildconfig.NewStatic(domain.GuildConfig{
		Guild:     "g1",
		Channel:   "verify",
		Enabled:   true,
		Variant:   domain.VariantPlain,
		Timeout:   5 * time.Minute,
		Autoroles: []domain.RoleID{"member"},
		TempRole:  "unverified",
		Retries:   3,
	})

	s, _ := makeCachedStore(t, inner)

	got, err := s.Read(context.Background(), "g1")
	require.NoError(t, err)
	require.Equal(t, "verify", got.Channel)
	require.Equal(t, 5*time.Minute, got.Timeout)

	// A later change to the inner store is not visible until the cache
	// entry expires or is invalidated.
	inner.Put(domain.GuildConfig{Guild: "g1", Channel: "other", Enabled: true})

	got, err = s.Read(context.Background(), "g1")
	require.NoError(t, err)
	require.Equal(t, "verify", got.Channel)

	require.NoError(t, s.Invalidate(context.Background(), "g1"))

	got, err = s.Read(context.Background(), "g1")
	require.NoError(t, err)
	require.Equal(t, "other", got.Channel)
}

func TestCachedStore_Read_UnknownGuild(t *testing.T) {
	s, _ := makeCachedStore(t, guildconfig.NewStatic())

	_, err := s.Read(context.Background(), "nope")
	require.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestCachedStore_Read_Expiry(t *testing.T) {
	inner := guildconfig.NewStatic(domain.GuildConfig{Guild: "g1", Channel: "verify"})
	s, mr := makeCachedStore(t, inner)

	_, err := s.Read(context.Background(), "g1")
	require.NoError(t, err)

	inner.Put(domain.GuildConfig{Guild: "g1", Channel: "other"})
	mr.FastForward(2 * time.Second)

	got, err := s.Read(context.Background(), "g1")
	require.NoError(t, err)
	require.Equal(t, "other", got.Channel)
}

func makeCachedStore(t *testing.T, inner guildconfig.Store) (*guildconfig.CachedStore, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return guildconfig.NewCachedStore(guildconfig.CacheConfig{
		Store:  inner,
		Redis:  rc,
		Prefix: "captchad",
		TTL:    time.Second,
	}), mr
}
