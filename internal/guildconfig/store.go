// Package guildconfig reads per-guild challenge settings. The engine takes a
// snapshot at session start; nothing in this package is written by the
// challenge flow itself.
package guildconfig

import (
	"context"
	"sync"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
)

type Store interface {
	Read(ctx context.Context, guild domain.GuildID) (domain.GuildConfig, error)
}

// Static is a fixed in-memory store, used by tests and local runs.
type Static struct {
	mu      sync.RWMutex
	configs map[domain.GuildID]domain.GuildConfig
}

func NewStatic(configs ...domain.GuildConfig) *Static {
	s := &Static{configs: make(map[domain.GuildID]domain.GuildConfig)}
	for _, c := range configs {
		s.configs[c.Guild] = c
	}
	return s
}

func (s *Static) Read(_ context.Context, guild domain.GuildID) (domain.GuildConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.configs[guild]
	if !ok {
		return domain.GuildConfig{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no challenge config for guild %s", guild))
	}
	return c, nil
}

// Put replaces the config for a guild.
func (s *Static) Put(c domain.GuildConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[c.Guild] = c
}
