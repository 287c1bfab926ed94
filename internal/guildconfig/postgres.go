package guildconfig

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
)

// PostgresStore reads the authoritative per-guild configuration row.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Read(ctx context.Context, guild domain.GuildID) (domain.GuildConfig, error) {
	const stmt = `
SELECT channel, logs_channel, enabled, variant, timeout_minutes, autoroles, temp_role, retries
FROM guild_challenge_configs
WHERE guild_id = $1;`

	var (
		c              = domain.GuildConfig{Guild: guild}
		timeoutMinutes int
		autoroles      []string
	)
	err := s.db.QueryRow(ctx, stmt, string(guild)).Scan(
		&c.Channel,
		&c.LogsChannel,
		&c.Enabled,
		&c.Variant,
		&timeoutMinutes,
		&autoroles,
		&c.TempRole,
		&c.Retries,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.GuildConfig{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no challenge config for guild %s", guild))
	}
	if err != nil {
		return domain.GuildConfig{}, fmt.Errorf("read guild config: %w", err)
	}

	c.Timeout = time.Duration(timeoutMinutes) * time.Minute
	for _, r := range autoroles {
		c.Autoroles = append(c.Autoroles, domain.RoleID(r))
	}
	return c, nil
}
