// Package auditlog maintains the audit trail message for a challenge session
// in the guild's logs channel, when one is configured.
package auditlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/gateway"
)

type Config struct {
	Messenger gateway.Messenger
}

type Logger struct {
	messenger gateway.Messenger
}

func New(c Config) *Logger {
	return &Logger{messenger: c.Messenger}
}

// Append writes text into the guild's logs channel. When existing refers to a
// previous audit message it is edited in place, so one session keeps a single
// trail message. Delivery failures are logged and swallowed: auditing never
// disturbs the challenge flow.
func (l *Logger) Append(ctx context.Context, cfg domain.GuildConfig, text string, existing gateway.MessageHandle) gateway.MessageHandle {
	if cfg.LogsChannel == "" {
		return existing
	}

	msg := gateway.Message{Text: text}

	if !existing.Zero() {
		if err := l.messenger.Edit(ctx, existing, msg); err != nil {
			slog.DebugContext(ctx, "auditlog: edit failed",
				"guild", cfg.Guild, "error", err)
		}
		return existing
	}

	dest := domain.Destination{Guild: cfg.Guild, Channel: cfg.LogsChannel}
	h, err := l.messenger.Send(ctx, dest, msg)
	if err != nil {
		slog.DebugContext(ctx, "auditlog: send failed",
			"guild", cfg.Guild, "error", err)
		return gateway.MessageHandle{}
	}
	return h
}

// Line formats a standard audit line for a member.
func Line(entity domain.Entity, text string) string {
	return fmt.Sprintf("[Challenge] %s (%s): %s", entity.Name, entity.ID, text)
}
