// Package roles applies the role changes owed to a member who passed the
// challenge: autoroles are granted and the temporary role is revoked.
package roles

import (
	"context"
	"log/slog"
	"strings"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/gateway"
)

const (
	grantReason  = "Autorole by challenge verification."
	revokeReason = "Removing temporary role after challenge verification."
	tempReason   = "Temporary role given at challenge start."
)

type Config struct {
	Roles gateway.Roles
}

type Applier struct {
	roles gateway.Roles
}

func NewApplier(c Config) *Applier {
	return &Applier{roles: c.Roles}
}

// ActionFailure records a single role change that the platform refused.
type ActionFailure struct {
	Role domain.RoleID
	Err  error
}

// ActionSummary reports what was done for one member. Partial failures are
// listed, never hidden: a grant failing does not stop the remaining grants.
type ActionSummary struct {
	Granted  []domain.RoleID
	Revoked  bool
	Failures []ActionFailure
}

// String renders the summary for audit messages.
func (s ActionSummary) String() string {
	var actions []string
	switch len(s.Granted) {
	case 0:
	case 1:
		actions = append(actions, "added automatic role")
	default:
		actions = append(actions, "added automatic roles")
	}
	if s.Revoked {
		actions = append(actions, "removed temporary role")
	}
	if len(s.Failures) > 0 {
		actions = append(actions, "some role changes failed")
	}

	if len(actions) == 0 {
		return "No action taken."
	}

	out := strings.Join(actions, ", ")
	return strings.ToUpper(out[:1]) + out[1:] + "."
}

// ApplyStart grants the temporary role when one is configured. Unlike the
// success path this is all-or-nothing: a refusal aborts the session start.
func (a *Applier) ApplyStart(ctx context.Context, entity domain.Entity, cfg domain.GuildConfig) error {
	if cfg.TempRole == "" {
		return nil
	}
	return a.roles.Grant(ctx, entity, cfg.TempRole, tempReason)
}

// ApplySuccess grants every configured autorole and revokes the temporary
// role if the member still holds it.
func (a *Applier) ApplySuccess(ctx context.Context, entity domain.Entity, cfg domain.GuildConfig) ActionSummary {
	var summary ActionSummary

	for _, role := range cfg.Autoroles {
		if err := a.roles.Grant(ctx, entity, role, grantReason); err != nil {
			slog.DebugContext(ctx, "roles: autorole grant failed",
				"entity", entity.ID, "role", role, "error", err)
			summary.Failures = append(summary.Failures, ActionFailure{Role: role, Err: err})
			continue
		}
		summary.Granted = append(summary.Granted, role)
	}

	if cfg.TempRole == "" {
		return summary
	}

	held, err := a.roles.HasRole(ctx, entity, cfg.TempRole)
	if err != nil {
		slog.DebugContext(ctx, "roles: temp role lookup failed",
			"entity", entity.ID, "role", cfg.TempRole, "error", err)
		summary.Failures = append(summary.Failures, ActionFailure{Role: cfg.TempRole, Err: err})
		return summary
	}
	if !held {
		return summary
	}

	if err := a.roles.Revoke(ctx, entity, cfg.TempRole, revokeReason); err != nil {
		slog.DebugContext(ctx, "roles: temp role revoke failed",
			"entity", entity.ID, "role", cfg.TempRole, "error", err)
		summary.Failures = append(summary.Failures, ActionFailure{Role: cfg.TempRole, Err: err})
		return summary
	}
	summary.Revoked = true

	return summary
}
