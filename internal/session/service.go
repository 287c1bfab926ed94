package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/predeactor/captchad/internal/auditlog"
	"github.com/predeactor/captchad/internal/challenge"
	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
	"github.com/predeactor/captchad/internal/event"
	"github.com/predeactor/captchad/internal/gateway"
	"github.com/predeactor/captchad/internal/guildconfig"
	"github.com/predeactor/captchad/internal/roles"
)

const defaultTimeout = 5 * time.Minute

// maxTimeout caps operator-configured waits; a week-long captcha is a
// misconfiguration, not a feature.
const maxTimeout = time.Hour

type EngineConfig struct {
	Store     guildconfig.Store
	Messenger gateway.Messenger
	Events    gateway.Events
	Roles     gateway.Roles
	Remover   gateway.Remover
	EventBus  *event.Bus
	Metrics   *Metrics

	// NewCode overrides code generation, for tests that need a known code.
	NewCode func() challenge.Code
}

// Engine accepts the external triggers and owns the registry of live
// sessions. Each accepted trigger runs its session in a dedicated goroutine.
type Engine struct {
	store     guildconfig.Store
	messenger gateway.Messenger
	events    gateway.Events
	remover   gateway.Remover
	applier   *roles.Applier
	audit     *auditlog.Logger
	eb        *event.Bus
	metrics   *Metrics

	registry *Registry
	newCode  func() challenge.Code
	wg       sync.WaitGroup
}

func NewEngine(c EngineConfig) *Engine {
	return &Engine{
		store:     c.Store,
		messenger: c.Messenger,
		events:    c.Events,
		remover:   c.Remover,
		applier:   roles.NewApplier(roles.Config{Roles: c.Roles}),
		audit:     auditlog.New(auditlog.Config{Messenger: c.Messenger}),
		eb:        c.EventBus,
		metrics:   c.Metrics,
		registry:  NewRegistry(),
		newCode:   c.NewCode,
	}
}

// OnEntityJoined starts a challenge for a newly joined entity. Guilds without
// the feature enabled (or without any configuration) are skipped silently;
// real start failures are returned.
func (e *Engine) OnEntityJoined(ctx context.Context, entity domain.Entity) error {
	err := e.start(ctx, entity)
	if errors.IsCode(err, errors.CodeFailedPrecondition) || errors.IsCode(err, errors.CodeNotFound) {
		slog.DebugContext(ctx, "session: skipping challenge on join",
			"entity", entity.ID, "guild", entity.Guild, "reason", err)
		return nil
	}
	return err
}

// OnEntityLeft cancels any running challenge for an entity that left.
func (e *Engine) OnEntityLeft(ctx context.Context, entity domain.EntityID) {
	s, ok := e.registry.Get(entity)
	if !ok {
		return
	}
	slog.InfoContext(ctx, "session: cancelling challenge, entity left",
		"entity", entity, "session", s.ID())
	s.Cancel()
}

// ManualTrigger starts a challenge on an operator's request. Unlike the join
// trigger, every start failure is surfaced to the caller.
func (e *Engine) ManualTrigger(ctx context.Context, entity domain.Entity) error {
	return e.start(ctx, entity)
}

// ManualCancel cancels a running challenge on an operator's request.
func (e *Engine) ManualCancel(ctx context.Context, entity domain.EntityID) error {
	s, ok := e.registry.Get(entity)
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("no running challenge for entity %s", entity))
	}
	s.Cancel()
	return nil
}

// SessionInfo is a read-only view over a live session, for listings.
type SessionInfo struct {
	SessionID string
	Entity    domain.Entity
	State     domain.State
	Attempts  int
	StartedAt time.Time
}

// Running lists every live session.
func (e *Engine) Running() []SessionInfo {
	sessions := e.registry.List()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			SessionID: s.ID(),
			Entity:    s.Entity(),
			State:     s.State(),
			Attempts:  s.Attempts(),
			StartedAt: s.StartedAt(),
		})
	}
	return out
}

// Stop cancels every running session and waits for them to clean up.
func (e *Engine) Stop() {
	for _, s := range e.registry.List() {
		s.Cancel()
	}
	e.wg.Wait()
}

func (e *Engine) start(ctx context.Context, entity domain.Entity) error {
	cfg, err := e.store.Read(ctx, entity.Guild)
	if err != nil {
		return err
	}

	if !cfg.Enabled {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("challenge is not enabled for guild %s", entity.Guild))
	}
	if cfg.Channel == "" {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no verification channel configured for guild %s", entity.Guild))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Timeout > maxTimeout {
		cfg.Timeout = maxTimeout
	}

	renderer, verifier, err := challenge.ForVariant(cfg.Variant)
	if err != nil {
		return err
	}

	dest := domain.Destination{Guild: entity.Guild, Channel: cfg.Channel}
	if dest.IsDM() {
		dest.Entity = entity.ID
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate session ID: %w", err)
	}

	sess := New(Config{
		ID:        id.String(),
		Entity:    entity,
		GuildName: string(entity.Guild),
		Guild:     cfg,
		Dest:      dest,
		Renderer:  renderer,
		Verifier:  verifier,
		Messenger: e.messenger,
		Events:    e.events,
		NewCode:   e.newCode,
	})

	if err := e.registry.CreateIfAbsent(sess); err != nil {
		return err
	}

	// The temporary role restricts the member until they verify. A refusal
	// here aborts the whole start: nothing was presented yet.
	if err := e.applier.ApplyStart(ctx, entity, cfg); err != nil {
		e.registry.Remove(entity.ID)
		return err
	}

	if err := sess.Present(ctx); err != nil {
		sess.Cleanup(context.WithoutCancel(ctx))
		e.registry.Remove(entity.ID)
		return err
	}

	e.metrics.SessionStarted()
	slog.InfoContext(ctx, "session: challenge started",
		"entity", entity.ID, "guild", entity.Guild, "session", sess.ID(),
		"variant", cfg.Variant)

	auditHandle := e.audit.Append(ctx, cfg,
		auditlog.Line(entity, "challenge started"), gateway.MessageHandle{})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runSession(context.WithoutCancel(ctx), sess, auditHandle)
	}()

	return nil
}

// runSession drives one session to its terminal state, applies the terminal
// side effects exactly once and guarantees cleanup and registry removal no
// matter how the flow ended.
func (e *Engine) runSession(ctx context.Context, sess *Session, auditHandle gateway.MessageHandle) {
	entity := sess.Entity()
	cfg := sess.GuildConfig()

	defer func() {
		sess.Cleanup(ctx)
		e.registry.Remove(entity.ID)
	}()

	state := sess.Run(ctx)
	e.metrics.SessionFinished(state)
	slog.InfoContext(ctx, "session: challenge finished",
		"entity", entity.ID, "session", sess.ID(), "state", state,
		"attempts", sess.Attempts())

	switch state {
	case domain.StateVerified:
		summary := e.applier.ApplySuccess(ctx, entity, cfg)
		e.audit.Append(ctx, cfg,
			auditlog.Line(entity, "passed the challenge. "+summary.String()), auditHandle)
		e.eb.Publish(ctx, domain.EventChallengePassed{
			SessionID: sess.ID(),
			Entity:    entity,
			Actions:   summary.String(),
		})

	case domain.StateFailed, domain.StateTimedOut:
		reason := "failed the challenge"
		if state == domain.StateTimedOut {
			reason = "did not answer the challenge in time"
		}
		if err := e.remover.Remove(ctx, entity, reason); err != nil {
			slog.ErrorContext(ctx, "session: entity removal failed",
				"entity", entity.ID, "error", err)
		}
		e.audit.Append(ctx, cfg, auditlog.Line(entity, reason), auditHandle)
		e.eb.Publish(ctx, domain.EventChallengeFailed{
			SessionID: sess.ID(),
			Entity:    entity,
			Reason:    string(state),
		})

	case domain.StateCancelled:
		e.audit.Append(ctx, cfg, auditlog.Line(entity, "challenge cancelled"), auditHandle)
		e.eb.Publish(ctx, domain.EventChallengeCancelled{
			SessionID: sess.ID(),
			Entity:    entity,
		})
	}
}
