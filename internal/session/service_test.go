package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predeactor/captchad/internal/challenge"
	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
	"github.com/predeactor/captchad/internal/event"
	"github.com/predeactor/captchad/internal/gateway"
	"github.com/predeactor/captchad/internal/guildconfig"
	"github.com/predeactor/captchad/internal/session"
)

type engineFixture struct {
	engine *session.Engine
	fake   *gateway.Fake
	events chan event.Event
}

func makeEngine(t *testing.T, cfg domain.GuildConfig, newCode func() challenge.Code) *engineFixture {
	t.Helper()

	fake := gateway.NewFake()
	bus := event.NewBus(event.WithPoolSize(2))
	t.Cleanup(bus.Stop)

	events := make(chan event.Event, 8)
	record := func(_ context.Context, e event.Event) error {
		events <- e
		return nil
	}
	bus.Subscribe(domain.EventNameChallengePassed, record)
	bus.Subscribe(domain.EventNameChallengeFailed, record)
	bus.Subscribe(domain.EventNameChallengeCancelled, record)

	store := guildconfig.NewStatic(cfg)
	engine := session.NewEngine(session.EngineConfig{
		Store:     store,
		Messenger: fake,
		Events:    fake,
		Roles:     fake,
		Remover:   fake,
		EventBus:  bus,
		NewCode:   newCode,
	})
	t.Cleanup(engine.Stop)

	return &engineFixture{engine: engine, fake: fake, events: events}
}

func engineGuildConfig() domain.GuildConfig {
	cfg := testGuildConfig()
	cfg.LogsChannel = "logs"
	cfg.Timeout = time.Second
	return cfg
}

func (f *engineFixture) awaitEvent(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-f.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no lifecycle event published")
		return nil
	}
}

func (f *engineFixture) awaitDrained(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.engine.Running()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func hasRoleChange(changes []gateway.RoleChange, entity domain.EntityID, role domain.RoleID) bool {
	for _, c := range changes {
		if c.Entity == entity && c.Role == role {
			return true
		}
	}
	return false
}

func joiner() domain.Entity {
	return domain.Entity{ID: "u1", Guild: "g1", Name: "newcomer"}
}

func TestEngine_SuccessPath(t *testing.T) {
	cfg := engineGuildConfig()
	cfg.Variant = domain.VariantImage
	fx := makeEngine(t, cfg, fixedCode("MM00PP11"))

	require.NoError(t, fx.engine.OnEntityJoined(context.Background(), joiner()))

	// The temp role restricts the member before the challenge is visible.
	require.True(t, hasRoleChange(fx.fake.Grants(), "u1", "unverified"))

	sent := fx.fake.SentTo("verify")
	require.Len(t, sent, 1)
	require.NotEmpty(t, sent[0].Message.Image, "image variant delivers a rendered code")
	require.NotContains(t, sent[0].Message.Text, "MM00PP11", "the caption must not leak the code")

	fx.fake.InjectSubmission("u1", " mm00pp11 ")

	e := fx.awaitEvent(t)
	passed, ok := e.(domain.EventChallengePassed)
	require.True(t, ok, "expected a passed event, got %T", e)
	assert.Equal(t, domain.EntityID("u1"), passed.Entity.ID)

	fx.awaitDrained(t)

	assert.True(t, hasRoleChange(fx.fake.Grants(), "u1", "member"))
	assert.True(t, hasRoleChange(fx.fake.Revokes(), "u1", "unverified"))
	assert.Empty(t, fx.fake.Removals())

	// One audit message per session, edited in place on completion.
	logs := fx.fake.SentTo("logs")
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Message.Text, "challenge started")
	require.Len(t, logs[0].Edits, 1)
	assert.Contains(t, logs[0].Edits[0].Text, "passed the challenge")
}

func TestEngine_RetriesExhausted(t *testing.T) {
	fx := makeEngine(t, engineGuildConfig(), fixedCode("XYZ98765"))

	require.NoError(t, fx.engine.OnEntityJoined(context.Background(), joiner()))

	fx.fake.InjectSubmission("u1", "WRONG1")
	fx.fake.InjectSubmission("u1", "WRONG2")
	fx.fake.InjectSubmission("u1", "WRONG3")

	e := fx.awaitEvent(t)
	failed, ok := e.(domain.EventChallengeFailed)
	require.True(t, ok, "expected a failed event, got %T", e)
	assert.Equal(t, string(domain.StateFailed), failed.Reason)

	fx.awaitDrained(t)

	// The member is removed exactly once and never earns the join roles.
	require.Len(t, fx.fake.Removals(), 1)
	assert.False(t, hasRoleChange(fx.fake.Grants(), "u1", "member"))

	logs := fx.fake.SentTo("logs")
	require.Len(t, logs, 1)
	require.Len(t, logs[0].Edits, 1)
	assert.Contains(t, logs[0].Edits[0].Text, "failed the challenge")
}

func TestEngine_Timeout(t *testing.T) {
	cfg := engineGuildConfig()
	cfg.Timeout = 100 * time.Millisecond
	fx := makeEngine(t, cfg, fixedCode("AB12CD34"))

	require.NoError(t, fx.engine.OnEntityJoined(context.Background(), joiner()))

	e := fx.awaitEvent(t)
	failed, ok := e.(domain.EventChallengeFailed)
	require.True(t, ok, "expected a failed event, got %T", e)
	assert.Equal(t, string(domain.StateTimedOut), failed.Reason)

	fx.awaitDrained(t)
	require.Len(t, fx.fake.Removals(), 1)
	assert.Contains(t, fx.fake.Removals()[0].Reason, "did not answer")
}

func TestEngine_EntityLeftCancels(t *testing.T) {
	fx := makeEngine(t, engineGuildConfig(), fixedCode("AB12CD34"))

	require.NoError(t, fx.engine.OnEntityJoined(context.Background(), joiner()))
	fx.engine.OnEntityLeft(context.Background(), "u1")

	e := fx.awaitEvent(t)
	_, ok := e.(domain.EventChallengeCancelled)
	require.True(t, ok, "expected a cancelled event, got %T", e)

	fx.awaitDrained(t)

	// Cancellation is not a failure: no removal, no autoroles.
	assert.Empty(t, fx.fake.Removals())
	assert.False(t, hasRoleChange(fx.fake.Grants(), "u1", "member"))
}

func TestEngine_ManualCancel(t *testing.T) {
	fx := makeEngine(t, engineGuildConfig(), fixedCode("AB12CD34"))

	err := fx.engine.ManualCancel(context.Background(), "u1")
	require.True(t, errors.IsCode(err, errors.CodeNotFound))

	require.NoError(t, fx.engine.ManualTrigger(context.Background(), joiner()))
	require.NoError(t, fx.engine.ManualCancel(context.Background(), "u1"))

	e := fx.awaitEvent(t)
	_, ok := e.(domain.EventChallengeCancelled)
	require.True(t, ok, "expected a cancelled event, got %T", e)
	fx.awaitDrained(t)
}

func TestEngine_JoinSkipsDisabledGuild(t *testing.T) {
	cfg := engineGuildConfig()
	cfg.Enabled = false
	fx := makeEngine(t, cfg, fixedCode("AB12CD34"))

	require.NoError(t, fx.engine.OnEntityJoined(context.Background(), joiner()))
	assert.Empty(t, fx.fake.Sent())
	assert.Empty(t, fx.engine.Running())
}

func TestEngine_JoinSkipsUnknownGuild(t *testing.T) {
	fx := makeEngine(t, engineGuildConfig(), fixedCode("AB12CD34"))

	stranger := domain.Entity{ID: "u9", Guild: "nowhere", Name: "stranger"}
	require.NoError(t, fx.engine.OnEntityJoined(context.Background(), stranger))
	assert.Empty(t, fx.fake.Sent())
}

func TestEngine_ManualTriggerSurfacesDisabled(t *testing.T) {
	cfg := engineGuildConfig()
	cfg.Enabled = false
	fx := makeEngine(t, cfg, fixedCode("AB12CD34"))

	err := fx.engine.ManualTrigger(context.Background(), joiner())
	require.True(t, errors.IsCode(err, errors.CodeFailedPrecondition))
}

func TestEngine_SecondTriggerConflicts(t *testing.T) {
	fx := makeEngine(t, engineGuildConfig(), fixedCode("AB12CD34"))

	require.NoError(t, fx.engine.ManualTrigger(context.Background(), joiner()))

	err := fx.engine.ManualTrigger(context.Background(), joiner())
	require.True(t, errors.IsCode(err, errors.CodeAlreadyExists))

	// The live session is untouched by the rejected trigger.
	require.Len(t, fx.engine.Running(), 1)
	require.Len(t, fx.fake.SentTo("verify"), 1)
}

func TestEngine_TempRoleDeniedAbortsStart(t *testing.T) {
	fx := makeEngine(t, engineGuildConfig(), fixedCode("AB12CD34"))
	fx.fake.FailRoles = map[domain.RoleID]bool{"unverified": true}

	err := fx.engine.ManualTrigger(context.Background(), joiner())
	require.Error(t, err)

	// Nothing was presented and the slot is free again.
	assert.Empty(t, fx.fake.SentTo("verify"))
	assert.Empty(t, fx.engine.Running())

	fx.fake.FailRoles = nil
	require.NoError(t, fx.engine.ManualTrigger(context.Background(), joiner()),
		"a fresh trigger should be possible after the aborted start")
}

func TestEngine_PresentDeniedReleasesSlot(t *testing.T) {
	fx := makeEngine(t, engineGuildConfig(), fixedCode("AB12CD34"))
	fx.fake.DenySend = true

	err := fx.engine.ManualTrigger(context.Background(), joiner())
	require.True(t, errors.IsCode(err, errors.CodePermissionDenied))
	assert.Empty(t, fx.engine.Running())
}

func TestEngine_DMDestination(t *testing.T) {
	cfg := engineGuildConfig()
	cfg.Channel = domain.DMChannel
	fx := makeEngine(t, cfg, fixedCode("AB12CD34"))

	require.NoError(t, fx.engine.OnEntityJoined(context.Background(), joiner()))

	sent := fx.fake.SentTo(domain.DMChannel)
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EntityID("u1"), sent[0].Handle.Destination.Entity)
}

func TestEngine_PlainVariantEndToEnd(t *testing.T) {
	// No injected code: the engine generates a real one, recovered here the
	// way a member reads it, by dropping the anti-copy-paste escapes.
	fx := makeEngine(t, engineGuildConfig(), nil)

	require.NoError(t, fx.engine.ManualTrigger(context.Background(), joiner()))

	sent := fx.fake.SentTo("verify")
	require.Len(t, sent, 1)
	code := extractCode(t, sent[0].Message.Text)
	require.Len(t, code, challenge.CodeLength)

	fx.fake.InjectSubmission("u1", code)

	e := fx.awaitEvent(t)
	_, ok := e.(domain.EventChallengePassed)
	require.True(t, ok, "expected a passed event, got %T", e)

	fx.awaitDrained(t)
	assert.True(t, hasRoleChange(fx.fake.Grants(), "u1", "member"))
}

// extractCode pulls the code out of a plain challenge text: the longest run
// of code alphabet characters once the zero-width escapes are stripped.
func extractCode(t *testing.T, text string) string {
	t.Helper()

	clean := strings.ReplaceAll(text, "​", "")
	best := ""
	run := strings.Builder{}
	for _, r := range clean {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			run.WriteRune(r)
			continue
		}
		if run.Len() > len(best) {
			best = run.String()
		}
		run.Reset()
	}
	if run.Len() > len(best) {
		best = run.String()
	}
	require.NotEmpty(t, best, "no code found in challenge text")
	return best
}
