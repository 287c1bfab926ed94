package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/predeactor/captchad/internal/challenge"
	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
	"github.com/predeactor/captchad/internal/gateway"
)

const (
	noticeRetry     = "Input incorrect, try again."
	noticeCopyPaste = "Code invalid. Do not copy and paste the code."
	noticeSuccess   = "You have completed the challenge."
	noticeFailed    = "Too many failed attempts."

	// noticeTTL is how long transient notices stay visible.
	noticeTTL = 10 * time.Second
)

// Config carries everything a Session needs. The GuildConfig is a snapshot:
// the session never re-reads configuration mid-flight.
type Config struct {
	ID        string
	Entity    domain.Entity
	GuildName string
	Guild     domain.GuildConfig
	Dest      domain.Destination

	Renderer challenge.Renderer
	Verifier challenge.Verifier

	Messenger gateway.Messenger
	Events    gateway.Events

	// NewCode overrides code generation; nil means challenge.GenerateCode.
	NewCode func() challenge.Code
}

// Session owns the full challenge lifecycle of one entity, from code
// generation to cleanup. All transitions happen sequentially inside Run; the
// only concurrency is the two watchers racing inside waitAction.
type Session struct {
	id        string
	entity    domain.Entity
	guildName string
	cfg       domain.GuildConfig
	dest      domain.Destination

	renderer challenge.Renderer
	verifier challenge.Verifier

	messenger gateway.Messenger
	events    gateway.Events

	mu           sync.Mutex
	state        domain.State
	code         challenge.Code
	attempts     int
	challengeMsg gateway.MessageHandle
	answerMsg    gateway.MessageHandle
	noticeMsg    gateway.MessageHandle

	runCancel       context.CancelFunc
	cancelRequested bool
	cleanupOnce     sync.Once

	newCode func() challenge.Code

	startedAt time.Time
}

func New(c Config) *Session {
	newCode := c.NewCode
	if newCode == nil {
		newCode = challenge.GenerateCode
	}
	return &Session{
		newCode:   newCode,
		id:        c.ID,
		entity:    c.Entity,
		guildName: c.GuildName,
		cfg:       c.Guild,
		dest:      c.Dest,
		renderer:  c.Renderer,
		verifier:  c.Verifier,
		messenger: c.Messenger,
		events:    c.Events,
		state:     domain.StateCreated,
		startedAt: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Entity() domain.Entity { return s.entity }

func (s *Session) GuildConfig() domain.GuildConfig { return s.cfg }

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Present generates the first code and delivers the challenge. It must be
// called exactly once, before Run; errors abort the session before any
// watcher exists.
func (s *Session) Present(ctx context.Context) error {
	if s.State() != domain.StateCreated {
		return errors.New(errors.CodeInternal,
			errors.WithMessagef("session %s already presented", s.id))
	}
	return s.present(ctx)
}

// present runs one code/render/deliver cycle. Shared by the initial
// presentation and every reload.
func (s *Session) present(ctx context.Context) error {
	code := s.newCode()

	art, err := s.renderer.Render(code, s.guildName)
	if err != nil {
		return errors.Internal(err)
	}

	h, err := s.messenger.Send(ctx, s.dest, gateway.Message{
		Text:      art.Text,
		Image:     art.Image,
		ImageName: art.ImageName,
	})
	if err != nil {
		return err
	}

	if err := s.messenger.AddMarker(ctx, h, gateway.ReloadMarker); err != nil {
		if derr := s.messenger.Delete(ctx, h); derr != nil {
			slog.DebugContext(ctx, "session: partial artifact delete failed",
				"entity", s.entity.ID, "error", derr)
		}
		return err
	}

	s.mu.Lock()
	s.code = code
	s.challengeMsg = h
	s.mu.Unlock()

	s.transition(domain.StatePresented)
	return nil
}

// Run drives the session from Presented to a terminal state and returns it.
// The caller is responsible for terminal side effects and for Cleanup.
func (s *Session) Run(ctx context.Context) domain.State {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancelRequested {
		s.mu.Unlock()
		s.transition(domain.StateCancelled)
		return s.State()
	}
	s.runCancel = cancel
	s.mu.Unlock()

	for {
		s.transition(domain.StateAwaitingAction)

		act, err := s.waitAction(runCtx)
		if err != nil {
			// Cancellation of the parent wins over the per-wait timeout.
			if runCtx.Err() != nil {
				s.transition(domain.StateCancelled)
			} else {
				s.transition(domain.StateTimedOut)
			}
			return s.State()
		}

		if act.kind == actionReload {
			if err := s.reload(runCtx); err != nil {
				// The platform refused re-delivery; nothing is visible to
				// the member anymore, abandon without punishing them.
				slog.ErrorContext(runCtx, "session: reload delivery failed",
					"entity", s.entity.ID, "error", err)
				s.transition(domain.StateCancelled)
				return s.State()
			}
			continue
		}

		if done := s.handleAnswer(runCtx, act.submission); done {
			return s.State()
		}
	}
}

// Cancel requests external cancellation: entity left or an operator asked.
// Safe to call at any point; a session already in a terminal state ignores it.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelRequested = true
	cancel := s.runCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Cleanup deletes every message the session still owns and marks the session
// cleaned up. Idempotent: the second and later calls are no-ops. Deletion
// failures are logged at debug level and swallowed.
func (s *Session) Cleanup(ctx context.Context) {
	s.cleanupOnce.Do(func() {
		s.Cancel()

		s.mu.Lock()
		handles := []gateway.MessageHandle{s.challengeMsg, s.answerMsg, s.noticeMsg}
		s.state = domain.StateCleanedUp
		s.mu.Unlock()

		for _, h := range handles {
			if h.Zero() {
				continue
			}
			if err := s.messenger.Delete(ctx, h); err != nil {
				slog.DebugContext(ctx, "session: cleanup delete failed",
					"entity", s.entity.ID, "message", h.ID, "error", err)
			}
		}

		slog.DebugContext(ctx, "session: cleaned up",
			"entity", s.entity.ID, "session", s.id)
	})
}

type actionKind int

const (
	actionReload actionKind = iota
	actionAnswer
)

type action struct {
	kind       actionKind
	submission gateway.Submission
}

// waitAction races a marker watcher against a submission watcher. The first
// to resolve wins; the loser is cancelled and awaited before the session
// moves on, so no watcher outlives its wait. A watcher that resolves in the
// same instant as a cancellation or timeout still wins.
func (s *Session) waitAction(ctx context.Context) (action, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	s.mu.Lock()
	challengeMsg := s.challengeMsg
	s.mu.Unlock()

	results := make(chan action, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := s.events.AwaitMarker(waitCtx, challengeMsg, s.entity.ID); err == nil {
			results <- action{kind: actionReload}
		}
	}()
	go func() {
		defer wg.Done()
		if sub, err := s.events.AwaitSubmission(waitCtx, s.dest, s.entity.ID); err == nil {
			results <- action{kind: actionAnswer, submission: sub}
		}
	}()

	select {
	case act := <-results:
		cancel()
		wg.Wait()
		return act, nil

	case <-waitCtx.Done():
		wg.Wait()
		select {
		case act := <-results:
			return act, nil
		default:
		}
		if ctx.Err() != nil {
			return action{}, ctx.Err()
		}
		return action{}, errors.New(errors.CodeDeadlineExceeded,
			errors.WithMessagef("no answer within %s", s.cfg.Timeout))
	}
}

// reload deletes the current artifact and presents a fresh code. Reloading
// never counts as an attempt.
func (s *Session) reload(ctx context.Context) error {
	s.mu.Lock()
	old := s.challengeMsg
	s.mu.Unlock()

	if !old.Zero() {
		if err := s.messenger.Delete(ctx, old); err != nil {
			slog.DebugContext(ctx, "session: stale challenge delete failed",
				"entity", s.entity.ID, "error", err)
		}
	}

	return s.present(ctx)
}

// handleAnswer judges one submission. Returns true when the session reached a
// terminal state.
func (s *Session) handleAnswer(ctx context.Context, sub gateway.Submission) bool {
	s.mu.Lock()
	s.answerMsg = sub.Handle
	code := s.code
	s.mu.Unlock()

	outcome := s.verifier.Verify(sub.Content, code)
	if outcome == challenge.Correct {
		s.transition(domain.StateVerified)
		s.notice(ctx, noticeSuccess)
		return true
	}

	s.mu.Lock()
	s.attempts++
	exhausted := s.attempts > s.cfg.Retries
	s.mu.Unlock()

	text := noticeRetry
	if outcome == challenge.CopyPasteRejected {
		text = noticeCopyPaste
	}
	if exhausted {
		text = noticeFailed
	}
	s.notice(ctx, text)

	// The wrong answer itself gets removed from the channel.
	if err := s.messenger.Delete(ctx, sub.Handle); err != nil {
		slog.DebugContext(ctx, "session: answer delete failed",
			"entity", s.entity.ID, "error", err)
	}

	if exhausted {
		s.transition(domain.StateFailed)
		return true
	}
	return false
}

// notice sends a transient auto-expiring message. Failures never disturb the
// flow. Terminal notices must go out even when the run context is cancelled.
func (s *Session) notice(ctx context.Context, text string) {
	h, err := s.messenger.Send(context.WithoutCancel(ctx), s.dest, gateway.Message{
		Text:        text,
		ExpireAfter: noticeTTL,
	})
	if err != nil {
		slog.DebugContext(ctx, "session: notice delivery failed",
			"entity", s.entity.ID, "error", err)
		return
	}

	s.mu.Lock()
	s.noticeMsg = h
	s.mu.Unlock()
}

// transition commits a state change. Once a terminal state is committed every
// later transition is ignored, which keeps cancellation races single-winner.
func (s *Session) transition(to domain.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}
	s.state = to
	return true
}
