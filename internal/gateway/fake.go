package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
)

// Fake is an in-memory platform used by tests and by local runs without a
// real chat adapter. It records every call and lets callers inject marker and
// submission signals.
type Fake struct {
	mu     sync.Mutex
	nextID int

	sent     []*SentMessage
	grants   []RoleChange
	revokes  []RoleChange
	removals []Removal
	held     map[domain.EntityID]map[domain.RoleID]bool

	markerCh map[domain.EntityID]chan MarkerEvent
	submitCh map[domain.EntityID]chan Submission

	// DenySend and DenyMarker make the next Send / AddMarker fail with a
	// PermissionDenied error, mimicking a platform refusal.
	DenySend   bool
	DenyMarker bool
	// DenyDelete makes Delete fail, for cleanup best-effort tests.
	DenyDelete bool
	// FailRoles lists roles whose grant or revoke fails.
	FailRoles map[domain.RoleID]bool
}

// SentMessage is the record of one Send and everything that happened to it.
type SentMessage struct {
	Handle  MessageHandle
	Message Message
	Markers []string
	Edits   []Message
	Deletes int
}

type RoleChange struct {
	Entity domain.EntityID
	Role   domain.RoleID
}

type Removal struct {
	Entity domain.EntityID
	Reason string
}

func NewFake() *Fake {
	return &Fake{
		held:     make(map[domain.EntityID]map[domain.RoleID]bool),
		markerCh: make(map[domain.EntityID]chan MarkerEvent),
		submitCh: make(map[domain.EntityID]chan Submission),
	}
}

func (f *Fake) Send(_ context.Context, dest domain.Destination, msg Message) (MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DenySend {
		return MessageHandle{}, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("cannot send message in %s", dest.Channel))
	}

	f.nextID++
	h := MessageHandle{Destination: dest, ID: fmt.Sprintf("m%d", f.nextID)}
	f.sent = append(f.sent, &SentMessage{Handle: h, Message: msg})
	return h, nil
}

func (f *Fake) Edit(_ context.Context, h MessageHandle, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.find(h)
	if m == nil {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("no message %s", h.ID))
	}
	m.Edits = append(m.Edits, msg)
	return nil
}

func (f *Fake) Delete(_ context.Context, h MessageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DenyDelete {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("cannot delete message %s", h.ID))
	}

	m := f.find(h)
	if m == nil {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("no message %s", h.ID))
	}
	m.Deletes++
	return nil
}

func (f *Fake) AddMarker(_ context.Context, h MessageHandle, marker string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DenyMarker {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("cannot react to message %s", h.ID))
	}

	m := f.find(h)
	if m == nil {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("no message %s", h.ID))
	}
	m.Markers = append(m.Markers, marker)
	return nil
}

func (f *Fake) AwaitMarker(ctx context.Context, h MessageHandle, entity domain.EntityID) (MarkerEvent, error) {
	ch := f.markers(entity)
	select {
	case ev := <-ch:
		ev.Handle = h
		return ev, nil
	case <-ctx.Done():
		return MarkerEvent{}, ctx.Err()
	}
}

func (f *Fake) AwaitSubmission(ctx context.Context, dest domain.Destination, entity domain.EntityID) (Submission, error) {
	ch := f.submissions(entity)
	select {
	case sub := <-ch:
		sub.Handle = MessageHandle{Destination: dest, ID: sub.Handle.ID}
		return sub, nil
	case <-ctx.Done():
		return Submission{}, ctx.Err()
	}
}

// InjectMarker simulates the member reacting with the reload marker.
func (f *Fake) InjectMarker(entity domain.EntityID) {
	f.markers(entity) <- MarkerEvent{Entity: entity, Marker: ReloadMarker}
}

// InjectSubmission simulates the member sending an answer message.
func (f *Fake) InjectSubmission(entity domain.EntityID, content string) {
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.sent = append(f.sent, &SentMessage{
		Handle:  MessageHandle{ID: id},
		Message: Message{Text: content},
	})
	f.mu.Unlock()

	f.submissions(entity) <- Submission{
		Handle:  MessageHandle{ID: id},
		Entity:  entity,
		Content: content,
	}
}

func (f *Fake) Grant(_ context.Context, entity domain.Entity, role domain.RoleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailRoles[role] {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("cannot assign role %s", role))
	}

	if f.held[entity.ID] == nil {
		f.held[entity.ID] = make(map[domain.RoleID]bool)
	}
	f.held[entity.ID][role] = true
	f.grants = append(f.grants, RoleChange{Entity: entity.ID, Role: role})
	return nil
}

func (f *Fake) Revoke(_ context.Context, entity domain.Entity, role domain.RoleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailRoles[role] {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("cannot remove role %s", role))
	}

	delete(f.held[entity.ID], role)
	f.revokes = append(f.revokes, RoleChange{Entity: entity.ID, Role: role})
	return nil
}

func (f *Fake) HasRole(_ context.Context, entity domain.Entity, role domain.RoleID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.held[entity.ID][role], nil
}

func (f *Fake) Remove(_ context.Context, entity domain.Entity, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removals = append(f.removals, Removal{Entity: entity.ID, Reason: reason})
	return nil
}

// Sent returns a snapshot of every message record.
func (f *Fake) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]SentMessage, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, *m)
	}
	return out
}

// SentTo returns the message records delivered to a channel.
func (f *Fake) SentTo(channel string) []SentMessage {
	var out []SentMessage
	for _, m := range f.Sent() {
		if m.Handle.Destination.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

func (f *Fake) Grants() []RoleChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoleChange(nil), f.grants...)
}

func (f *Fake) Revokes() []RoleChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoleChange(nil), f.revokes...)
}

func (f *Fake) Removals() []Removal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Removal(nil), f.removals...)
}

func (f *Fake) find(h MessageHandle) *SentMessage {
	for _, m := range f.sent {
		if m.Handle.ID == h.ID {
			return m
		}
	}
	return nil
}

func (f *Fake) markers(entity domain.EntityID) chan MarkerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markerCh[entity] == nil {
		f.markerCh[entity] = make(chan MarkerEvent, 8)
	}
	return f.markerCh[entity]
}

func (f *Fake) submissions(entity domain.EntityID) chan Submission {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitCh[entity] == nil {
		f.submitCh[entity] = make(chan Submission, 8)
	}
	return f.submitCh[entity]
}
