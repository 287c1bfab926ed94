// Package gateway defines the narrow interfaces through which the challenge
// engine talks to the chat platform. Production deployments plug a real
// platform adapter; tests and local runs use the in-memory Fake.
package gateway

import (
	"context"
	"time"

	"github.com/predeactor/captchad/internal/domain"
)

// ReloadMarker is the marker (reaction) members use to request a fresh code.
const ReloadMarker = "\U0001F501"

// MessageHandle identifies a delivered message for later edit or deletion.
type MessageHandle struct {
	Destination domain.Destination
	ID          string
}

// Zero reports whether the handle refers to no message.
func (h MessageHandle) Zero() bool { return h.ID == "" }

// Message is an outgoing message.
type Message struct {
	Text      string
	Image     []byte
	ImageName string
	// ExpireAfter asks the platform to delete the message after the given
	// duration. Zero means the message stays.
	ExpireAfter time.Duration
}

// Messenger delivers and manages messages. Implementations return a
// PermissionDenied coded error when the platform refuses delivery.
type Messenger interface {
	Send(ctx context.Context, dest domain.Destination, msg Message) (MessageHandle, error)
	Edit(ctx context.Context, h MessageHandle, msg Message) error
	Delete(ctx context.Context, h MessageHandle) error
	AddMarker(ctx context.Context, h MessageHandle, marker string) error
}

// MarkerEvent is a member acknowledging a message with a marker.
type MarkerEvent struct {
	Handle MessageHandle
	Entity domain.EntityID
	Marker string
}

// Submission is a text message sent by a member in a destination.
type Submission struct {
	Handle  MessageHandle
	Entity  domain.EntityID
	Content string
}

// Events exposes blocking watches over platform input. Both calls block until
// the matching signal arrives or ctx is done; timeout and cancellation are
// owned by the caller through ctx.
type Events interface {
	AwaitMarker(ctx context.Context, h MessageHandle, entity domain.EntityID) (MarkerEvent, error)
	AwaitSubmission(ctx context.Context, dest domain.Destination, entity domain.EntityID) (Submission, error)
}

// Roles grants and revokes platform roles.
type Roles interface {
	Grant(ctx context.Context, entity domain.Entity, role domain.RoleID, reason string) error
	Revoke(ctx context.Context, entity domain.Entity, role domain.RoleID, reason string) error
	HasRole(ctx context.Context, entity domain.Entity, role domain.RoleID) (bool, error)
}

// Remover kicks an entity from the guild.
type Remover interface {
	Remove(ctx context.Context, entity domain.Entity, reason string) error
}
