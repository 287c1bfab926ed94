package domain

import "time"

type (
	// GuildID identifies a community.
	GuildID string

	// EntityID identifies a member being challenged.
	EntityID string

	// RoleID identifies a platform role.
	RoleID string
)

// DMChannel is the channel sentinel meaning "deliver the challenge in a
// direct message instead of a guild channel".
const DMChannel = "dm"

// Entity is a member of a guild, as seen by the challenge engine.
type Entity struct {
	ID    EntityID
	Guild GuildID
	// Name is only used in log and audit messages.
	Name string
}

// Destination is where challenge messages are delivered.
type Destination struct {
	Guild   GuildID
	Channel string
	// Entity is the recipient when Channel is DMChannel.
	Entity EntityID
}

// IsDM reports whether the destination is a direct message.
func (d Destination) IsDM() bool { return d.Channel == DMChannel }

// Variant is the presentation and verification style of a challenge.
type Variant string

const (
	// VariantPlain shows the code as obfuscated text.
	VariantPlain Variant = "plain"
	// VariantImage shows the code rendered into a noisy image.
	VariantImage Variant = "image"
	// VariantSimple shows the code rendered into an image without noise.
	VariantSimple Variant = "simple"
)

// State is the lifecycle state of a challenge session. Transitions are
// monotonic: once a terminal state is reached only CleanedUp may follow.
type State string

const (
	StateCreated        State = "created"
	StatePresented      State = "presented"
	StateAwaitingAction State = "awaiting_action"
	StateVerified       State = "verified"
	StateFailed         State = "failed"
	StateTimedOut       State = "timed_out"
	StateCancelled      State = "cancelled"
	StateCleanedUp      State = "cleaned_up"
)

// Terminal reports whether s is a terminal outcome (or past one).
func (s State) Terminal() bool {
	switch s {
	case StateVerified, StateFailed, StateTimedOut, StateCancelled, StateCleanedUp:
		return true
	}
	return false
}

// GuildConfig is the per-guild challenge configuration. The engine reads a
// snapshot at session start and never writes back; changes made through the
// configuration surface only affect sessions started afterwards.
type GuildConfig struct {
	Guild GuildID

	// Channel is the id of the verification channel, or DMChannel.
	Channel string
	// LogsChannel is the id of the audit log channel, empty when disabled.
	LogsChannel string

	Enabled bool
	Variant Variant

	// Timeout bounds each wait for a member reaction or answer.
	Timeout time.Duration

	// Autoroles are granted when the member passes the challenge.
	Autoroles []RoleID
	// TempRole is granted at challenge start and revoked on success.
	TempRole RoleID

	// Retries is how many wrong answers are tolerated before failing.
	Retries int
}
