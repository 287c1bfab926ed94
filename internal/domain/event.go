package domain

const (
	EventNameChallengePassed    = "challenge.passed"
	EventNameChallengeFailed    = "challenge.failed"
	EventNameChallengeCancelled = "challenge.cancelled"
)

type EventChallengePassed struct {
	SessionID string
	Entity    Entity
	// Actions describes the role changes applied on success.
	Actions string
}

func (EventChallengePassed) Name() string { return EventNameChallengePassed }

type EventChallengeFailed struct {
	SessionID string
	Entity    Entity
	// Reason is either "failed" (retries exhausted) or "timed_out".
	Reason string
}

func (EventChallengeFailed) Name() string { return EventNameChallengeFailed }

type EventChallengeCancelled struct {
	SessionID string
	Entity    Entity
}

func (EventChallengeCancelled) Name() string { return EventNameChallengeCancelled }
