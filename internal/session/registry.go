package session

import (
	"sync"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
)

// Registry maps an entity to its live session and enforces at most one
// concurrent challenge per entity. It is the only shared mutable structure
// between sessions; every entry is inserted at session creation and removed
// exactly once at cleanup.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.EntityID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.EntityID]*Session)}
}

// CreateIfAbsent registers the session unless the entity already has one.
// Atomic with respect to concurrent triggers: exactly one caller wins, the
// other observes an AlreadyExists error and must do nothing further.
func (r *Registry) CreateIfAbsent(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.entity.ID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("a challenge is already running for entity %s", s.entity.ID))
	}
	r.sessions[s.entity.ID] = s
	return nil
}

// Get returns the live session for an entity, if any.
func (r *Registry) Get(entity domain.EntityID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[entity]
	return s, ok
}

// Remove drops the entity's entry and reports whether one was present.
func (r *Registry) Remove(entity domain.EntityID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[entity]; !ok {
		return false
	}
	delete(r.sessions, entity)
	return true
}

// List snapshots every live session.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
