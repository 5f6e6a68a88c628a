package server

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the process-wide table of live sessions.  Inserts and
// removals are serialized; everything else about a session stays
// confined to its own goroutine.
type Registry struct {
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // insertion order, for diagnostic enumeration
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Add registers a session.  Registering the same ID twice is a bug in
// the listener; the second insert is refused.
func (r *Registry) Add(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.ID]; ok {
		r.log.Error().Str("session", sess.ID).Msg("session registered twice")
		return false
	}
	r.sessions[sess.ID] = sess
	r.order = append(r.order, sess.ID)
	return true
}

// Remove deregisters a session and reports whether it was present.
// Removing twice is a no-op, not an error: disconnect detection and
// explicit teardown may race.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get looks a session up by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ForEach calls fn for every live session in insertion order.  The
// snapshot is taken under the lock; fn runs outside it, so it may
// remove sessions.
func (r *Registry) ForEach(fn func(*Session)) {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.sessions[id])
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		fn(s)
	}
}
