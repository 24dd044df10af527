package session

import (
	"fmt"
	"sync"

	"github.com/domthera/bngblaster/internal/timer"
)

// Registry owns every active and idle session, keyed by the composite
// (ifindex, outer-vlan, inner-vlan) Key. Terminated sessions are
// pushed onto an idle free list and reused by subsequent Acquire
// calls rather than reallocated, matching spec.md §3's "Ownership"
// section: "released sessions are queued on an idle list for reuse."
type Registry struct {
	mu      sync.Mutex
	byKey   map[Key]*Session
	byID    map[uint32]*Session
	idle    []*Session
	nextID  uint32
	Timers  *timer.Root
}

// NewRegistry creates an empty session registry bound to the given
// timer wheel root.
func NewRegistry(timers *timer.Root) *Registry {
	return &Registry{
		byKey:  make(map[Key]*Session),
		byID:   make(map[uint32]*Session),
		Timers: timers,
	}
}

// Acquire returns a session for key, reusing an idle session from the
// free list if one is available, or allocating a fresh one otherwise.
func (r *Registry) Acquire(key Key, kind Kind) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists {
		return nil, fmt.Errorf("session already exists for key %+v", key)
	}

	var s *Session
	if n := len(r.idle); n > 0 {
		s = r.idle[n-1]
		r.idle = r.idle[:n-1]
		s.reset(key, kind)
	} else {
		r.nextID++
		s = newSession(r.nextID, key, kind, r.Timers)
	}
	r.byKey[key] = s
	r.byID[s.ID] = s
	return s, nil
}

// Lookup returns the session for key, if any.
func (r *Registry) Lookup(key Key) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byKey[key]
	return s, ok
}

// LookupID returns the session with the given session id, if any.
func (r *Registry) LookupID(id uint32) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Release removes the session from the active indices, cancels its
// timers and pushes it onto the idle free list for reuse.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, s.key)
	delete(r.byID, s.ID)
	s.cancelTimers()
	r.idle = append(r.idle, s)
}

// All returns every active session, for the control socket's
// terminate-all and list handlers.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Count returns the number of active (non-idle) sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}
