package chat

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps connected usernames to their outboxes. It does not own the
// connections; entries live exactly as long as their session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Outbox
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Outbox)}
}

// Register maps username to outbox, replacing any previous entry.
func (r *Registry) Register(username string, outbox *Outbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[username] = outbox
}

// Unregister removes username. Missing names are ignored.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// Release removes username only while it still maps to outbox, so a session
// that was replaced by a newer login cannot evict its successor.
func (r *Registry) Release(username string, outbox *Outbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[username]; ok && current == outbox {
		delete(r.sessions, username)
		return true
	}
	return false
}

// Lookup returns the outbox for username. A false result means the user is
// not connected.
func (r *Registry) Lookup(username string) (*Outbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outbox, ok := r.sessions[username]
	return outbox, ok
}

// Snapshot returns every registered outbox at this instant.
func (r *Registry) Snapshot() []*Outbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.sessions)
}

// Len returns the number of connected users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
