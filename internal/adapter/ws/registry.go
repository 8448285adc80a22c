package ws

import (
	"context"
	"sync"

	cfotel "github.com/Strob0t/collectibles/internal/adapter/otel"
)

// Registry is the set of sessions believed to be live. It holds non-owning
// references: removing a session never closes its connection.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	metrics  *cfotel.Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *cfotel.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		metrics:  metrics,
	}
}

// Register adds s and reports whether it was newly added. Registering an
// identity that is already present is a no-op.
func (r *Registry) Register(s Session) bool {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID()]; ok {
		r.mu.Unlock()
		return false
	}
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	r.metrics.SessionOpened(context.Background())
	return true
}

// Unregister removes s and reports whether it was present.
func (r *Registry) Unregister(s Session) bool {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID()]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.ID())
	r.mu.Unlock()

	r.metrics.SessionClosed(context.Background())
	return true
}

// Snapshot returns a point-in-time copy of the registered sessions in no
// particular order. The slice is owned by the caller.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
