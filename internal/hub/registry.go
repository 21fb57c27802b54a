package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// Registry maps experiment ids to their current session. It lives for the
// lifetime of the server process and is never persisted.
type Registry struct {
	// Sessions indexed by experiment id
	sessions map[string]*Session

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.Named("hub"),
	}
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Create stores a new running session for id, replacing any previous one.
// Callers abort a live predecessor first.
func (r *Registry) Create(id string, proc Process) *Session {
	sess := newSession(id, proc, r.logger)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("experiment_id", id))
	return sess
}

// Delete cancels the session's process, if any, and removes it.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	if proc := sess.Process(); proc != nil {
		proc.Cancel()
	}
	r.logger.Info("session deleted", zap.String("experiment_id", id))
}

// Len returns the number of sessions, terminal ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Running returns the sessions whose status is running.
func (r *Registry) Running() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, sess := range r.sessions {
		if sess.Status() == domain.SessionStatusRunning {
			out = append(out, sess)
		}
	}
	return out
}
