package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	photoannotator "github.com/menta2k/photo-annotator"
)

// ErrSessionNotFound is returned for unknown or unmounted session ids
var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	session    *photoannotator.Session
	lastAccess time.Time
}

// Registry holds the mounted sessions. Sessions idle for longer than the
// TTL given to Run are closed and forgotten.
type Registry struct {
	mu        sync.RWMutex
	annotator *photoannotator.Annotator
	logger    *zap.Logger
	sessions  map[string]*entry
	now       func() time.Time
}

// NewRegistry creates an empty registry whose sessions come from a
func NewRegistry(a *photoannotator.Annotator) *Registry {
	return &Registry{
		annotator: a,
		logger:    a.Options().Logger,
		sessions:  make(map[string]*entry),
		now:       time.Now,
	}
}

// Create mounts a new session
func (r *Registry) Create(ctx context.Context) *photoannotator.Session {
	s := r.annotator.NewSession(ctx)
	r.mu.Lock()
	r.sessions[s.ID] = &entry{session: s, lastAccess: r.now()}
	r.mu.Unlock()
	return s
}

// Get returns the session with the given id and marks it as used
func (r *Registry) Get(id string) (*photoannotator.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastAccess = r.now()
	return e.session, nil
}

// Delete unmounts and forgets the session
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.session.Close()
	return nil
}

// Len returns the number of mounted sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle closes every session not accessed within ttl and returns how
// many were closed
func (r *Registry) EvictIdle(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	var expired []*photoannotator.Session
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastAccess.Before(cutoff) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

// Run evicts idle sessions every interval until ctx is done. A ttl of zero
// disables eviction.
func (r *Registry) Run(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(ttl); n > 0 {
				r.logger.Info("evicted idle sessions",
					zap.Int("count", n),
					zap.Int("remaining", r.Len()),
					zap.Duration("ttl", ttl))
			}
		}
	}
}

// CloseAll unmounts every session
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range sessions {
		e.session.Close()
	}
}
