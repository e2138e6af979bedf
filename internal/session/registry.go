package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pixnet/pixnetd/internal/wire"
)

// Registry is a concurrency-safe table of live sessions, swept periodically
// to evict clients that have gone quiet.
type Registry struct {
	mu       sync.RWMutex
	sessions map[wire.SessionID]*Session

	maxAge        time.Duration
	sweepInterval time.Duration
	logPrefix     string
}

// NewRegistry builds a Registry. Call Run in a goroutine to start the
// background sweeper.
func NewRegistry(maxAge, sweepInterval time.Duration) *Registry {
	if maxAge <= 0 {
		maxAge = 300 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 60 * time.Second
	}
	return &Registry{
		sessions:      make(map[wire.SessionID]*Session),
		maxAge:        maxAge,
		sweepInterval: sweepInterval,
		logPrefix:     "session:",
	}
}

// Create allocates a fresh session and inserts it into the registry.
func (r *Registry) Create(remoteAddr, userAgent string) (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	s := newSession(id, remoteAddr, userAgent)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s, nil
}

// Lookup returns the session for id, if still registered.
func (r *Registry) Lookup(id wire.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the registry, e.g. on PIXBYE.
func (r *Registry) Remove(id wire.SessionID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run sweeps inactive sessions once per sweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if !s.IsActive(r.maxAge) {
			delete(r.sessions, id)
			if err := s.Close(); err != nil {
				log.Printf("%s evicted id=%x remote=%s idle past %s (close: %v)", r.logPrefix, id, s.RemoteAddr(), r.maxAge, err)
			} else {
				log.Printf("%s evicted id=%x remote=%s idle past %s", r.logPrefix, id, s.RemoteAddr(), r.maxAge)
			}
		}
	}
}
