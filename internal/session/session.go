// Package session tracks connected PIXNET clients: their session token,
// remote address, outbound sequence counter, current page, and captured
// input values. A background sweeper removes sessions that have gone
// inactive past a configurable age.
package session

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pixnet/pixnetd/internal/wire"
)

// Session is one connected client's server-side state.
type Session struct {
	mu sync.Mutex

	id           wire.SessionID
	remoteAddr   string
	userAgent    string
	currentPage  string
	sequence     uint32
	inputs       map[string]string
	lastActivity time.Time
	createdAt    time.Time

	// closer, when set, is the connection (or other resource) the owning
	// handler goroutine is blocked reading from. The sweeper closes it to
	// force that goroutine out of a blocking read when it evicts an
	// inactive session, rather than just dropping the registry entry.
	closer io.Closer
}

// NewID generates a random 8-byte session token.
func NewID() (wire.SessionID, error) {
	var id wire.SessionID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("session: generate id: %w", err)
	}
	return id, nil
}

func newSession(id wire.SessionID, remoteAddr, userAgent string) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		remoteAddr:   remoteAddr,
		userAgent:    userAgent,
		inputs:       make(map[string]string),
		lastActivity: now,
		createdAt:    now,
	}
}

// ID returns the session's token.
func (s *Session) ID() wire.SessionID {
	return s.id
}

// RemoteAddr returns the client's network address as captured at handshake.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// UserAgent returns the PIXHND user_agent field.
func (s *Session) UserAgent() string {
	return s.userAgent
}

// Touch marks the session active at the current time.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IsActive reports whether the session has seen activity within maxAge.
func (s *Session) IsActive(maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) < maxAge
}

// CurrentPage returns the name of the page last sent to this client.
func (s *Session) CurrentPage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPage
}

// SetCurrentPage records the page last sent to this client.
func (s *Session) SetCurrentPage(name string) {
	s.mu.Lock()
	s.currentPage = name
	s.mu.Unlock()
}

// NextSequence increments and returns the outbound frame sequence counter.
func (s *Session) NextSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence
}

// SetInput stores a validated input value captured from a PIXINP message.
func (s *Session) SetInput(name, value string) {
	s.mu.Lock()
	s.inputs[name] = value
	s.mu.Unlock()
}

// Input returns a previously stored input value.
func (s *Session) Input(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.inputs[name]
	return v, ok
}

// SetCloser records the resource the owning handler goroutine is blocked
// on, so the sweeper can force it to unblock on eviction.
func (s *Session) SetCloser(c io.Closer) {
	s.mu.Lock()
	s.closer = c
	s.mu.Unlock()
}

// Close closes the session's registered closer, if any. Safe to call more
// than once; errors from an already-closed resource are not meaningful
// here since the goal is just to unblock the handler goroutine.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.closer
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}
