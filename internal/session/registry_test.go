package session

import (
	"context"
	"testing"
	"time"
)

func TestCreateLookupRemove(t *testing.T) {
	r := NewRegistry(300*time.Second, 60*time.Second)
	s, err := r.Create("127.0.0.1:9000", "pixnet-client/1.0")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, ok := r.Lookup(s.ID())
	if !ok || got != s {
		t.Fatalf("lookup failed after create")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Count())
	}
	r.Remove(s.ID())
	if _, ok := r.Lookup(s.ID()); ok {
		t.Fatalf("session should be gone after remove")
	}
	if r.Count() != 0 {
		t.Fatalf("expected 0 sessions after remove, got %d", r.Count())
	}
}

func TestIsActiveAndTouch(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, time.Hour)
	s, err := r.Create("127.0.0.1:9000", "ua")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !s.IsActive(50 * time.Millisecond) {
		t.Fatalf("freshly created session should be active")
	}
	time.Sleep(80 * time.Millisecond)
	if s.IsActive(50 * time.Millisecond) {
		t.Fatalf("session should have gone inactive")
	}
	s.Touch()
	if !s.IsActive(50 * time.Millisecond) {
		t.Fatalf("touched session should be active again")
	}
}

func TestSweepEvictsInactiveSessions(t *testing.T) {
	r := NewRegistry(30*time.Millisecond, 10*time.Millisecond)
	s, err := r.Create("127.0.0.1:1", "ua")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go r.Run(ctx)

	time.Sleep(150 * time.Millisecond)
	if _, ok := r.Lookup(s.ID()); ok {
		t.Fatalf("expected inactive session to be swept")
	}
}

type fakeCloser struct{ closed bool }

func (f *fakeCloser) Close() error {
	f.closed = true
	return nil
}

func TestSweepClosesRegisteredCloser(t *testing.T) {
	r := NewRegistry(30*time.Millisecond, 10*time.Millisecond)
	s, err := r.Create("127.0.0.1:1", "ua")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	closer := &fakeCloser{}
	s.SetCloser(closer)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go r.Run(ctx)

	time.Sleep(150 * time.Millisecond)
	if _, ok := r.Lookup(s.ID()); ok {
		t.Fatalf("expected inactive session to be swept")
	}
	if !closer.closed {
		t.Fatalf("expected sweeper to close the session's registered closer")
	}
}

func TestSequenceAndInputs(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	s, err := r.Create("addr", "ua")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := s.NextSequence(); got != 1 {
		t.Fatalf("expected first sequence 1, got %d", got)
	}
	if got := s.NextSequence(); got != 2 {
		t.Fatalf("expected second sequence 2, got %d", got)
	}
	s.SetInput("name_field", "alice")
	v, ok := s.Input("name_field")
	if !ok || v != "alice" {
		t.Fatalf("expected stored input, got %q ok=%v", v, ok)
	}
}
