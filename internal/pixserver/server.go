// Package pixserver implements the PIXNET server side of the protocol: the
// TCP accept loop, handshake validation, session bookkeeping, and the
// per-connection dispatch loop over PIXEVT/PIXINP/PIXPNG/PIXBYE messages.
package pixserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/pixnet/pixnetd/internal/pxnt"
	"github.com/pixnet/pixnetd/internal/registry"
	"github.com/pixnet/pixnetd/internal/session"
	"github.com/pixnet/pixnetd/internal/wire"
	"github.com/pixnet/pixnetd/internal/wireio"
)

// Config controls server behavior independent of the listening address,
// which is supplied separately to Run.
type Config struct {
	MaxConns      int
	SessionMaxAge time.Duration
	SweepInterval time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	Verbose       bool
}

// Stats are atomic counters exposed for operational visibility.
type Stats struct {
	Connections    int64
	PagesServed    int64
	Errors         int64
	BytesSent      int64
	BytesReceived  int64
	ActiveSessions int64
}

// Server dispatches connections against a content Registry.
type Server struct {
	cfg      Config
	registry *registry.Registry
	sessions *session.Registry
	stats    Stats

	connSem chan struct{}
}

// New builds a Server over reg. cfg.SessionMaxAge/SweepInterval govern the
// embedded session registry's sweeper.
func New(cfg Config, reg *registry.Registry) *Server {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 64
	}
	s := &Server{
		cfg:      cfg,
		registry: reg,
		sessions: session.NewRegistry(cfg.SessionMaxAge, cfg.SweepInterval),
		connSem:  make(chan struct{}, cfg.MaxConns),
	}
	if cfg.Verbose {
		for _, name := range reg.Names() {
			page, _ := reg.Page(name)
			spew.Dump(debugPage{Name: name, Header: page.Header, Metadata: page.Metadata, Categories: page.Categories})
		}
	}
	return s
}

type debugPage struct {
	Name       string
	Header     pxnt.Header
	Metadata   pxnt.Metadata
	Categories []pxnt.Category
}

// Stats returns a snapshot of the server's atomic counters.
func (s *Server) Stats() Stats {
	return Stats{
		Connections:    atomic.LoadInt64(&s.stats.Connections),
		PagesServed:    atomic.LoadInt64(&s.stats.PagesServed),
		Errors:         atomic.LoadInt64(&s.stats.Errors),
		BytesSent:      atomic.LoadInt64(&s.stats.BytesSent),
		BytesReceived:  atomic.LoadInt64(&s.stats.BytesReceived),
		ActiveSessions: int64(s.sessions.Count()),
	}
}

// Run binds host:port and serves connections until ctx is canceled.
func (s *Server) Run(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("pixserver: listen %s: %w", addr, err)
	}
	log.Printf("pixnet: listening on %s", addr)

	go s.sessions.Run(ctx)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				atomic.AddInt64(&s.stats.Errors, 1)
				log.Printf("pixnet: accept error: %v", err)
				continue
			}
		}

		select {
		case s.connSem <- struct{}{}:
		default:
			log.Printf("pixnet: rejecting %s: at max connections (%d)", conn.RemoteAddr(), s.cfg.MaxConns)
			conn.Close()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-s.connSem }()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	atomic.AddInt64(&s.stats.Connections, 1)

	remote := conn.RemoteAddr().String()

	h, err := s.readHandshake(conn)
	if err != nil {
		atomic.AddInt64(&s.stats.Errors, 1)
		log.Printf("pixnet: %s handshake failed: %v", remote, err)
		if errors.Is(err, wire.ErrWrongMagic) {
			s.sendError(conn, wire.ErrCodeProtocolError, "expected PIXHND handshake")
		}
		return
	}
	if h.Version != wire.ProtocolVersion {
		s.sendError(conn, wire.ErrCodeUnsupportedVersion, fmt.Sprintf("unsupported version %d", h.Version))
		return
	}

	sess, err := s.sessions.Create(remote, h.UserAgent)
	if err != nil {
		atomic.AddInt64(&s.stats.Errors, 1)
		log.Printf("pixnet: %s session create failed: %v", remote, err)
		return
	}
	defer s.sessions.Remove(sess.ID())
	sess.SetCloser(conn)

	ack := &wire.Ack{Version: wire.ProtocolVersion, SessionID: sess.ID(), ServerCaps: 0}
	if err := s.writeAll(conn, wire.MarshalAck(ack)); err != nil {
		log.Printf("pixnet: %s ack write failed: %v", remote, err)
		return
	}

	if err := s.sendPage(conn, sess, "index"); err != nil {
		log.Printf("pixnet: %s initial page send failed: %v", remote, err)
		return
	}

	s.dispatchLoop(ctx, conn, sess)
}

// handshakeTimeout bounds the wait for a client's PIXHND; later reads use
// Config.ReadTimeout.
const handshakeTimeout = 10 * time.Second

func (s *Server) readHandshake(conn net.Conn) (*wire.Handshake, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	return wire.ReadHandshake(conn)
}

func (s *Server) dispatchLoop(ctx context.Context, conn net.Conn, sess *session.Session) {
	remote := sess.RemoteAddr()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		magic, err := wire.ReadMagic(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("pixnet: %s read error: %v", remote, err)
			}
			return
		}

		switch magic {
		case wire.MagicEvent:
			ev, err := wire.ReadEventBody(conn)
			if err != nil {
				log.Printf("pixnet: %s bad event: %v", remote, err)
				return
			}
			if !s.checkSessionID(conn, sess, ev.SessionID) {
				return
			}
			sess.Touch()
			s.handleEvent(conn, sess, ev)

		case wire.MagicInput:
			in, err := wire.ReadInputBody(conn)
			if err != nil {
				log.Printf("pixnet: %s bad input: %v", remote, err)
				return
			}
			if !s.checkSessionID(conn, sess, in.SessionID) {
				return
			}
			sess.Touch()
			sess.SetInput(fmt.Sprintf("zone_%d", in.ZoneID), in.Payload)

		case wire.MagicPing:
			ping, err := wire.ReadPingBody(conn)
			if err != nil {
				log.Printf("pixnet: %s bad ping: %v", remote, err)
				return
			}
			if !s.checkSessionID(conn, sess, ping.SessionID) {
				return
			}
			sess.Touch()
			pong := &wire.Pong{SessionID: sess.ID(), Timestamp: ping.Timestamp}
			if err := s.writeAll(conn, wire.MarshalPong(pong)); err != nil {
				return
			}

		case wire.MagicBye:
			if _, err := wire.ReadByeBody(conn); err != nil {
				log.Printf("pixnet: %s bad bye: %v", remote, err)
			}
			return

		default:
			s.sendError(conn, wire.ErrCodeProtocolError, fmt.Sprintf("unexpected message %q", magic))
			atomic.AddInt64(&s.stats.Errors, 1)
			return
		}
	}
}

// checkSessionID rejects a message whose embedded session_id doesn't match
// the session bound to this connection, sending PIXERR/invalid-session and
// reporting false so the caller tears down the connection. Mirrors the
// reference server's session_id check on every PIXEVT/PIXINP/PIXPNG.
func (s *Server) checkSessionID(conn net.Conn, sess *session.Session, got wire.SessionID) bool {
	if got == sess.ID() {
		return true
	}
	log.Printf("pixnet: %s session id mismatch", sess.RemoteAddr())
	s.sendError(conn, wire.ErrCodeInvalidSession, "session id does not match this connection")
	atomic.AddInt64(&s.stats.Errors, 1)
	return false
}

// handleEvent applies navigation/event semantics: a NAVIGATE category's
// event carries a name of the form "nav_<target>" which the client echoes
// back verbatim in Event.Name; anything else is treated as an opaque
// application event and simply acknowledged by staying connected.
func (s *Server) handleEvent(conn net.Conn, sess *session.Session, ev *wire.Event) {
	const navPrefix = "nav_"
	if len(ev.Name) > len(navPrefix) && ev.Name[:len(navPrefix)] == navPrefix {
		target := ev.Name[len(navPrefix):]
		if err := s.sendPage(conn, sess, target); err != nil {
			log.Printf("pixnet: %s navigate to %q failed: %v", sess.RemoteAddr(), target, err)
		}
	}
}

func (s *Server) sendPage(conn net.Conn, sess *session.Session, name string) error {
	page, ok := s.registry.Page(name)
	if !ok {
		s.sendError(conn, wire.ErrCodeFileNotFound, fmt.Sprintf("no such page %q", name))
		return fmt.Errorf("page %q not found", name)
	}
	sess.SetCurrentPage(name)

	cats := make([]wire.CategoryRecord, 0, len(page.Categories))
	for _, c := range page.Categories {
		cats = append(cats, wire.CategoryRecord{
			ID:           c.ID,
			Name:         c.Name,
			BehaviorID:   uint8(c.BehaviorID),
			Priority:     c.Priority,
			BehaviorData: c.BehaviorData,
		})
	}

	frame := &wire.Frame{
		FrameType:   wire.FrameFull,
		Sequence:    sess.NextSequence(),
		TimestampUS: uint64(time.Now().UnixMicro()),
		Version:     wire.ProtocolVersion,
		Width:       page.Header.Width,
		Height:      page.Header.Height,
		Format:      uint8(page.Header.PixelFormat),
		PixelData:   page.Pixels,
		CategoryMap: page.CategoryMap,
		Categories:  cats,
	}
	frame.Checksum = wire.ComputeChecksum(frame.PixelData, frame.CategoryMap)

	buf, err := wire.MarshalFrame(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := s.writeAll(conn, buf); err != nil {
		return err
	}
	atomic.AddInt64(&s.stats.PagesServed, 1)
	return nil
}

func (s *Server) sendError(conn net.Conn, code wire.ErrorCode, message string) {
	buf, err := wire.MarshalError(&wire.ErrorMessage{Code: code, Message: message})
	if err != nil {
		return
	}
	_ = s.writeAll(conn, buf)
}

func (s *Server) writeAll(conn net.Conn, buf []byte) error {
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := wireio.WriteAll(conn, buf); err != nil {
		atomic.AddInt64(&s.stats.Errors, 1)
		return err
	}
	atomic.AddInt64(&s.stats.BytesSent, int64(len(buf)))
	return nil
}
