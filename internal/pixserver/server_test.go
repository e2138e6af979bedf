package pixserver

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixnet/pixnetd/internal/pxnt"
	"github.com/pixnet/pixnetd/internal/registry"
	"github.com/pixnet/pixnetd/internal/wire"
	"github.com/pixnet/pixnetd/internal/wireio"
)

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func dialTimeout(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, 2*time.Second)
}

func writeTestPage(t *testing.T, dir, name string, cats []pxnt.Category) {
	t.Helper()
	width, height := uint16(2), uint16(2)
	page := &pxnt.Page{
		Header: pxnt.Header{
			Width:       width,
			Height:      height,
			PixelFormat: pxnt.FormatRGBA8,
			Compression: pxnt.CompressionNone,
		},
		Metadata:         pxnt.Metadata{Title: name, CustomFields: map[string]string{}},
		Pixels:           make([]byte, pxnt.PixelBufferSize(width, height)),
		CategoryMap:      make([]byte, pxnt.CategoryMapSize(width, height)),
		Categories:       cats,
		ExtendedMetadata: map[uint8][]byte{},
	}
	out, err := pxnt.EncodeToBytes(page)
	if err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".pxnt"), out, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestHandshakeAndInitialPageSmoke(t *testing.T) {
	dir := t.TempDir()
	writeTestPage(t, dir, "index", nil)

	reg, err := registry.Open(dir, "")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer reg.Close()

	srv := New(Config{MaxConns: 4, SessionMaxAge: time.Minute, SweepInterval: time.Minute}, reg)

	ln := mustListen(t)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		srv.handleConnection(ctx, conn)
	}()

	client, err := dialTimeout(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	hsBuf, err := wire.MarshalHandshake(&wire.Handshake{Version: wire.ProtocolVersion, Capabilities: 1, UserAgent: "test-client"})
	if err != nil {
		t.Fatalf("marshal handshake: %v", err)
	}
	if err := wireio.WriteAll(client, hsBuf); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	ack, err := wire.ReadAck(client)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Version != wire.ProtocolVersion {
		t.Fatalf("unexpected ack version: %d", ack.Version)
	}

	frame, err := wire.ReadFrame(client)
	if err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if frame.Width != 2 || frame.Height != 2 {
		t.Fatalf("unexpected frame dims: %dx%d", frame.Width, frame.Height)
	}
	if err := wire.VerifyChecksum(frame); err != nil {
		t.Fatalf("checksum should verify: %v", err)
	}
}

func TestBadMagicProducesProtocolError(t *testing.T) {
	dir := t.TempDir()
	writeTestPage(t, dir, "index", nil)
	reg, err := registry.Open(dir, "")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer reg.Close()

	srv := New(Config{MaxConns: 4, SessionMaxAge: time.Minute, SweepInterval: time.Minute}, reg)
	ln := mustListen(t)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		srv.handleConnection(ctx, conn)
	}()

	client, err := dialTimeout(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("XXXXXX")); err != nil {
		t.Fatalf("write bad magic: %v", err)
	}

	errMsg, err := wire.ReadError(client)
	if err != nil {
		t.Fatalf("expected a PIXERR for bad handshake magic: %v", err)
	}
	if errMsg.Code != wire.ErrCodeProtocolError {
		t.Fatalf("expected ErrCodeProtocolError, got %d", errMsg.Code)
	}
}

func TestSweeperClosesSocketOfIdleSession(t *testing.T) {
	dir := t.TempDir()
	writeTestPage(t, dir, "index", nil)
	reg, err := registry.Open(dir, "")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer reg.Close()

	// ReadTimeout is deliberately much longer than SessionMaxAge: the only
	// thing that can close the socket within the test's window is the
	// sweeper reaching into the session and closing its registered conn.
	srv := New(Config{
		MaxConns:      4,
		SessionMaxAge: 30 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
		ReadTimeout:   time.Minute,
	}, reg)
	ln := mustListen(t)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		srv.handleConnection(ctx, conn)
	}()

	client, err := dialTimeout(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	hsBuf, _ := wire.MarshalHandshake(&wire.Handshake{Version: wire.ProtocolVersion, UserAgent: "idle-test"})
	if err := wireio.WriteAll(client, hsBuf); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	if _, err := wire.ReadAck(client); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if _, err := wire.ReadFrame(client); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadMagic(client); err == nil {
		t.Fatalf("expected read to fail once the server closes the idle socket")
	}
}

func TestMismatchedSessionIDIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeTestPage(t, dir, "index", nil)
	reg, err := registry.Open(dir, "")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer reg.Close()

	srv := New(Config{MaxConns: 4, SessionMaxAge: time.Minute, SweepInterval: time.Minute}, reg)
	ln := mustListen(t)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		srv.handleConnection(ctx, conn)
	}()

	client, err := dialTimeout(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	hsBuf, _ := wire.MarshalHandshake(&wire.Handshake{Version: wire.ProtocolVersion, UserAgent: "mismatch-test"})
	if err := wireio.WriteAll(client, hsBuf); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	if _, err := wire.ReadAck(client); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if _, err := wire.ReadFrame(client); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}

	var bogus wire.SessionID
	bogus[0] = 0xff
	evBuf, err := wire.MarshalEvent(&wire.Event{SessionID: bogus, Name: "nav_index"})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := wireio.WriteAll(client, evBuf); err != nil {
		t.Fatalf("write event: %v", err)
	}

	errMsg, err := wire.ReadError(client)
	if err != nil {
		t.Fatalf("expected a PIXERR for mismatched session id: %v", err)
	}
	if errMsg.Code != wire.ErrCodeInvalidSession {
		t.Fatalf("expected ErrCodeInvalidSession, got %d", errMsg.Code)
	}
}

func TestNavigateEventSendsTargetPage(t *testing.T) {
	dir := t.TempDir()
	navData := append([]byte{6}, []byte("sports")...)
	navData = append(navData, 0x00, 0x00)
	writeTestPage(t, dir, "index", []pxnt.Category{
		{ID: 1, Name: "nav_sports", BehaviorID: pxnt.BehaviorNavigate, BehaviorData: navData},
	})
	writeTestPage(t, dir, "sports", nil)

	reg, err := registry.Open(dir, "")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer reg.Close()

	srv := New(Config{MaxConns: 4, SessionMaxAge: time.Minute, SweepInterval: time.Minute}, reg)
	ln := mustListen(t)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		srv.handleConnection(ctx, conn)
	}()

	client, err := dialTimeout(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	hsBuf, _ := wire.MarshalHandshake(&wire.Handshake{Version: wire.ProtocolVersion, UserAgent: "nav-test"})
	if err := wireio.WriteAll(client, hsBuf); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	if _, err := wire.ReadAck(client); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if _, err := wire.ReadFrame(client); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}

	evBuf, err := wire.MarshalEvent(&wire.Event{Name: "nav_sports"})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := wireio.WriteAll(client, evBuf); err != nil {
		t.Fatalf("write event: %v", err)
	}

	frame, err := wire.ReadFrame(client)
	if err != nil {
		t.Fatalf("read navigated frame: %v", err)
	}
	if frame.Width != 2 || frame.Height != 2 {
		t.Fatalf("unexpected dims after navigate: %dx%d", frame.Width, frame.Height)
	}
}
