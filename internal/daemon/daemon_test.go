package daemon

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.Config{
		SocketPath: filepath.Join(t.TempDir(), "test.sock"),
		WSHost:     "127.0.0.1",
		WSPort:     0,
	}
	return New(cfg)
}

type registerResult struct {
	sessionID string
	conn      net.Conn
	msg       protocol.Message
	err       error
}

// registerOverPipe drives one REGISTER handshake against d the way a
// real MCP Helper's wire traffic would, using net.Pipe instead of a
// real Unix socket so the test needs no filesystem/OS listener setup.
func registerOverPipe(d *Daemon) registerResult {
	serverEnd, clientEnd := net.Pipe()
	hc := newHelperConn(d, serverEnd)
	go hc.serve()

	enc := protocol.NewEncoder(clientEnd)
	dec := protocol.NewDecoder(clientEnd)
	if err := enc.Encode(protocol.Message{Kind: protocol.KindRegister}); err != nil {
		return registerResult{err: err}
	}
	msg, _, err := dec.Next()
	if err != nil {
		return registerResult{err: err}
	}
	return registerResult{sessionID: msg.SessionID, conn: clientEnd, msg: msg}
}

func TestRegisterAssignsDistinctSessionIDsConcurrently(t *testing.T) {
	d := newTestDaemon(t)

	const n = 20
	results := make(chan registerResult, n)
	for i := 0; i < n; i++ {
		go func() { results <- registerOverPipe(d) }()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("REGISTER failed: %v", r.err)
		}
		if r.msg.Kind != protocol.KindRegisterOK {
			t.Fatalf("expected REGISTER_OK, got %v (%s)", r.msg.Kind, r.msg.Error)
		}
		if r.sessionID == "" {
			t.Fatalf("expected a non-empty session id")
		}
		if seen[r.sessionID] {
			t.Fatalf("duplicate session id assigned: %s", r.sessionID)
		}
		seen[r.sessionID] = true
		defer r.conn.Close()
	}

	if d.sessions.Count() != n {
		t.Fatalf("expected %d live sessions, got %d", n, d.sessions.Count())
	}
}

// TestRegisterAtCapacityRejectsAndClosesConnection covers the
// helperconn.go fix: a REGISTER_ERROR reply must be followed by the
// daemon closing its end of the connection (§4.3), not leaving it open
// for the rejected helper to retry on.
func TestRegisterAtCapacityRejectsAndClosesConnection(t *testing.T) {
	d := newTestDaemon(t)
	for i := 0; i < config.MaxSessions; i++ {
		if _, err := d.sessions.Register(fmt.Sprintf("filler-%d", i), config.MaxSessions); err != nil {
			t.Fatalf("filler Register %d: %v", i, err)
		}
	}

	r := registerOverPipe(d)
	if r.err != nil {
		t.Fatalf("REGISTER round trip: %v", r.err)
	}
	if r.msg.Kind != protocol.KindRegisterError {
		t.Fatalf("expected REGISTER_ERROR, got %v", r.msg.Kind)
	}

	dec := protocol.NewDecoder(r.conn)
	if _, _, err := dec.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after a rejected REGISTER, got %v", err)
	}
}

func wsURLFor(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForStatus(t *testing.T, d *Daemon, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if connected, _ := d.Status(); connected == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for Status() connected=%v", want)
}

// TestStatusReflectsLiveExtensionState checks that STATUS answers from
// live state rather than a cache: it must flip both when an extension
// dials in and when it disconnects.
func TestStatusReflectsLiveExtensionState(t *testing.T) {
	d := newTestDaemon(t)
	srv := httptest.NewServer(http.HandlerFunc(d.handleExtensionWS))
	defer srv.Close()

	if connected, _ := d.Status(); connected {
		t.Fatalf("expected connected=false before any extension dials in")
	}

	extConn, _, err := websocket.DefaultDialer.Dial(wsURLFor(srv), nil)
	if err != nil {
		t.Fatalf("dial extension ws: %v", err)
	}
	waitForStatus(t, d, true)

	extConn.Close()
	waitForStatus(t, d, false)
}

// TestExtensionDisconnectAbortsPendingWithoutZombies covers §8 scenario
// S4: when the extension connection drops mid-flight, every pending
// entry must resolve (not hang forever) and be removed from the table.
func TestExtensionDisconnectAbortsPendingWithoutZombies(t *testing.T) {
	d := newTestDaemon(t)
	srv := httptest.NewServer(http.HandlerFunc(d.handleExtensionWS))
	defer srv.Close()

	extConn, _, err := websocket.DefaultDialer.Dial(wsURLFor(srv), nil)
	if err != nil {
		t.Fatalf("dial extension ws: %v", err)
	}
	waitForStatus(t, d, true)

	resultCh, err := d.pending.Register("req-1", "sess-1", time.Minute)
	if err != nil {
		t.Fatalf("Register pending: %v", err)
	}

	extConn.Close()

	select {
	case res := <-resultCh:
		if res.OK {
			t.Fatalf("expected the pending entry to be aborted, got an OK result")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending entry was never resolved after extension disconnect (zombie entry)")
	}

	if d.pending.Has("req-1") {
		t.Fatalf("expected the pending entry to be removed after abort")
	}
}

// TestIdleShutdownFiresAtZeroSessions covers §8 scenario S3: with zero
// live sessions, the idle timer must eventually call Shutdown and exit.
func TestIdleShutdownFiresAtZeroSessions(t *testing.T) {
	origIdle := config.IdleShutdown
	origExit := exitFunc
	defer func() {
		config.IdleShutdown = origIdle
		exitFunc = origExit
	}()
	config.IdleShutdown = 15 * time.Millisecond

	exited := make(chan int, 1)
	exitFunc = func(code int) { exited <- code }

	d := newTestDaemon(t)
	d.resetIdleTimer()

	select {
	case code := <-exited:
		if code != 0 {
			t.Fatalf("expected exit code 0, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("idle shutdown never fired")
	}
}

// TestIdleShutdownDoesNotFireWithLiveSessions guards against the
// opposite failure: a live session must suppress the idle timer.
func TestIdleShutdownDoesNotFireWithLiveSessions(t *testing.T) {
	origIdle := config.IdleShutdown
	origExit := exitFunc
	defer func() {
		config.IdleShutdown = origIdle
		exitFunc = origExit
	}()
	config.IdleShutdown = 15 * time.Millisecond

	exited := make(chan int, 1)
	exitFunc = func(code int) { exited <- code }

	d := newTestDaemon(t)
	if _, err := d.sessions.Register("conn1", config.MaxSessions); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d.resetIdleTimer()

	select {
	case code := <-exited:
		t.Fatalf("expected no idle shutdown with a live session, got exit(%d)", code)
	case <-time.After(100 * time.Millisecond):
	}
}
