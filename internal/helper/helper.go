// Package helper implements the MCP Helper (C4): the per-agent process
// that presents an MCP tool server on stdio and bridges each tool call
// to the router, either via the daemon or, failing that, directly to an
// extension it accepts itself.
package helper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
	"github.com/zhaopengme/browser-agent-extension/internal/correlation"
	"github.com/zhaopengme/browser-agent-extension/internal/daemon"
	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

// Mode reports which role the helper settled into at startup.
type Mode string

const (
	ModeDaemon Mode = "daemon"
	ModeDirect Mode = "direct"
)

// Helper is one MCP Helper process instance.
type Helper struct {
	cfg config.Config
	log *log.Logger

	mode      Mode
	sessionID string // "" in direct mode, per §8 S6

	conn    io.ReadWriteCloser
	enc     *protocol.Encoder
	pending *correlation.Table
	counter int64

	// controlCh carries PONG/STATUS_OK replies, which have no reqId to
	// correlate through the pending table. A single in-flight control
	// call at a time is the only pattern the MCP surface produces
	// (status checks aren't pipelined), so one buffered slot suffices.
	controlCh chan protocol.Message

	direct *directServer // non-nil only in direct mode
}

// New resolves the config and returns an unstarted Helper.
func New(cfg config.Config) *Helper {
	return &Helper{
		cfg:       cfg,
		log:       log.New(log.Writer(), "[helper] ", log.LstdFlags),
		controlCh: make(chan protocol.Message, 1),
	}
}

// Run executes the full startup algorithm (§4.4) and then serves the
// MCP stdio surface until ctx is canceled or stdin closes.
func (h *Helper) Run(ctx context.Context) error {
	if err := h.startup(ctx); err != nil {
		return fmt.Errorf("helper: startup: %w", err)
	}
	defer h.shutdown()

	go h.readLoop()

	return h.serveMCP(ctx)
}

// startup implements §4.4 steps 1-5: try the daemon socket, else race to
// spawn one behind a cross-process lock, else fall back to direct mode.
func (h *Helper) startup(ctx context.Context) error {
	if conn, err := dialAndRegister(h.cfg); err == nil {
		h.conn = conn.conn
		h.enc = conn.enc
		h.pending = correlation.NewTable()
		h.sessionID = conn.sessionID
		h.mode = ModeDaemon
		h.log.Printf("connected to existing daemon, session=%s", h.sessionID)
		return nil
	}

	if err := spawnDaemon(h.cfg); err != nil {
		h.log.Printf("could not spawn daemon (%v), falling back to direct mode", err)
	} else if conn, err := waitAndRegister(h.cfg); err == nil {
		h.conn = conn.conn
		h.enc = conn.enc
		h.pending = correlation.NewTable()
		h.sessionID = conn.sessionID
		h.mode = ModeDaemon
		h.log.Printf("spawned daemon, session=%s", h.sessionID)
		return nil
	}

	h.log.Printf("entering direct mode: acting as daemon for a single extension")
	ds, err := newDirectServer(h.cfg)
	if err != nil {
		return fmt.Errorf("direct mode listen: %w", err)
	}
	h.direct = ds
	h.conn = ds
	h.enc = protocol.NewEncoder(ds)
	h.pending = correlation.NewTable()
	h.mode = ModeDirect
	return nil
}

type registeredConn struct {
	conn      net.Conn
	enc       *protocol.Encoder
	sessionID string
}

func dialAndRegister(cfg config.Config) (*registeredConn, error) {
	conn, err := daemon.DialHelperSocket(cfg, 300*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return registerOver(conn)
}

func waitAndRegister(cfg config.Config) (*registeredConn, error) {
	deadline := time.Now().Add(config.StartupLockWait)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := daemon.DialHelperSocket(cfg, 300*time.Millisecond)
		if err == nil {
			return registerOver(conn)
		}
		lastErr = err
		time.Sleep(150 * time.Millisecond)
	}
	return nil, fmt.Errorf("daemon socket never came up: %w", lastErr)
}

func registerOver(conn net.Conn) (*registeredConn, error) {
	enc := protocol.NewEncoder(conn)
	dec := protocol.NewDecoder(conn)
	if err := enc.Encode(protocol.Message{Kind: protocol.KindRegister}); err != nil {
		conn.Close()
		return nil, err
	}
	msg, _, err := dec.Next()
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch msg.Kind {
	case protocol.KindRegisterOK:
		return &registeredConn{conn: conn, enc: enc, sessionID: msg.SessionID}, nil
	case protocol.KindRegisterError:
		conn.Close()
		return nil, fmt.Errorf("daemon rejected REGISTER: %s", msg.Error)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected reply to REGISTER: %s", msg.Kind)
	}
}

// readLoop consumes frames arriving on the daemon/extension connection
// and resolves the matching pending entry, mirroring the daemon's own
// per-connection decode loop.
func (h *Helper) readLoop() {
	dec := protocol.NewDecoder(h.conn)
	for {
		msg, malformed, err := dec.Next()
		if malformed > 0 {
			h.log.Printf("dropped %d malformed frame(s)", malformed)
		}
		if err != nil {
			if err != io.EOF {
				h.log.Printf("connection read error: %v", err)
			}
			h.pending.AbortAll("daemon connection lost")
			return
		}
		switch msg.Kind {
		case protocol.KindResponse:
			h.pending.Complete(msg.ReqID, msg.OK, msg.Data, msg.Error)
		case protocol.KindPong, protocol.KindStatusOK:
			select {
			case h.controlCh <- msg:
			default:
			}
		default:
			h.log.Printf("ignoring unexpected message kind %q", msg.Kind)
		}
	}
}

// callAction sends one REQUEST and blocks for its RESPONSE or timeout.
func (h *Helper) callAction(ctx context.Context, action protocol.Action, tabID string, params map[string]any) (json.RawMessage, error) {
	reqID := fmt.Sprintf("%s:%d", h.sessionLabel(), atomic.AddInt64(&h.counter, 1))

	resultCh, err := h.pending.Register(reqID, h.sessionID, config.RequestDeadline)
	if err != nil {
		return nil, err
	}

	msg, err := protocol.NewRequest(reqID, h.sessionID, string(action), tabID, params)
	if err != nil {
		return nil, err
	}
	if err := h.enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case res := <-resultCh:
		if !res.OK {
			return nil, fmt.Errorf("%s", res.Err)
		}
		return res.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connectionStatus answers browser_get_connection_status (§4.4): in
// direct mode it's answered locally (there is no daemon to ask), in
// daemon mode it round-trips a STATUS/STATUS_OK exchange.
func (h *Helper) connectionStatus(ctx context.Context) (connected bool, mode Mode, sessionID string) {
	if h.mode == ModeDirect {
		return h.direct.extensionConnected(), ModeDirect, ""
	}
	if err := h.enc.Encode(protocol.Message{Kind: protocol.KindStatus}); err != nil {
		return false, ModeDaemon, h.sessionID
	}
	select {
	case msg := <-h.controlCh:
		if msg.Kind == protocol.KindStatusOK {
			return msg.ExtensionConnected, ModeDaemon, h.sessionID
		}
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}
	return false, ModeDaemon, h.sessionID
}

func (h *Helper) sessionLabel() string {
	if h.sessionID != "" {
		return h.sessionID
	}
	return "direct"
}

// shutdown implements §4.4's graceful-shutdown sequence with a
// force-exit watchdog as the outermost guarantee (installed by the
// caller in cmd/browseragent; shutdown itself only does the local part).
func (h *Helper) shutdown() {
	if h.mode == ModeDaemon && h.sessionID != "" {
		h.enc.Encode(protocol.Message{Kind: protocol.KindDisconnect, SessionID: h.sessionID})
	}
	h.pending.AbortAll("shutting down")
	if h.conn != nil {
		h.conn.Close()
	}
	if h.direct != nil {
		h.direct.Close()
	}
}
