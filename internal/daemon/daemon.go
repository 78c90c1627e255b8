// Package daemon implements the Router Daemon (C3): the host-wide
// singleton that multiplexes many MCP Helper connections onto one
// extension WebSocket uplink. Its lifecycle (listener setup, PID file,
// ordered shutdown, per-connection goroutine with a line-based decode
// loop) follows the same shape as a local tool-bridge daemon, rescoped
// from "cloud tool bridge" to "local browser-session router."
package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
	"github.com/zhaopengme/browser-agent-extension/internal/correlation"
	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
	"github.com/zhaopengme/browser-agent-extension/internal/session"
)

// Daemon is the Router Daemon process.
type Daemon struct {
	cfg config.Config

	sessions *session.Table
	pending  *correlation.Table
	activity *activityLog

	helperLn net.Listener
	httpSrv  *http.Server

	extMu   sync.Mutex
	extConn *websocket.Conn
	extEnc  *protocol.Encoder

	idleTimer *time.Timer
	idleMu    sync.Mutex

	shutdownOnce sync.Once
	done         chan struct{}
}

func New(cfg config.Config) *Daemon {
	return &Daemon{
		cfg:      cfg,
		sessions: session.NewTable(),
		pending:  correlation.NewTable(),
		activity: newActivityLog(maxActivity),
		done:     make(chan struct{}),
	}
}

// IsRunning reports whether a daemon already owns cfg's socket, by
// attempting to connect to it. A stale socket file with nothing
// listening behind it is treated as "not running."
func IsRunning(cfg config.Config) bool {
	conn, err := DialHelperSocket(cfg, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Start brings up both listeners, writes the PID file, and blocks
// serving until Shutdown is called or a termination signal arrives.
func (d *Daemon) Start(ctx context.Context) error {
	ln, err := d.listenHelperSocket()
	if err != nil {
		return fmt.Errorf("daemon: listen helper socket: %w", err)
	}
	d.helperLn = ln

	if err := d.writePIDFile(); err != nil {
		ln.Close()
		return fmt.Errorf("daemon: write pid file: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleExtensionWS)
	d.httpSrv = &http.Server{Addr: fmt.Sprintf("%s:%d", d.cfg.WSHost, d.cfg.WSPort), Handler: mux}

	go func() {
		if err := d.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[daemon] extension ws server exited: %v", err)
		}
	}()

	go d.acceptHelpers()
	d.resetIdleTimer()

	log.Printf("[daemon] listening: helper=%s ws=%s:%d pid=%d", d.cfg.SocketPath, d.cfg.WSHost, d.cfg.WSPort, os.Getpid())

	<-d.done
	return nil
}

func (d *Daemon) acceptHelpers() {
	for {
		conn, err := d.helperLn.Accept()
		if err != nil {
			select {
			case <-d.done:
				return
			default:
			}
			log.Printf("[daemon] accept error: %v", err)
			return
		}
		hc := newHelperConn(d, conn)
		go hc.serve()
	}
}

// resetIdleTimer re-arms the idle auto-shutdown timer (§4.3). Callers
// invoke it after any change to the session count (REGISTER, session
// removal); idleMu serializes concurrent calls from different
// helperConn goroutines.
func (d *Daemon) resetIdleTimer() {
	d.idleMu.Lock()
	defer d.idleMu.Unlock()
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	if d.sessions.Count() > 0 {
		return
	}
	d.idleTimer = time.AfterFunc(config.IdleShutdown, d.fireIdleShutdown)
}

// exitFunc is process exit, indirected so tests can observe the idle
// auto-shutdown decision without actually killing the test binary.
var exitFunc = os.Exit

func (d *Daemon) fireIdleShutdown() {
	if d.sessions.Count() != 0 {
		return
	}
	log.Printf("[daemon] idle for %s with zero sessions, shutting down", config.IdleShutdown)
	d.Shutdown("idle")
	exitFunc(0)
}

// Shutdown performs the ordered teardown from §5: stop accepting new
// helpers, abort pending entries, close the extension WS, close the
// listener, remove the socket and PID file. Safe to call more than
// once; only the first call does anything.
func (d *Daemon) Shutdown(reason string) {
	d.shutdownOnce.Do(func() {
		close(d.done)
		if d.helperLn != nil {
			d.helperLn.Close()
		}
		d.pending.AbortAll("daemon shutting down: " + reason)
		d.closeExtensionLocked()
		if d.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			d.httpSrv.Shutdown(ctx)
		}
		if runtime.GOOS != "windows" {
			os.Remove(d.cfg.SocketPath)
		}
		os.Remove(d.cfg.PIDPath())
		log.Printf("[daemon] shutdown complete (%s)", reason)
	})
}

func (d *Daemon) closeExtensionLocked() {
	d.extMu.Lock()
	defer d.extMu.Unlock()
	if d.extConn != nil {
		d.extConn.Close()
		d.extConn = nil
		d.extEnc = nil
	}
}

func (d *Daemon) writePIDFile() error {
	return os.WriteFile(d.cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// RecentActivity returns the bounded (last maxActivity) in-memory log
// of completed REQUESTs, oldest first, for the `daemon status` CLI.
func (d *Daemon) RecentActivity() []Activity {
	return d.activity.recent()
}

// Status answers STATUS with live extension-WS state, never a cache.
func (d *Daemon) Status() (connected bool, activeSessions int) {
	d.extMu.Lock()
	connected = d.extConn != nil
	d.extMu.Unlock()
	return connected, d.sessions.Count()
}

// forwardToExtension sends a frame over the extension uplink. Returns
// an error (never blocks) if no extension is currently connected.
func (d *Daemon) forwardToExtension(msg protocol.Message) error {
	d.extMu.Lock()
	enc := d.extEnc
	d.extMu.Unlock()
	if enc == nil {
		return errExtensionNotConnected
	}
	return enc.Encode(msg)
}

var errExtensionNotConnected = fmt.Errorf("extension not connected")
