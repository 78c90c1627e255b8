package helper

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
)

// directServer is the helper's fallback role when no daemon could be
// reached or spawned (§4.4 step 5): it opens the same local WebSocket
// listener the daemon would have, accepts the extension directly, and
// plays the daemon's part for exactly one session (§9 open question
// iii: direct mode accepts exactly one extension; a second inbound
// connection is rejected rather than silently replacing the first,
// since there is no second session to hand it).
//
// It implements io.ReadWriteCloser so the rest of Helper's logic (which
// talks to h.conn through the same newline-delimited protocol.Encoder/
// Decoder pair used for the daemon IPC socket) need not know it isn't
// talking to a stream socket: writes are buffered until a newline and
// flushed as one WebSocket text frame each; reads come from an
// io.Pipe fed by the WS read loop, one frame per line.
type directServer struct {
	ln net.Listener
	hs *http.Server

	mu   sync.Mutex
	conn *websocket.Conn
	buf  bytes.Buffer

	pr *io.PipeReader
	pw *io.PipeWriter

	ready chan struct{}
}

func newDirectServer(cfg config.Config) (*directServer, error) {
	ds := &directServer{ready: make(chan struct{})}
	ds.pr, ds.pw = io.Pipe()

	mux := http.NewServeMux()
	mux.HandleFunc("/", ds.handleWS)
	addr := fmt.Sprintf("%s:%d", cfg.WSHost, cfg.WSPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ds.ln = ln
	ds.hs = &http.Server{Handler: mux}
	go ds.hs.Serve(ln)
	log.Printf("[helper] direct mode: awaiting extension on %s", addr)
	return ds, nil
}

var directUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (ds *directServer) handleWS(w http.ResponseWriter, r *http.Request) {
	ds.mu.Lock()
	if ds.conn != nil {
		ds.mu.Unlock()
		http.Error(w, "direct mode accepts exactly one extension", http.StatusConflict)
		return
	}
	ds.mu.Unlock()

	conn, err := directUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ds.mu.Lock()
	ds.conn = conn
	ds.mu.Unlock()
	close(ds.ready)
	log.Printf("[helper] extension connected directly")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			ds.pw.CloseWithError(err)
			return
		}
		ds.pw.Write(append(raw, '\n'))
	}
}

func (ds *directServer) extensionConnected() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.conn != nil
}

// Read satisfies io.Reader by draining frames the WS read loop wrote.
func (ds *directServer) Read(p []byte) (int, error) {
	return ds.pr.Read(p)
}

// Write buffers bytes until a newline (protocol.Encoder writes a frame
// then a separate "\n"), then sends everything up to it as one WS text
// frame.
func (ds *directServer) Write(p []byte) (int, error) {
	ds.mu.Lock()
	ds.buf.Write(p)
	for {
		line, err := ds.buf.ReadBytes('\n')
		if err != nil {
			// No newline yet: put the partial bytes back and wait for more.
			ds.buf.Write(line)
			break
		}
		conn := ds.conn
		ds.mu.Unlock()
		if conn == nil {
			<-ds.ready
			ds.mu.Lock()
			conn = ds.conn
			ds.mu.Unlock()
		}
		frame := bytes.TrimSuffix(line, []byte{'\n'})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return 0, err
		}
		ds.mu.Lock()
	}
	ds.mu.Unlock()
	return len(p), nil
}

func (ds *directServer) Close() error {
	ds.pw.Close()
	if ds.ln != nil {
		ds.ln.Close()
	}
	ds.mu.Lock()
	if ds.conn != nil {
		ds.conn.Close()
	}
	ds.mu.Unlock()
	return nil
}
