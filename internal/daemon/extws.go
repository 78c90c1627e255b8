package daemon

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

var upgrader = websocket.Upgrader{
	// Local loopback only traffic (§4.3 "no subprotocol negotiation");
	// the extension is the only expected caller, so origin checking adds
	// nothing a capability-scoped localhost port doesn't already give.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleExtensionWS accepts the extension's inbound WebSocket. A new
// connection always replaces whatever was there before — "reconnect is
// passive" (§4.3): the daemon doesn't dial out, it just takes whichever
// socket shows up next.
func (d *Daemon) handleExtensionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[daemon] extension ws upgrade failed: %v", err)
		return
	}

	d.closeExtensionLocked()

	d.extMu.Lock()
	d.extConn = conn
	d.extEnc = protocol.NewEncoder(extWriter{conn})
	d.extMu.Unlock()

	log.Printf("[daemon] extension connected")
	d.extensionReadLoop(conn)
}

// extWriter adapts a *websocket.Conn to io.Writer so the shared
// protocol.Encoder can be reused verbatim for the WS hop: each Write
// call becomes one text frame.
type extWriter struct{ conn *websocket.Conn }

func (w extWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *Daemon) extensionReadLoop(conn *websocket.Conn) {
	defer func() {
		d.extMu.Lock()
		if d.extConn == conn {
			d.extConn = nil
			d.extEnc = nil
		}
		d.extMu.Unlock()
		conn.Close()
		log.Printf("[daemon] extension disconnected")
		// Extension-uplink loss: every pending entry can never complete.
		d.pending.AbortAll("extension disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[daemon] malformed frame from extension, dropping")
			continue
		}
		d.handleExtensionMessage(msg)
	}
}

func (d *Daemon) handleExtensionMessage(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindResponse:
		d.pending.Complete(msg.ReqID, msg.OK, msg.Data, msg.Error)
	default:
		log.Printf("[daemon] ignoring unknown message kind %q from extension", msg.Kind)
	}
}
