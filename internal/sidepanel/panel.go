// Package sidepanel implements the Side Panel (C5): the long-lived
// per-browser-window process that dials the daemon's (or a direct
// helper's) WebSocket endpoint, resolves each REQUEST to a tab via the
// binder, and dispatches it to the action executor.
//
// The dial-and-reconnect shape is adapted from the teacher's bridge
// client, rescoped from "dial a cloud backend" to "dial the local
// router" — same retry idiom, with a short fixed delay between attempts
// since everything here is loopback.
package sidepanel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhaopengme/browser-agent-extension/internal/binder"
	"github.com/zhaopengme/browser-agent-extension/internal/config"
	"github.com/zhaopengme/browser-agent-extension/internal/executor"
	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	maxReconnectTries  = 20
)

// Panel is one running Side Panel instance.
type Panel struct {
	cfg  config.Config
	exec executor.Executor
	bind *binder.Binder
	log  *log.Logger
}

// New wires a Panel against the given executor; tabs is the same
// executor passed as the binder's TabProvider since the fake (and any
// real CDP-backed) executor answers both roles.
func New(cfg config.Config, exec executor.Executor, tabs binder.TabProvider) *Panel {
	return &Panel{
		cfg:  cfg,
		exec: exec,
		bind: binder.New(tabs),
		log:  log.New(log.Writer(), "[sidepanel] ", log.LstdFlags),
	}
}

// Run dials the daemon's extension endpoint and serves it until ctx is
// canceled, reconnecting with a fixed backoff up to a small retry cap
// (§4.5 Reconnect) in between.
func (p *Panel) Run(ctx context.Context) error {
	delay := reconnectBaseDelay
	tries := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.wsURL(), nil)
		if err != nil {
			tries++
			if tries > maxReconnectTries {
				return fmt.Errorf("sidepanel: exceeded reconnect attempts: %w", err)
			}
			p.log.Printf("connect failed (%v), retrying in %s", err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		tries = 0
		p.log.Printf("connected to %s", p.wsURL())
		p.serve(ctx, conn)
		p.log.Printf("connection lost, reconnecting")
	}
}

func (p *Panel) wsURL() string {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", p.cfg.WSHost, p.cfg.WSPort), Path: "/"}
	return u.String()
}

func (p *Panel) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			p.log.Printf("dropping malformed frame")
			continue
		}
		p.handle(ctx, conn, msg)
	}
}

func (p *Panel) handle(ctx context.Context, conn *websocket.Conn, msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindRequest:
		p.handleRequest(ctx, conn, msg)
	case protocol.KindSessionStart:
		// No-op by design (§4.5): eagerly allocating a tab here would
		// spawn a window for a session that only ever queries status.
	case protocol.KindSessionEnd:
		p.handleSessionEnd(msg.SessionID)
	default:
		p.log.Printf("ignoring unknown message kind %q", msg.Kind)
	}
}

func (p *Panel) handleRequest(ctx context.Context, conn *websocket.Conn, msg protocol.Message) {
	p.log.Printf("request reqId=%s session=%s action=%s", msg.ReqID, msg.SessionID, msg.Action)

	tabID, err := p.bind.ResolveTab(ctx, msg.SessionID, msg.TabID)
	if err != nil {
		p.reply(conn, msg.ReqID, msg.SessionID, false, nil, err.Error())
		return
	}

	action := protocol.Action(msg.Action)
	if !protocol.IsKnownAction(action) {
		p.reply(conn, msg.ReqID, msg.SessionID, false, nil, "unknown action: "+msg.Action)
		return
	}

	var params map[string]any
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			p.reply(conn, msg.ReqID, msg.SessionID, false, nil, "invalid params: "+err.Error())
			return
		}
	}

	if err := p.ensureContentHelper(ctx, tabID); err != nil {
		p.reply(conn, msg.ReqID, msg.SessionID, false, nil, err.Error())
		return
	}

	result, err := p.exec.Execute(ctx, tabID, action, params)
	if err != nil {
		p.reply(conn, msg.ReqID, msg.SessionID, false, nil, err.Error())
		return
	}
	p.reply(conn, msg.ReqID, msg.SessionID, true, result, "")
}

// ensureContentHelper implements §4.5 step 3: a ping round-trip decides
// whether tabID already has its content helper, and injection only
// happens when the ping says it doesn't. Injection itself is idempotent
// (§8), so a racing double-injection from two near-simultaneous requests
// is harmless, but the ping keeps the common case a single round-trip.
// Executors with nothing to inject simply don't implement the seam.
func (p *Panel) ensureContentHelper(ctx context.Context, tabID string) error {
	injector, ok := p.exec.(executor.ContentInjector)
	if !ok {
		return nil
	}
	present, err := injector.PingContentHelper(ctx, tabID)
	if err != nil {
		return fmt.Errorf("ping content helper: %w", err)
	}
	if present {
		return nil
	}
	if err := injector.InjectContentHelper(ctx, tabID); err != nil {
		return fmt.Errorf("inject content helper: %w", err)
	}
	return nil
}

func (p *Panel) reply(conn *websocket.Conn, reqID, sessionID string, ok bool, data any, errMsg string) {
	resp, err := protocol.NewResponse(reqID, sessionID, ok, data, errMsg)
	if err != nil {
		resp = protocol.Message{Kind: protocol.KindResponse, ReqID: reqID, SessionID: sessionID, OK: false, Error: "failed to encode result"}
	}
	raw, _ := json.Marshal(resp)
	if werr := conn.WriteMessage(websocket.TextMessage, raw); werr != nil {
		p.log.Printf("failed to write response for reqId=%s: %v", reqID, werr)
	}
}

// handleSessionEnd tears down the binding for a session that ended
// elsewhere and best-effort closes its tab (§4.5 Control frames).
func (p *Panel) handleSessionEnd(sessionID string) {
	tabID, had := p.bind.Forget(sessionID)
	if !had {
		return
	}
	if closer, ok := p.exec.(interface{ CloseTab(string) }); ok {
		closer.CloseTab(tabID)
	}
}
