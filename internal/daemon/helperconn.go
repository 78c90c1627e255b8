package daemon

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"time"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
	"github.com/zhaopengme/browser-agent-extension/internal/correlation"
	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

// helperConn is one MCP Helper's connection to the daemon. Its decode
// loop owns nothing but itself; every mutation of shared state goes
// through d.sessions / d.pending, which are safe for concurrent use.
type helperConn struct {
	d         *Daemon
	conn      net.Conn
	enc       *protocol.Encoder
	sessionID string // set once REGISTER succeeds; "" until then
}

func newHelperConn(d *Daemon, conn net.Conn) *helperConn {
	return &helperConn{d: d, conn: conn, enc: protocol.NewEncoder(conn)}
}

func (hc *helperConn) serve() {
	defer hc.conn.Close()
	dec := protocol.NewDecoder(hc.conn)

	for {
		msg, malformed, err := dec.Next()
		if malformed > 0 {
			log.Printf("[daemon] dropped %d malformed frame(s) from helper", malformed)
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[daemon] helper connection error: %v", err)
			}
			hc.onClose()
			return
		}
		if hc.handle(msg) {
			return
		}
	}
}

// handle dispatches one frame and reports whether the connection must
// now be closed (true only for a rejected REGISTER, §4.3).
func (hc *helperConn) handle(msg protocol.Message) bool {
	switch msg.Kind {
	case protocol.KindRegister:
		return hc.handleRegister()
	case protocol.KindRequest:
		hc.handleRequest(msg)
	case protocol.KindPing:
		if hc.sessionID != "" {
			hc.d.sessions.Touch(hc.sessionID)
		}
		hc.enc.Encode(protocol.Message{Kind: protocol.KindPong})
	case protocol.KindStatus:
		connected, active := hc.d.Status()
		hc.enc.Encode(protocol.Message{
			Kind:               protocol.KindStatusOK,
			ExtensionConnected: connected,
			ActiveSessions:     active,
		})
	case protocol.KindActivity:
		raw, _ := json.Marshal(hc.d.RecentActivity())
		hc.enc.Encode(protocol.Message{Kind: protocol.KindActivityOK, Data: raw})
	case protocol.KindDisconnect:
		hc.terminateSession(msg.SessionID, "disconnected")
	default:
		log.Printf("[daemon] ignoring unknown message kind %q from helper", msg.Kind)
	}
	return false
}

// handleRegister reports true (close the connection) when registration
// is rejected: §4.3 REGISTER requires that a REGISTER_ERROR reply is
// followed by closing the connection, not leaving it open for retries.
func (hc *helperConn) handleRegister() bool {
	s, err := hc.d.sessions.Register(hc, config.MaxSessions)
	if err != nil {
		hc.enc.Encode(protocol.Message{Kind: protocol.KindRegisterError, Error: err.Error()})
		return true
	}
	hc.sessionID = s.ID
	hc.d.resetIdleTimer()
	hc.d.forwardToExtension(protocol.Message{Kind: protocol.KindSessionStart, SessionID: s.ID})
	hc.enc.Encode(protocol.Message{Kind: protocol.KindRegisterOK, SessionID: s.ID})
	return false
}

func (hc *helperConn) handleRequest(msg protocol.Message) {
	if _, ok := hc.d.sessions.Get(msg.SessionID); !ok {
		resp, _ := protocol.NewResponse(msg.ReqID, msg.SessionID, false, nil, "unknown session")
		hc.enc.Encode(resp)
		return
	}
	if hc.d.pending.Has(msg.ReqID) {
		resp, _ := protocol.NewResponse(msg.ReqID, msg.SessionID, false, nil, "reqId already in flight")
		hc.enc.Encode(resp)
		return
	}

	resultCh, err := hc.d.pending.Register(msg.ReqID, msg.SessionID, config.RequestDeadline)
	if err != nil {
		resp, _ := protocol.NewResponse(msg.ReqID, msg.SessionID, false, nil, err.Error())
		hc.enc.Encode(resp)
		return
	}

	if err := hc.d.forwardToExtension(msg); err != nil {
		hc.d.pending.Complete(msg.ReqID, false, nil, "extension not connected")
		resp, _ := protocol.NewResponse(msg.ReqID, msg.SessionID, false, nil, "extension not connected")
		hc.enc.Encode(resp)
		return
	}

	go hc.awaitResult(msg.ReqID, msg.SessionID, msg.Action, time.Now(), resultCh)
}

func (hc *helperConn) awaitResult(reqID, sessionID, action string, start time.Time, resultCh <-chan correlation.Result) {
	res := <-resultCh
	hc.d.sessions.Touch(sessionID)
	var data json.RawMessage
	if res.OK {
		data = res.Data
	}
	resp, err := protocol.NewResponse(reqID, sessionID, res.OK, nil, res.Err)
	if err == nil {
		resp.Data = data
	}
	hc.enc.Encode(resp)
	hc.d.activity.add(Activity{
		Timestamp: start,
		SessionID: sessionID,
		Action:    action,
		Success:   res.OK,
		Error:     res.Err,
		LatencyMS: time.Since(start).Milliseconds(),
	})
}

// onClose runs when the helper's connection drops without an explicit
// DISCONNECT — it is session termination all the same (§4.3).
func (hc *helperConn) onClose() {
	if hc.sessionID == "" {
		return
	}
	hc.terminateSession(hc.sessionID, "helper connection closed")
}

// terminateSession implements §4.3 "Session termination": remove from
// the session table, abort that session's pending entries, notify the
// extension with SESSION_END.
func (hc *helperConn) terminateSession(sessionID, reason string) {
	if sessionID == "" {
		return
	}
	if hc.d.sessions.Remove(sessionID) {
		hc.d.pending.AbortSession(sessionID, reason)
		hc.d.forwardToExtension(protocol.Message{Kind: protocol.KindSessionEnd, SessionID: sessionID})
		hc.d.resetIdleTimer()
	}
}
