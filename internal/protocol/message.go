// Package protocol defines the wire shapes shared by the helper, the
// router daemon, and the side panel, plus the newline-delimited JSON
// codec used to move them across a socket or a WebSocket text frame.
package protocol

import "encoding/json"

// Kind identifies the message envelope's role. It is the one field every
// frame carries, and the only thing a decoder needs to dispatch on.
type Kind string

const (
	KindRegister      Kind = "REGISTER"
	KindRegisterOK    Kind = "REGISTER_OK"
	KindRegisterError Kind = "REGISTER_ERROR"
	KindRequest       Kind = "REQUEST"
	KindResponse      Kind = "RESPONSE"
	KindPing          Kind = "PING"
	KindPong          Kind = "PONG"
	KindStatus        Kind = "STATUS"
	KindStatusOK      Kind = "STATUS_OK"
	KindDisconnect    Kind = "DISCONNECT"
	KindSessionStart  Kind = "SESSION_START"
	KindSessionEnd    Kind = "SESSION_END"

	// KindActivity/KindActivityOK are an ops-tooling side channel for the
	// `daemon status` CLI (§3.1 Activity record) — not part of the core
	// wire contract above, just a way for that CLI to reuse the same
	// connection it already opened for REGISTER/STATUS.
	KindActivity   Kind = "ACTIVITY"
	KindActivityOK Kind = "ACTIVITY_OK"
)

// Message is the single envelope shape carried over every hop in the
// system (helper<->daemon IPC and daemon<->extension WebSocket). Fields
// are left as zero values when not meaningful for a given Kind; callers
// decode Params/Data with the concrete shape they expect for that Kind.
type Message struct {
	Kind      Kind            `json:"kind"`
	ReqID     string          `json:"reqId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	TabID     string          `json:"tabId,omitempty"`
	Action    string          `json:"action,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	OK        bool            `json:"ok,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`

	// StatusOK payload fields. Only populated for KindStatusOK.
	ExtensionConnected bool `json:"extensionConnected,omitempty"`
	ActiveSessions     int  `json:"activeSessions,omitempty"`
}

// NewRequest builds a REQUEST frame with params already marshaled.
func NewRequest(reqID, sessionID, action string, tabID string, params any) (Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:      KindRequest,
		ReqID:     reqID,
		SessionID: sessionID,
		TabID:     tabID,
		Action:    action,
		Params:    raw,
	}, nil
}

// NewResponse builds a RESPONSE frame echoing reqID/sessionID.
func NewResponse(reqID, sessionID string, ok bool, data any, errMsg string) (Message, error) {
	m := Message{Kind: KindResponse, ReqID: reqID, SessionID: sessionID, OK: ok, Error: errMsg}
	if ok && data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		m.Data = raw
	}
	return m, nil
}
