// Package correlation implements the pending-request table shared by
// the router daemon and the direct-mode helper: a map from reqId to a
// waiting continuation with exactly one timer apiece.
//
// The shape is adapted from the register/complete/timeout pattern used
// to bridge a synchronous tool call across an asynchronous socket hop —
// allocate a channel keyed by call id before sending, then select on
// that channel against a deadline timer.
package correlation

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Result is what a pending entry resolves with.
type Result struct {
	OK    bool
	Data  json.RawMessage
	Err   string
}

type entry struct {
	sessionID string
	resultCh  chan Result
	timer     *time.Timer
}

// Table is the daemon's pending-request table (C2). Safe for concurrent
// use; register/complete/abort all take the same mutex since entries
// must never be observed half-updated between the map and the timer.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTable returns an empty pending table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Register adds a waiter for reqId with the given deadline and returns a
// channel that receives exactly one Result: from Complete, from the
// deadline firing, or from AbortAll. Register fails if reqId already has
// a waiter — a reqId collision is the caller's bug, per the contract,
// and never silently overwrites.
func (t *Table) Register(reqID, sessionID string, deadline time.Duration) (<-chan Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[reqID]; exists {
		return nil, fmt.Errorf("correlation: reqId %q already registered", reqID)
	}

	ch := make(chan Result, 1)
	e := &entry{sessionID: sessionID, resultCh: ch}
	e.timer = time.AfterFunc(deadline, func() { t.timeout(reqID) })
	t.entries[reqID] = e
	return ch, nil
}

// Has reports whether reqId currently has a registered waiter.
func (t *Table) Has(reqID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[reqID]
	return ok
}

// Complete resolves reqId with the given outcome. A reqId with no
// waiter (already completed, timed out, or never registered) is a
// silent no-op — this is how a late response after a fired deadline is
// discarded per the contract.
func (t *Table) Complete(reqID string, ok bool, data json.RawMessage, errMsg string) {
	t.mu.Lock()
	e, exists := t.entries[reqID]
	if !exists {
		t.mu.Unlock()
		return
	}
	delete(t.entries, reqID)
	t.mu.Unlock()

	e.timer.Stop()
	e.resultCh <- Result{OK: ok, Data: data, Err: errMsg}
}

func (t *Table) timeout(reqID string) {
	t.mu.Lock()
	e, exists := t.entries[reqID]
	if !exists {
		t.mu.Unlock()
		return
	}
	delete(t.entries, reqID)
	t.mu.Unlock()

	e.resultCh <- Result{OK: false, Err: "timeout"}
}

// AbortAll rejects every pending entry with reason and empties the
// table. Used on extension-uplink loss and on session termination
// (scoped via AbortSession) and daemon shutdown.
func (t *Table) AbortAll(reason string) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.resultCh <- Result{OK: false, Err: reason}
	}
}

// AbortSession rejects every pending entry belonging to sessionID with
// reason, leaving other sessions' entries untouched. Used on explicit
// DISCONNECT and helper-connection loss (§4.3 Session termination).
func (t *Table) AbortSession(sessionID, reason string) {
	t.mu.Lock()
	var matched []*entry
	for reqID, e := range t.entries {
		if e.sessionID == sessionID {
			matched = append(matched, e)
			delete(t.entries, reqID)
		}
	}
	t.mu.Unlock()

	for _, e := range matched {
		e.timer.Stop()
		e.resultCh <- Result{OK: false, Err: reason}
	}
}
