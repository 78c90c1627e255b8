// Package session is the daemon's session table (§3 Session, §4.3). It
// follows the shape of a registry of running server instances — "one
// RWMutex-guarded map of sessions" in place of "one RWMutex-guarded map
// of instances" — so every helper connection's goroutine may call it
// directly without serializing access itself; sessions have no
// independent goroutine of their own to supervise.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one helper's logical conversation with the browser.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
	conn         any
}

// Table is the daemon's session table. Safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// ErrSessionLimitExceeded is returned by Register when the table is
// already at config.MaxSessions.
type ErrSessionLimitExceeded struct{ Max int }

func (e ErrSessionLimitExceeded) Error() string {
	return fmt.Sprintf("session limit exceeded (max %d)", e.Max)
}

// Register allocates a fresh, unguessable sessionId and stores a new
// Session for it, unless the table is already at maxSessions.
func (t *Table) Register(conn any, maxSessions int) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessions) >= maxSessions {
		return nil, ErrSessionLimitExceeded{Max: maxSessions}
	}

	id := newSessionID()
	now := time.Now()
	s := &Session{ID: id, CreatedAt: now, LastActiveAt: now, conn: conn}
	t.sessions[id] = s
	return s, nil
}

// Touch updates a session's LastActiveAt, used by PING and by any
// RESPONSE that completes against it.
func (t *Table) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		s.LastActiveAt = time.Now()
	}
}

// Get returns the session for id, if any.
func (t *Table) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Remove deletes id from the table and reports whether it was present.
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[id]; !ok {
		return false
	}
	delete(t.sessions, id)
	return true
}

// Count returns the number of live sessions — the daemon's
// activeSessions figure for STATUS_OK and the idle-shutdown timer.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// RemoveByConn removes whichever session (if any) belongs to conn,
// returning its id. The daemon's own connection-close path removes by
// session id instead (Remove).
func (t *Table) RemoveByConn(conn any) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sessions {
		if s.conn == conn {
			delete(t.sessions, id)
			return id, true
		}
	}
	return "", false
}

func newSessionID() string {
	return "sess_" + uuid.New().String()
}
