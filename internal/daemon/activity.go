package daemon

import (
	"sync"
	"time"
)

// maxActivity bounds the in-memory activity log (§3.1 Activity record).
const maxActivity = 100

// Activity is one completed REQUEST, retained only for the `daemon
// status` CLI's human-facing view. It carries no part of the wire
// contract — a RESPONSE frame never includes it — and is dropped on
// daemon restart like every other in-memory table.
type Activity struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latencyMs"`
}

// activityLog is a bounded, oldest-evicted-first ring of recent
// activity records. Safe for concurrent use.
type activityLog struct {
	mu      sync.Mutex
	entries []Activity
	max     int
}

func newActivityLog(max int) *activityLog {
	return &activityLog{max: max}
}

func (l *activityLog) add(a Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, a)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// recent returns the retained activity records, oldest first. The
// returned slice is a copy so callers never race the log's own writes.
func (l *activityLog) recent() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Activity, len(l.entries))
	copy(out, l.entries)
	return out
}
