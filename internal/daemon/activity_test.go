package daemon

import "testing"

func TestActivityLogBoundedAtMax(t *testing.T) {
	l := newActivityLog(3)
	for i := 0; i < 5; i++ {
		l.add(Activity{Action: "navigate"})
	}
	got := l.recent()
	if len(got) != 3 {
		t.Fatalf("expected log bounded to 3 entries, got %d", len(got))
	}
}

func TestActivityLogOldestFirst(t *testing.T) {
	l := newActivityLog(2)
	l.add(Activity{SessionID: "a"})
	l.add(Activity{SessionID: "b"})
	l.add(Activity{SessionID: "c"})

	got := l.recent()
	if len(got) != 2 || got[0].SessionID != "b" || got[1].SessionID != "c" {
		t.Fatalf("expected the oldest entry evicted first, got %+v", got)
	}
}

func TestDaemonRecentActivityReflectsLoggedRequests(t *testing.T) {
	d := newTestDaemon(t)
	if got := d.RecentActivity(); len(got) != 0 {
		t.Fatalf("expected an empty activity log for a fresh daemon, got %+v", got)
	}

	d.activity.add(Activity{SessionID: "sess_1", Action: "click", Success: true, LatencyMS: 5})

	got := d.RecentActivity()
	if len(got) != 1 {
		t.Fatalf("expected 1 activity record, got %d", len(got))
	}
	if got[0].SessionID != "sess_1" || got[0].Action != "click" || !got[0].Success {
		t.Fatalf("unexpected activity record: %+v", got[0])
	}
}
