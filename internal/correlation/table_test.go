package correlation

import (
	"testing"
	"time"
)

func TestRegisterCompleteResolvesOnce(t *testing.T) {
	tbl := NewTable()
	ch, err := tbl.Register("r1", "s1", time.Second)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !tbl.Has("r1") {
		t.Fatalf("expected Has(r1) after Register")
	}

	tbl.Complete("r1", true, []byte(`{"ok":true}`), "")

	select {
	case res := <-ch:
		if !res.OK {
			t.Fatalf("expected OK result, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}

	if tbl.Has("r1") {
		t.Fatalf("expected entry to be gone after Complete")
	}

	// A second Complete for the same (now-gone) reqId must be a no-op,
	// not a panic or a double-send on a closed/already-read channel.
	tbl.Complete("r1", true, nil, "")
}

func TestRegisterCollisionRejected(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Register("dup", "s1", time.Second); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := tbl.Register("dup", "s1", time.Second); err == nil {
		t.Fatalf("expected second Register with same reqId to fail")
	}
}

func TestTimeoutFiresAfterDeadline(t *testing.T) {
	tbl := NewTable()
	ch, err := tbl.Register("r1", "s1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	select {
	case res := <-ch:
		if res.OK || res.Err != "timeout" {
			t.Fatalf("expected timeout error, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}
	if tbl.Has("r1") {
		t.Fatalf("expected entry removed after timeout")
	}
}

func TestLateCompleteAfterTimeoutIsDiscarded(t *testing.T) {
	tbl := NewTable()
	ch, _ := tbl.Register("r1", "s1", 5*time.Millisecond)
	<-ch // drain the timeout result

	// The "response" arrives after the deadline already fired and
	// removed the entry; Complete must silently discard it.
	tbl.Complete("r1", true, []byte("null"), "")
}

func TestAbortAllRejectsEveryPending(t *testing.T) {
	tbl := NewTable()
	var chans []<-chan Result
	for _, id := range []string{"r1", "r2", "r3"} {
		ch, err := tbl.Register(id, "s1", time.Second)
		if err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
		chans = append(chans, ch)
	}

	tbl.AbortAll("shutting down")

	for i, ch := range chans {
		select {
		case res := <-ch:
			if res.OK || res.Err != "shutting down" {
				t.Errorf("entry %d: got %+v, want abort reason", i, res)
			}
		case <-time.After(time.Second):
			t.Errorf("entry %d: never resolved", i)
		}
	}
}

func TestAbortSessionOnlyAffectsItsOwnEntries(t *testing.T) {
	tbl := NewTable()
	chA, _ := tbl.Register("a1", "sessA", time.Second)
	chB, _ := tbl.Register("b1", "sessB", time.Second)

	tbl.AbortSession("sessA", "session ended")

	select {
	case res := <-chA:
		if res.Err != "session ended" {
			t.Fatalf("sessA entry: got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("sessA entry never resolved")
	}

	if !tbl.Has("b1") {
		t.Fatalf("sessB entry should be untouched by sessA's abort")
	}
	tbl.Complete("b1", true, nil, "")
	select {
	case res := <-chB:
		if !res.OK {
			t.Fatalf("sessB entry: expected OK, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("sessB entry never resolved")
	}
}
