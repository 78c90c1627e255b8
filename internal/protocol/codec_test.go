package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"register", Message{Kind: KindRegister}},
		{"register ok", Message{Kind: KindRegisterOK, SessionID: "sess_abc"}},
		{"request", Message{Kind: KindRequest, ReqID: "sess_abc:1", SessionID: "sess_abc", Action: "navigate", Params: []byte(`{"url":"https://a.example"}`)}},
		{"response ok", Message{Kind: KindResponse, ReqID: "sess_abc:1", SessionID: "sess_abc", OK: true, Data: []byte(`{"tabId":"tab_1"}`)}},
		{"response error", Message{Kind: KindResponse, ReqID: "sess_abc:1", OK: false, Error: "timeout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := NewEncoder(&buf)
			if err := enc.Encode(tt.msg); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !strings.HasSuffix(buf.String(), "\n") {
				t.Fatalf("expected frame to end with newline, got %q", buf.String())
			}

			dec := NewDecoder(&buf)
			got, malformed, err := dec.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if malformed != 0 {
				t.Fatalf("expected 0 malformed lines, got %d", malformed)
			}
			if got.Kind != tt.msg.Kind || got.ReqID != tt.msg.ReqID || got.SessionID != tt.msg.SessionID {
				t.Fatalf("round-trip mismatch: got %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestDecoderSkipsMalformedLines(t *testing.T) {
	input := "not json\n{\"kind\":\"PING\"}\n"
	dec := NewDecoder(strings.NewReader(input))

	msg, malformed, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if malformed != 1 {
		t.Fatalf("expected 1 malformed line skipped, got %d", malformed)
	}
	if msg.Kind != KindPing {
		t.Fatalf("expected PING, got %v", msg.Kind)
	}
}

func TestDecoderEOF(t *testing.T) {
	dec := NewDecoder(strings.NewReader(""))
	_, _, err := dec.Next()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecoderOversizeBufferIsFatal(t *testing.T) {
	huge := strings.Repeat("a", MaxBufferSize+1) + "\n"
	dec := NewDecoder(strings.NewReader(huge))
	_, _, err := dec.Next()
	if err != ErrBufferOverflow {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
}

func TestDecoderAtExactBufferSizeIsAccepted(t *testing.T) {
	// One line of exactly MaxBufferSize-1 content bytes plus the
	// newline lands right at the cap; it must be accepted (§8 boundary
	// behavior: "Buffer at MAX_BUFFER_SIZE exactly: accepted").
	payload := `{"kind":"PING","tabId":"` + strings.Repeat("a", MaxBufferSize-27) + `"}`
	dec := NewDecoder(strings.NewReader(payload + "\n"))
	msg, _, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg.Kind != KindPing {
		t.Fatalf("expected PING, got %v", msg.Kind)
	}
}
