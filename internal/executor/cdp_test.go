package executor

import (
	"context"
	"testing"

	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

// TestCDPStubReturnsNotImplemented exercises the out-of-scope seam: every
// method must report the explicit not-implemented error rather than
// panicking or silently no-opping.
func TestCDPStubReturnsNotImplemented(t *testing.T) {
	c := NewCDP()
	ctx := context.Background()

	if _, err := c.Execute(ctx, "tab1", protocol.ActionNavigate, nil); err == nil {
		t.Fatalf("expected Execute to report not implemented")
	}
	if _, err := c.PingContentHelper(ctx, "tab1"); err == nil {
		t.Fatalf("expected PingContentHelper to report not implemented")
	}
	if err := c.InjectContentHelper(ctx, "tab1"); err == nil {
		t.Fatalf("expected InjectContentHelper to report not implemented")
	}
	if _, err := c.CreateTab(ctx); err == nil {
		t.Fatalf("expected CreateTab to report not implemented")
	}
	if _, _, err := c.GetTab(ctx, "tab1"); err == nil {
		t.Fatalf("expected GetTab to report not implemented")
	}
	if _, _, err := c.ActiveTab(ctx); err == nil {
		t.Fatalf("expected ActiveTab to report not implemented")
	}
}
