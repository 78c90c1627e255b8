package executor

import (
	"context"
	"testing"

	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

func TestCreateTabAndGetTab(t *testing.T) {
	f := NewFake()
	tab, err := f.CreateTab(context.Background())
	if err != nil {
		t.Fatalf("CreateTab: %v", err)
	}
	if tab.URL != "about:blank" {
		t.Fatalf("expected fresh tab to start at about:blank, got %q", tab.URL)
	}

	got, ok, err := f.GetTab(context.Background(), tab.ID)
	if err != nil || !ok {
		t.Fatalf("GetTab = (%v, %v, %v)", got, ok, err)
	}
	if got.ID != tab.ID {
		t.Fatalf("GetTab id mismatch: got %q want %q", got.ID, tab.ID)
	}
}

func TestGetTabUnknownID(t *testing.T) {
	f := NewFake()
	_, ok, err := f.GetTab(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetTab: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for an unknown tab id")
	}
}

func TestActiveTabAlwaysEmpty(t *testing.T) {
	f := NewFake()
	f.CreateTab(context.Background())
	_, ok, err := f.ActiveTab(context.Background())
	if err != nil {
		t.Fatalf("ActiveTab: %v", err)
	}
	if ok {
		t.Fatalf("expected the fake executor never to report an active tab")
	}
}

func TestExecuteNavigateMutatesTabURL(t *testing.T) {
	f := NewFake()
	tab, _ := f.CreateTab(context.Background())

	_, err := f.Execute(context.Background(), tab.ID, protocol.ActionNavigate, map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("Execute navigate: %v", err)
	}

	got, ok, _ := f.GetTab(context.Background(), tab.ID)
	if !ok {
		t.Fatalf("tab disappeared after navigate")
	}
	if got.URL != "https://example.com" {
		t.Fatalf("expected URL to be updated, got %q", got.URL)
	}
}

func TestExecuteOnUnknownTabErrors(t *testing.T) {
	f := NewFake()
	_, err := f.Execute(context.Background(), "ghost", protocol.ActionNavigate, map[string]any{"url": "https://example.com"})
	if err == nil {
		t.Fatalf("expected an error executing against a nonexistent tab")
	}
}

func TestExecuteGetTabsListsAllTabs(t *testing.T) {
	f := NewFake()
	tab1, _ := f.CreateTab(context.Background())
	tab2, _ := f.CreateTab(context.Background())

	result, err := f.Execute(context.Background(), tab1.ID, protocol.ActionGetTabs, nil)
	if err != nil {
		t.Fatalf("Execute get_tabs: %v", err)
	}
	list, ok := result.([]map[string]any)
	if !ok {
		t.Fatalf("expected a []map[string]any result, got %T", result)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 tabs listed, got %d", len(list))
	}

	seen := map[string]bool{}
	for _, entry := range list {
		seen[entry["tabId"].(string)] = true
	}
	if !seen[tab1.ID] || !seen[tab2.ID] {
		t.Fatalf("get_tabs result missing one of the created tabs: %+v", list)
	}
}

func TestCloseTabRemovesIt(t *testing.T) {
	f := NewFake()
	tab, _ := f.CreateTab(context.Background())

	f.CloseTab(tab.ID)

	_, ok, _ := f.GetTab(context.Background(), tab.ID)
	if ok {
		t.Fatalf("expected tab to be gone after CloseTab")
	}

	// Closing an already-closed (or unknown) tab must be a no-op, not a panic.
	f.CloseTab(tab.ID)
	f.CloseTab("never-existed")
}

func TestContentHelperPingBeforeInjectIsFalse(t *testing.T) {
	f := NewFake()
	tab, _ := f.CreateTab(context.Background())

	present, err := f.PingContentHelper(context.Background(), tab.ID)
	if err != nil {
		t.Fatalf("PingContentHelper: %v", err)
	}
	if present {
		t.Fatalf("expected a freshly created tab to report no content helper yet")
	}
}

func TestContentHelperInjectIsIdempotent(t *testing.T) {
	f := NewFake()
	tab, _ := f.CreateTab(context.Background())

	if err := f.InjectContentHelper(context.Background(), tab.ID); err != nil {
		t.Fatalf("first InjectContentHelper: %v", err)
	}
	if err := f.InjectContentHelper(context.Background(), tab.ID); err != nil {
		t.Fatalf("second InjectContentHelper: %v", err)
	}

	present, err := f.PingContentHelper(context.Background(), tab.ID)
	if err != nil {
		t.Fatalf("PingContentHelper: %v", err)
	}
	if !present {
		t.Fatalf("expected content helper to be present after injection")
	}
}

func TestContentHelperResetsOnNavigate(t *testing.T) {
	f := NewFake()
	tab, _ := f.CreateTab(context.Background())
	f.InjectContentHelper(context.Background(), tab.ID)

	if _, err := f.Execute(context.Background(), tab.ID, protocol.ActionNavigate, map[string]any{"url": "https://example.com"}); err != nil {
		t.Fatalf("Execute navigate: %v", err)
	}

	present, err := f.PingContentHelper(context.Background(), tab.ID)
	if err != nil {
		t.Fatalf("PingContentHelper: %v", err)
	}
	if present {
		t.Fatalf("expected navigation to invalidate the previous content helper injection")
	}
}

func TestContentHelperOnUnknownTabErrors(t *testing.T) {
	f := NewFake()
	if _, err := f.PingContentHelper(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected PingContentHelper on an unknown tab to error")
	}
	if err := f.InjectContentHelper(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected InjectContentHelper on an unknown tab to error")
	}
}

func TestExecuteDefaultEchoesParams(t *testing.T) {
	f := NewFake()
	tab, _ := f.CreateTab(context.Background())

	result, err := f.Execute(context.Background(), tab.ID, protocol.ActionClick, map[string]any{"selector": "#submit"})
	if err != nil {
		t.Fatalf("Execute click: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected a map result, got %T", result)
	}
	if m["action"] != string(protocol.ActionClick) {
		t.Fatalf("expected echoed action %q, got %v", protocol.ActionClick, m["action"])
	}
}
