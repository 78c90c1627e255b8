// Package executor defines the action executor seam (§1, §4.7): the
// opaque collaborator that turns (tabId, action, params) into observable
// browser effects via CDP. Fake is an in-memory stand-in good enough to
// exercise and test the routing core end to end; CDP is a named stub
// marking where a real go-rod/chromedp-backed implementation would
// plug in — building that implementation is out of scope (§1 Non-goals).
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zhaopengme/browser-agent-extension/internal/binder"
	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

// Executor is the contract the side panel dispatches REQUEST frames
// through, after the binder has resolved a tabId.
type Executor interface {
	Execute(ctx context.Context, tabID string, action protocol.Action, params map[string]any) (any, error)
}

// ContentInjector is the optional seam an executor implements to back
// §4.5 step 3: "ensure any content helpers required by the action are
// injected into that tab (idempotent; a 'ping' round-trip decides
// whether injection is needed)." An executor that doesn't need content
// helpers (nothing to inject) simply doesn't implement this interface.
type ContentInjector interface {
	// PingContentHelper reports whether tabID already has a live
	// content helper, without side effects.
	PingContentHelper(ctx context.Context, tabID string) (bool, error)
	// InjectContentHelper installs the content helper into tabID.
	// Idempotent: injecting into an already-injected tab is a no-op
	// that still returns nil (§8 "Content-helper injection is
	// idempotent").
	InjectContentHelper(ctx context.Context, tabID string) error
}

// Fake is an in-memory executor that tracks a small set of open tabs
// well enough to drive the binder and the end-to-end scenarios in §8
// without a real browser attached. It also satisfies binder.TabProvider
// directly, since both roles reason about the same tab set.
type Fake struct {
	mu       sync.Mutex
	tabs     map[string]*fakeTab
	injected map[string]bool
}

type fakeTab struct {
	id  string
	url string
}

func NewFake() *Fake {
	return &Fake{tabs: make(map[string]*fakeTab), injected: make(map[string]bool)}
}

func (f *Fake) CreateTab(ctx context.Context) (binder.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := newTabID()
	t := &fakeTab{id: id, url: "about:blank"}
	f.tabs[id] = t
	return binder.Tab{ID: t.id, URL: t.url}, nil
}

func (f *Fake) GetTab(ctx context.Context, tabID string) (binder.Tab, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tabs[tabID]
	if !ok {
		return binder.Tab{}, false, nil
	}
	return binder.Tab{ID: t.id, URL: t.url}, true, nil
}

// ActiveTab reports no active tab: the fake never designates one
// implicitly, so binder.ResolveTab's implicit path always creates a
// fresh tab unless a session already holds a binding — matching the
// conservative default a real browser only departs from when a window
// genuinely has a focused, scriptable tab.
func (f *Fake) ActiveTab(ctx context.Context) (binder.Tab, bool, error) {
	return binder.Tab{}, false, nil
}

// CloseTab removes a tab, simulating a user closing it between requests
// (S5). Safe to call on an unknown id (no-op).
func (f *Fake) CloseTab(tabID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tabs, tabID)
	delete(f.injected, tabID)
}

// PingContentHelper reports whether tabID already has a content helper
// injected, per §4.5 step 3.
func (f *Fake) PingContentHelper(ctx context.Context, tabID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tabs[tabID]; !ok {
		return false, fmt.Errorf("tab not found: %s", tabID)
	}
	return f.injected[tabID], nil
}

// InjectContentHelper marks tabID as having a content helper installed.
// Idempotent: injecting twice leaves the same state as injecting once.
func (f *Fake) InjectContentHelper(ctx context.Context, tabID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tabs[tabID]; !ok {
		return fmt.Errorf("tab not found: %s", tabID)
	}
	f.injected[tabID] = true
	return nil
}

// Execute implements Executor against the fake tab set. It understands
// enough of the action catalog to make the routing core's tests
// meaningful: navigate mutates the tab's URL, get_tabs lists all tabs,
// get_page_info reports the tab's id and URL, and everything else
// echoes its params back as the result.
func (f *Fake) Execute(ctx context.Context, tabID string, action protocol.Action, params map[string]any) (any, error) {
	f.mu.Lock()
	t, ok := f.tabs[tabID]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tab not found: %s", tabID)
	}

	switch action {
	case protocol.ActionNavigate:
		u, _ := params["url"].(string)
		f.mu.Lock()
		t.url = u
		delete(f.injected, tabID) // a new page context needs re-injection
		f.mu.Unlock()
		return map[string]any{"tabId": tabID, "url": u}, nil
	case protocol.ActionGetTabs:
		f.mu.Lock()
		out := make([]map[string]any, 0, len(f.tabs))
		for _, tab := range f.tabs {
			out = append(out, map[string]any{"tabId": tab.id, "url": tab.url})
		}
		f.mu.Unlock()
		return out, nil
	case protocol.ActionGetPageInfo:
		f.mu.Lock()
		url := t.url
		f.mu.Unlock()
		return map[string]any{"tabId": tabID, "url": url}, nil
	default:
		return map[string]any{"tabId": tabID, "action": string(action), "params": params}, nil
	}
}

func newTabID() string {
	return "tab_" + uuid.New().String()
}

// errCDPNotImplemented is returned by every CDP method. A real
// go-rod/chromedp-backed executor is out of scope for this repo; CDP
// exists only so callers (and the Side Panel's wiring) see the seam
// where that implementation would plug in.
var errCDPNotImplemented = fmt.Errorf("executor: CDP-backed executor not implemented — out of scope")

// CDP is an interface-satisfying stub for a real Chrome DevTools
// Protocol executor. Every method returns errCDPNotImplemented; it
// exists so the Executor/ContentInjector/binder.TabProvider seams have
// a named type on the CDP side of the fake/real split, not just a
// comment.
type CDP struct{}

func NewCDP() *CDP { return &CDP{} }

func (c *CDP) Execute(ctx context.Context, tabID string, action protocol.Action, params map[string]any) (any, error) {
	return nil, errCDPNotImplemented
}

func (c *CDP) PingContentHelper(ctx context.Context, tabID string) (bool, error) {
	return false, errCDPNotImplemented
}

func (c *CDP) InjectContentHelper(ctx context.Context, tabID string) error {
	return errCDPNotImplemented
}

func (c *CDP) CreateTab(ctx context.Context) (binder.Tab, error) {
	return binder.Tab{}, errCDPNotImplemented
}

func (c *CDP) GetTab(ctx context.Context, tabID string) (binder.Tab, bool, error) {
	return binder.Tab{}, false, errCDPNotImplemented
}

func (c *CDP) ActiveTab(ctx context.Context) (binder.Tab, bool, error) {
	return binder.Tab{}, false, errCDPNotImplemented
}

var (
	_ Executor        = (*CDP)(nil)
	_ ContentInjector = (*CDP)(nil)
	_ binder.TabProvider = (*CDP)(nil)
)
