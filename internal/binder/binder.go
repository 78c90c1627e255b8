// Package binder implements the side panel's session/tab binding policy
// (§4.6, C6): which tab a session's implicit requests should land on,
// when to create one, and when to quietly recreate one that died
// underneath a session. It is deliberately independent of any real
// browser — it depends only on the small TabProvider seam below, so it
// can be driven by the in-memory fake executor in tests and by a real
// CDP-backed one in production without caring which.
package binder

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Tab is the minimal tab shape the binder reasons about.
type Tab struct {
	ID  string
	URL string
}

// TabProvider is everything the binder needs from the action executor's
// tab-facing side.
type TabProvider interface {
	GetTab(ctx context.Context, tabID string) (Tab, bool, error)
	ActiveTab(ctx context.Context) (Tab, bool, error)
	CreateTab(ctx context.Context) (Tab, error)
}

// binding is the Session<->Tab binding record (§3).
type binding struct {
	tabID        string
	createdAt    time.Time
	lastActiveAt time.Time
}

// Binder is the side panel's binding table. One instance per panel
// process; owned entirely by the panel's event loop per §5's
// shared-resource policy, so it takes no lock of its own around
// resolution logic beyond protecting the map itself from any goroutine
// that may touch it concurrently.
type Binder struct {
	tabs TabProvider

	mu       sync.Mutex
	bindings map[string]*binding // sessionID -> binding
}

func New(tabs TabProvider) *Binder {
	return &Binder{tabs: tabs, bindings: make(map[string]*binding)}
}

// ErrTabNotFound is returned when an explicit tabId no longer exists.
type ErrTabNotFound struct{ TabID string }

func (e ErrTabNotFound) Error() string { return fmt.Sprintf("tab not found: %s", e.TabID) }

// ResolveTab implements the §4.5 step 2 / §4.6 policy:
//   - an explicit tabId, if present and alive, wins and (re)binds sessionID to it;
//   - else the session's existing binding, recreating it if its tab died;
//   - else the active scriptable tab, or a fresh tab if none qualifies.
//
// sessionID may be empty (a request with no session context at all);
// in that case no binding is created or consulted.
func (b *Binder) ResolveTab(ctx context.Context, sessionID, explicitTabID string) (string, error) {
	if explicitTabID != "" {
		tab, ok, err := b.tabs.GetTab(ctx, explicitTabID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrTabNotFound{TabID: explicitTabID}
		}
		if sessionID != "" {
			b.bind(sessionID, tab.ID)
		}
		return tab.ID, nil
	}

	if sessionID != "" {
		if tabID, ok := b.existingLiveBinding(ctx, sessionID); ok {
			return tabID, nil
		}
	}

	tab, err := b.resolveImplicitTab(ctx)
	if err != nil {
		return "", err
	}
	if sessionID != "" {
		b.bind(sessionID, tab.ID)
	}
	return tab.ID, nil
}

// existingLiveBinding returns the session's bound tab if that tab still
// exists; otherwise it clears the stale binding so the caller falls
// through to creating a fresh one (§4.6: "recreation is lazy").
func (b *Binder) existingLiveBinding(ctx context.Context, sessionID string) (string, bool) {
	b.mu.Lock()
	bnd, ok := b.bindings[sessionID]
	b.mu.Unlock()
	if !ok {
		return "", false
	}
	tab, alive, err := b.tabs.GetTab(ctx, bnd.tabID)
	if err != nil || !alive {
		b.mu.Lock()
		delete(b.bindings, sessionID)
		b.mu.Unlock()
		return "", false
	}
	return tab.ID, true
}

// resolveImplicitTab picks the active tab if it's scriptable, else
// opens a fresh one — never implicitly selects a non-scriptable tab.
func (b *Binder) resolveImplicitTab(ctx context.Context) (Tab, error) {
	if active, ok, err := b.tabs.ActiveTab(ctx); err == nil && ok && IsScriptableURL(active.URL) {
		return active, nil
	} else if err != nil {
		return Tab{}, err
	}
	return b.tabs.CreateTab(ctx)
}

func (b *Binder) bind(sessionID, tabID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if bnd, ok := b.bindings[sessionID]; ok {
		bnd.tabID = tabID
		bnd.lastActiveAt = now
		return
	}
	b.bindings[sessionID] = &binding{tabID: tabID, createdAt: now, lastActiveAt: now}
}

// Forget removes sessionID's binding (SESSION_END / explicit cleanup)
// and reports the tab it was bound to, if any, so the caller can decide
// whether to close it.
func (b *Binder) Forget(sessionID string) (tabID string, had bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bnd, ok := b.bindings[sessionID]
	if !ok {
		return "", false
	}
	delete(b.bindings, sessionID)
	return bnd.tabID, true
}

// webStoreHosts are exclusions within otherwise-scriptable schemes:
// extension/app marketplace pages are http(s) but not meaningfully
// automatable content pages.
var webStoreHosts = map[string]bool{
	"chrome.google.com":              true,
	"chromewebstore.google.com":      true,
	"addons.mozilla.org":             true,
	"microsoftedge.microsoft.com":    true,
}

// IsScriptableURL reports whether a tab's URL is an ordinary http(s)
// content page the action executor may operate on. Browser-internal
// schemes (chrome://, edge://, about:, chrome-extension://, file://) and
// extension/app marketplace hosts are excluded (§4.6).
func IsScriptableURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	return !webStoreHosts[strings.ToLower(u.Hostname())]
}
