package install

import (
	"strings"
	"sync"

	subctx "github.com/cuemby/subiquityd/internal/context"
)

// CurtinEvent is one line curtin reports over its event-reporting
// protocol while running.
type CurtinEvent struct {
	EventType string // "start" or "finish"
	Path      string // slash-separated breadcrumb path, e.g. "partitioning/format"
	Result    string // only set on "finish": SUCCESS/FAILURE/SKIP/...
	Name      string
}

// CurtinEventTracker maintains the context tree curtin's events map onto,
// grounded on InstallController.curtin_event's longest-known-ancestor
// walk: an event whose path has no exact match gets attached to the
// longest prefix of its path that *is* known, so a surprising or
// version-skewed event from curtin still nests sensibly instead of being
// dropped.
type CurtinEventTracker struct {
	mu       sync.Mutex
	root     *subctx.Context
	contexts map[string]*subctx.Context
}

// NewCurtinEventTracker returns a tracker rooted at root.
func NewCurtinEventTracker(root *subctx.Context) *CurtinEventTracker {
	return &CurtinEventTracker{
		root:     root,
		contexts: map[string]*subctx.Context{"": root},
	}
}

// Handle applies one CurtinEvent, creating or closing a Context as
// appropriate.
func (t *CurtinEventTracker) Handle(e CurtinEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.EventType {
	case "start":
		parent := t.longestKnownAncestor(e.Path)
		child := parent.Child(e.Name, "")
		t.contexts[e.Path] = child

	case "finish":
		ctx, ok := t.contexts[e.Path]
		if !ok {
			// Unrecognized path: attach to its longest known ancestor so
			// the event is still recorded, never dropped.
			ctx = t.longestKnownAncestor(e.Path)
		}
		ctx.Exit(subctx.ParseStatus(e.Result))
		delete(t.contexts, e.Path)
	}
}

// longestKnownAncestor walks path's slash-separated prefixes from most to
// least specific and returns the first one with a known Context, falling
// back to the root.
func (t *CurtinEventTracker) longestKnownAncestor(path string) *subctx.Context {
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		prefix := strings.Join(parts[:i], "/")
		if ctx, ok := t.contexts[prefix]; ok {
			return ctx
		}
	}
	return t.root
}
