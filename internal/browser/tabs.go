package browser

import (
	"context"
	"sync"
)

type tab struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// tabStack tracks the adopted tabs on top of the root tab. The newest tab is
// the active one; the root is never released.
type tabStack struct {
	mu   sync.RWMutex
	tabs []tab
}

func newTabStack(rootID string, root context.Context) *tabStack {
	return &tabStack{tabs: []tab{{id: rootID, ctx: root}}}
}

func (t *tabStack) active() context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tabs[len(t.tabs)-1].ctx
}

func (t *tabStack) push(id string, ctx context.Context, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tabs = append(t.tabs, tab{id: id, ctx: ctx, cancel: cancel})
}

// lookup returns the context of a live tab. Unknown ids resolve to the
// active tab.
func (t *tabStack) lookup(id string) context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id != "" {
		for _, tb := range t.tabs {
			if tb.id == id {
				return tb.ctx
			}
		}
	}
	return t.tabs[len(t.tabs)-1].ctx
}

// release drops a closed tab and reports whether it was tracked
func (t *tabStack) release(id string) bool {
	if id == "" {
		return false
	}

	t.mu.Lock()
	var released *tab
	for i := 1; i < len(t.tabs); i++ {
		if t.tabs[i].id == id {
			tb := t.tabs[i]
			released = &tb
			t.tabs = append(t.tabs[:i], t.tabs[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if released == nil {
		return false
	}
	if released.cancel != nil {
		released.cancel()
	}
	return true
}

func (t *tabStack) closeAll() {
	t.mu.Lock()
	adopted := append([]tab(nil), t.tabs[1:]...)
	t.tabs = t.tabs[:1]
	t.mu.Unlock()

	for _, tb := range adopted {
		if tb.cancel != nil {
			tb.cancel()
		}
	}
}

func (t *tabStack) depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tabs)
}
