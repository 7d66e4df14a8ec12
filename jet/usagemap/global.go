package usagemap

import (
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/page"
)

// GlobalMap is the database-wide usage map stored on page 1. Its
// semantics diverge from a per-table Map: any page
// number outside the currently materialized window is implicitly
// considered used (there is no "out of range = free" reading), adds
// outside the window are silently ignored rather than growing it, and
// removes outside the window shift the window and fill the newly
// admitted pages with 1s (used) rather than 0s.
//
// The global map is also the thing PageChannel notifies on every
// allocate/deallocate (see page.GlobalMapClearer); to avoid recursing
// into page allocation when the global map itself would need to grow
// into reference mode, promotion runs behind a re-entrancy guard that
// stashes the page being allocated for the map's own growth and applies
// it once the outer update finishes.
type GlobalMap struct {
	inner *Map

	promoting bool
	pending   []page.Number
}

// NewGlobalMap wraps storage (the page-1 row) as a fresh, empty global
// map.
func NewGlobalMap(storage Storage, channel *page.Channel, jfmt format.JetFormat) *GlobalMap {
	return &GlobalMap{inner: New(storage, channel, jfmt)}
}

// LoadGlobalMap parses an existing page-1 row.
func LoadGlobalMap(storage Storage, channel *page.Channel, jfmt format.JetFormat) (*GlobalMap, error) {
	inner, err := Load(storage, channel, jfmt)
	if err != nil {
		return nil, err
	}
	return &GlobalMap{inner: inner}, nil
}

// windowContains reports whether n falls within the inline window's
// materialized span (as opposed to being implicitly "on" because it is
// outside the window entirely).
func (g *GlobalMap) windowContains(n page.Number) bool {
	if g.inner.kind != mapTypeInline {
		return true
	}
	if n < g.inner.startPage {
		return false
	}
	return int(n-g.inner.startPage) < g.inner.inlineCapacityBits()
}

// ClearPage marks n free - called by PageChannel when n is newly
// allocated, since "free" in the global map's inverted sense means "not
// claimed by any owned-pages map yet" is handled by the table layer;
// PageChannel's own allocate/deallocate hook instead tracks raw
// existence: AllocateNewPage clears the new page's bit here.
func (g *GlobalMap) ClearPage(n page.Number) {
	if g.promoting {
		g.pending = append(g.pending, n)
		return
	}
	if !g.windowContains(n) {
		return
	}
	_ = g.inner.Remove(n)
}

// SetPage marks n used - called by PageChannel.DeallocatePage.
func (g *GlobalMap) SetPage(n page.Number) {
	if g.promoting {
		g.pending = append(g.pending, n)
		return
	}
	g.add(n)
}

func (g *GlobalMap) add(n page.Number) {
	if g.windowContains(n) {
		_ = g.inner.Add(n)
		return
	}
	if g.inner.kind == mapTypeReference {
		_ = g.inner.Add(n)
		return
	}

	// Growing the inline window would call back into the channel to
	// promote to reference encoding, which may itself allocate a page
	// and re-enter SetPage/ClearPage. Guard against that recursion.
	g.promoting = true
	err := g.inner.Add(n)
	g.promoting = false
	if err != nil {
		return
	}

	pending := g.pending
	g.pending = nil
	for _, p := range pending {
		g.add(p)
	}
}

// Contains reports whether n is used. Pages outside the materialized
// window are always reported as used, per the global map's inverted
// out-of-range semantics - there is deliberately no general
// "containsPageNumber" escape hatch.
func (g *GlobalMap) Contains(n page.Number) bool {
	if !g.windowContains(n) {
		return true
	}
	return g.inner.Contains(n)
}

// Bytes exposes the raw backing bytes, used by jetutil's page inspector
// to render the global map's window.
func (g *GlobalMap) Bytes() []byte {
	return g.inner.storage.Bytes()
}

// StartPage returns the inline window's base page number, or 0 if the
// map has been promoted to reference encoding.
func (g *GlobalMap) StartPage() page.Number {
	if g.inner.kind != mapTypeInline {
		return 0
	}
	return g.inner.startPage
}
