// Package catalog implements Database, the system-catalog bootstrap
// and table/index/relationship registry: page-0 construction, the
// global usage map, MSysObjects and its sibling system tables, and the
// object-id allocator new tables and relationships draw from. It owns
// the PageChannel and hands out typed handles (*catalog.Table) to
// everything resolved through the catalog.
package catalog

import "github.com/jetdb/jetdb/jet/page"

// pageStorage adapts a byte range within a *page.Page to the
// usagemap.Storage interface, so a usage map can live directly inside a
// page that also holds other data (a TABLE_DEF page's column
// descriptors, or page 1's global-map row) instead of needing its own
// page and its own serialization step. See jet/table/tabledef.go's doc
// comment on why jet/table leaves this layout to its caller.
type pageStorage struct {
	p      *page.Page
	off, n int
}

func (s *pageStorage) Bytes() []byte {
	return s.p.Data()[s.off : s.off+s.n]
}

func (s *pageStorage) MarkDirty() {
	s.p.MarkDirty()
}
