// Package page implements PageChannel, the fixed-size paged I/O layer
// every higher layer (usage maps, tables, indexes, the catalog) reads and
// writes through: a page cache keyed by page number, dirty-page
// tracking, nested write scopes, and the page-0 XOR masking the header
// page carries.
package page

import (
	"fmt"
	"io"
	"sync"

	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/jetlog"
)

// Type identifies the kind of a page, stored in the first byte of every
// page other than page 0.
type Type byte

const (
	TypeInvalid           Type = 0x00
	TypeDataPage          Type = 0x01
	TypeTableDefinition   Type = 0x02
	TypeIntermediateIndex Type = 0x03
	TypeLeafIndex         Type = 0x04
	TypePageUsageMap      Type = 0x05
)

func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeDataPage:
		return "data"
	case TypeTableDefinition:
		return "table-definition"
	case TypeIntermediateIndex:
		return "intermediate-index"
	case TypeLeafIndex:
		return "leaf-index"
	case TypePageUsageMap:
		return "usage-map"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

// Number identifies a page by its 0-based position in the file.
type Number uint32

// RowId identifies a row by the page it lives on and its slot number
// within that page's row-slot array.
type RowId struct {
	Page Number
	Row  uint16
}

func (r RowId) String() string {
	return fmt.Sprintf("%d:%d", r.Page, r.Row)
}

// IsZero reports whether r is the zero value, used the way a nil
// pointer would be to mean "no row".
func (r RowId) IsZero() bool {
	return r.Page == 0 && r.Row == 0
}

// Page is an in-memory view over one page's raw bytes plus a parsed
// Type.
type Page struct {
	number Number
	typ    Type
	data   []byte
	dirty  bool
}

// Number returns the page's position in the file.
func (p *Page) Number() Number { return p.number }

// Type returns the page's type byte.
func (p *Page) Type() Type { return p.typ }

// Data returns the page's raw backing buffer. Callers that mutate it
// must call MarkDirty.
func (p *Page) Data() []byte { return p.data }

// MarkDirty flags the page to be flushed on the next Flush/EndWrite.
func (p *Page) MarkDirty() { p.dirty = true }

// SetType rewrites the page's type byte in both the parsed field and the
// backing buffer, and marks the page dirty.
func (p *Page) SetType(t Type) {
	p.typ = t
	p.data[0] = byte(t)
	p.dirty = true
}

// Source is the read side of the backing file: page 0 plus every
// numbered page after it.
type Source interface {
	ReadPage(n Number) ([]byte, error)
	PageCount() int
	PageSize() int
}

// Sink is the write side of the backing file.
type Sink interface {
	WritePage(n Number, data []byte) error
	Sync() error
}

// GlobalMapClearer receives notifications when PageChannel allocates or
// frees a page, so the global usage map (owned by package usagemap) can
// keep its "every unlisted page is allocated" bit current without
// PageChannel importing usagemap directly - see DESIGN.md for why this
// indirection exists (usagemap pages are themselves read/written through
// a PageChannel, an import cycle a plain dependency would create).
type GlobalMapClearer interface {
	ClearPage(n Number)
	SetPage(n Number)
}

// Channel is the paged I/O engine. It owns a page cache, a format
// descriptor, and the nested write-scope state.
type Channel struct {
	mu sync.RWMutex

	src Source
	dst Sink

	fmt format.JetFormat

	pages map[Number]*Page

	writeDepth int
	globalMap  GlobalMapClearer
	log        jetlog.Logger

	page0      []byte
	page0Dirty bool
}

// Open constructs a Channel over src/dst, reading and version-checking
// page 0 immediately.
func Open(src Source, dst Sink) (*Channel, error) {
	raw, err := src.ReadPage(0)
	if err != nil {
		return nil, jeterr.Wrap(jeterr.IoFailure, err, "read page 0")
	}

	page0 := make([]byte, len(raw))
	copy(page0, raw)
	unmaskHeader(page0)

	v, err := format.DetectVersion(page0)
	if err != nil {
		return nil, jeterr.Wrap(jeterr.FormatViolation, err, "page 0")
	}

	return &Channel{
		src:   src,
		dst:   dst,
		fmt:   format.For(v),
		pages: make(map[Number]*Page),
		page0: page0,
		log:   jetlog.Discard(),
	}, nil
}

// SetLogger replaces the channel's logger; the default discards
// everything.
func (c *Channel) SetLogger(l jetlog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l != nil {
		c.log = l
	}
}

// Logger returns the channel's logger, never nil.
func (c *Channel) Logger() jetlog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log
}

// Format returns the version-specific constant table this channel was
// opened against.
func (c *Channel) Format() format.JetFormat {
	return c.fmt
}

// Page0 returns the unmasked page-0 bytes. Callers must not retain the
// slice past the next call that marks it dirty.
func (c *Channel) Page0() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.page0
}

// MarkPage0Dirty flags page 0 to be re-masked and flushed on the next
// EndWrite/Flush.
func (c *Channel) MarkPage0Dirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page0Dirty = true
}

func unmaskHeader(page0 []byte) {
	v := guessVersionForMask(page0)
	mask := format.HeaderMask(v)
	off := format.For(v).PasswordOffset
	if off+len(mask) <= len(page0) {
		bytecodec.XOR(page0, off, mask)
	}
}

// guessVersionForMask reads the raw (still masked) marker directly,
// since the two header masks (Jet3, Jet4+) don't overlap with the
// version marker's own offset or value range.
func guessVersionForMask(page0 []byte) format.Version {
	if len(page0) < format.Page0VersionOffset+2 {
		return format.Jet4
	}
	marker := uint16(page0[format.Page0VersionOffset]) | uint16(page0[format.Page0VersionOffset+1])<<8
	if marker == 0 {
		return format.Jet3
	}
	return format.Jet4
}

// SetGlobalMap wires the global usage map clearer in after both the
// Channel and the map have been constructed, resolving the init-order
// cycle described on GlobalMapClearer.
func (c *Channel) SetGlobalMap(g GlobalMapClearer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalMap = g
}

// BeginWrite enters a write scope. Write scopes nest by reference
// count: only the outermost EndWrite call flushes dirty pages and
// syncs.
func (c *Channel) BeginWrite() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDepth++
}

// EndWrite leaves a write scope. On the outermost call it flushes every
// dirty page and fsyncs the destination.
func (c *Channel) EndWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeDepth == 0 {
		return jeterr.New(jeterr.ConcurrentModification, "EndWrite called with no matching BeginWrite")
	}
	c.writeDepth--
	if c.writeDepth > 0 {
		return nil
	}
	return c.flushLocked()
}

// InWrite reports whether a write scope is currently open.
func (c *Channel) InWrite() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writeDepth > 0
}

// ReadPage returns the parsed page for n, populating the cache on a miss.
func (c *Channel) ReadPage(n Number) (*Page, error) {
	c.mu.RLock()
	if p, ok := c.pages[n]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	raw, err := c.src.ReadPage(n)
	if err != nil {
		return nil, jeterr.Wrap(jeterr.IoFailure, err, "read page %d", n)
	}
	if len(raw) < 1 {
		return nil, jeterr.New(jeterr.FormatViolation, "page %d is empty", n)
	}

	buf := make([]byte, len(raw))
	copy(buf, raw)

	p := &Page{number: n, typ: Type(buf[0]), data: buf}

	c.mu.Lock()
	c.pages[n] = p
	c.mu.Unlock()

	return p, nil
}

// WritePage marks p dirty in the cache. The bytes are not flushed to dst
// until the write scope that contains the mutation ends.
func (c *Channel) WritePage(p *Page) error {
	if !c.InWrite() {
		return jeterr.New(jeterr.ConcurrentModification, "WritePage called outside a write scope")
	}
	p.dirty = true
	c.mu.Lock()
	c.pages[p.number] = p
	c.mu.Unlock()
	return nil
}

// AllocateNewPage grows the file by one page and returns it, clearing
// the new page's bit in the global usage map (a zero bit means the page
// is in use).
func (c *Channel) AllocateNewPage(t Type) (*Page, error) {
	if !c.InWrite() {
		return nil, jeterr.New(jeterr.ConcurrentModification, "AllocateNewPage called outside a write scope")
	}

	c.mu.Lock()
	n := Number(c.src.PageCount() + len(c.newlyAllocated()))
	if int(n) >= c.fmt.MaxDatabasePages {
		c.mu.Unlock()
		return nil, jeterr.New(jeterr.IoFailure, "database full: page %d exceeds the format's %d-page limit", n, c.fmt.MaxDatabasePages)
	}
	data := make([]byte, c.fmt.PageSize)
	data[0] = byte(t)
	p := &Page{number: n, typ: t, data: data, dirty: true}
	c.pages[n] = p
	gm := c.globalMap
	log := c.log
	c.mu.Unlock()

	jetlog.WithPage(log, uint32(n)).Debugf("allocated %s page", t)
	if gm != nil {
		gm.ClearPage(n)
	}
	return p, nil
}

// newlyAllocated counts cached pages numbered at or beyond the source's
// current page count, i.e. pages allocated this session that haven't
// been flushed yet. Must be called with c.mu held.
func (c *Channel) newlyAllocated() []Number {
	var out []Number
	base := Number(c.src.PageCount())
	for n := range c.pages {
		if n >= base {
			out = append(out, n)
		}
	}
	return out
}

// DeallocatePage frees n for reuse, setting n's bit in the global usage
// map.
func (c *Channel) DeallocatePage(n Number) error {
	if !c.InWrite() {
		return jeterr.New(jeterr.ConcurrentModification, "DeallocatePage called outside a write scope")
	}

	c.mu.Lock()
	if p, ok := c.pages[n]; ok {
		p.typ = TypeInvalid
		p.data[0] = byte(TypeInvalid)
		p.dirty = true
	}
	gm := c.globalMap
	log := c.log
	c.mu.Unlock()

	jetlog.WithPage(log, uint32(n)).Debug("deallocated page")
	if gm != nil {
		gm.SetPage(n)
	}
	return nil
}

// Flush writes every dirty page (including page 0, if marked dirty) to
// dst and fsyncs, regardless of write-scope depth. Database.Close calls
// this directly in case a caller forgot to balance BeginWrite/EndWrite.
func (c *Channel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Channel) flushLocked() error {
	if c.page0Dirty {
		masked := make([]byte, len(c.page0))
		copy(masked, c.page0)
		maskHeaderForWrite(masked)
		if err := c.dst.WritePage(0, masked); err != nil {
			return jeterr.Wrap(jeterr.IoFailure, err, "write page 0")
		}
		c.page0Dirty = false
	}

	for n, p := range c.pages {
		if !p.dirty {
			continue
		}
		if err := c.dst.WritePage(n, p.data); err != nil {
			return jeterr.Wrap(jeterr.IoFailure, err, "write page %d", n)
		}
		p.dirty = false
	}

	if err := c.dst.Sync(); err != nil {
		return jeterr.Wrap(jeterr.IoFailure, err, "sync")
	}
	return nil
}

func maskHeaderForWrite(page0 []byte) {
	v := guessVersionForMask(page0)
	mask := format.HeaderMask(v)
	off := format.For(v).PasswordOffset
	if off+len(mask) <= len(page0) {
		bytecodec.XOR(page0, off, mask)
	}
}

// PageSize returns the fixed page size for this channel's format.
func (c *Channel) PageSize() int {
	return c.fmt.PageSize
}

var _ io.Closer = (*closer)(nil)

// closer adapts Flush to io.Closer for callers that want to defer a
// single Close() rather than call Flush() by hand.
type closer struct{ c *Channel }

func (cl *closer) Close() error { return cl.c.Flush() }

// Closer returns an io.Closer that flushes c on Close.
func (c *Channel) Closer() io.Closer { return &closer{c} }
