package index

import (
	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
)

// Node-page layouts mirror jet/table's row-slot-array idiom (header
// fields at the page head, a descending slot array at the tail, entry
// bytes growing up from a data area that shrinks toward the slots) but
// keep entries in *sorted* order rather than insertion order. Both
// leaf and intermediate entries share one encoding - key length, key
// bytes, RowId - so ordering compares the same (key, RowId) compound on
// every page; an intermediate entry appends a 4-byte child-page number
// after that compound, the separator being "the greatest entry in the
// left child".
const (
	leafHeaderLen         = 5 // type, dataAreaStart u16, entryCount u16
	intermediateHeaderLen = 9 // leafHeaderLen + rightChild u32
)

func dataAreaStart(p *page.Page) int { return int(bytecodec.ReadUint16(p.Data(), 1)) }
func setDataAreaStart(p *page.Page, v int) {
	bytecodec.WriteUint16(p.Data(), 1, uint16(v))
}
func entryCount(p *page.Page) int { return int(bytecodec.ReadUint16(p.Data(), 3)) }
func setEntryCount(p *page.Page, v int) {
	bytecodec.WriteUint16(p.Data(), 3, uint16(v))
}

func rightChild(p *page.Page) page.Number {
	return page.Number(bytecodec.ReadUint32(p.Data(), 5))
}
func setRightChild(p *page.Page, n page.Number) {
	bytecodec.WriteUint32(p.Data(), 5, uint32(n))
}

func headerLen(typ page.Type) int {
	if typ == page.TypeIntermediateIndex {
		return intermediateHeaderLen
	}
	return leafHeaderLen
}

func slotOffset(typ page.Type, i int) int { return headerLen(typ) + i*2 }

func readSlotPtr(p *page.Page, i int) int {
	return int(bytecodec.ReadUint16(p.Data(), slotOffset(p.Type(), i)))
}

func writeSlotPtr(p *page.Page, i, off int) {
	bytecodec.WriteUint16(p.Data(), slotOffset(p.Type(), i), uint16(off))
}

func initNode(p *page.Page, typ page.Type, pageSize int) {
	p.SetType(typ)
	setDataAreaStart(p, pageSize)
	setEntryCount(p, 0)
	if typ == page.TypeIntermediateIndex {
		setRightChild(p, 0)
	}
}

func freeBytes(p *page.Page) int {
	slotsEnd := slotOffset(p.Type(), entryCount(p))
	return dataAreaStart(p) - slotsEnd
}

// entryBytes encodes one entry: key length, key bytes, RowId (page
// number + row number). On a leaf page this *is* the stored entry; on
// an intermediate page interiorEntryBytes appends a 4-byte left-child page
// number after it.
func entryBytes(key []byte, row page.RowId) []byte {
	b := make([]byte, 2+len(key)+4+2)
	bytecodec.WriteUint16(b, 0, uint16(len(key)))
	copy(b[2:], key)
	off := 2 + len(key)
	bytecodec.WriteUint32(b, off, uint32(row.Page))
	bytecodec.WriteUint16(b, off+4, row.Row)
	return b
}

func parseEntry(b []byte) (key []byte, row page.RowId) {
	n := int(bytecodec.ReadUint16(b, 0))
	key = b[2 : 2+n]
	off := 2 + n
	row = page.RowId{Page: page.Number(bytecodec.ReadUint32(b, off)), Row: bytecodec.ReadUint16(b, off+4)}
	return
}

func interiorEntryBytes(key []byte, row page.RowId, childPage page.Number) []byte {
	b := entryBytes(key, row)
	cb := make([]byte, 4)
	bytecodec.WriteUint32(cb, 0, uint32(childPage))
	return append(b, cb...)
}

func parseInteriorEntry(b []byte) (key []byte, row page.RowId, childPage page.Number) {
	key, row = parseEntry(b)
	childPage = page.Number(bytecodec.ReadUint32(b, len(b)-4))
	return
}

// entryAt sizes the entry from its own contents: slot order is key
// order, not data-area order, so a neighbor slot's offset says nothing
// about where this entry's bytes end.
func entryAt(p *page.Page, i int) []byte {
	off := readSlotPtr(p, i)
	keyLen := int(bytecodec.ReadUint16(p.Data(), off))
	n := 2 + keyLen + 6
	if p.Type() == page.TypeIntermediateIndex {
		n += 4
	}
	return p.Data()[off : off+n]
}

// entryCompoundAt returns the (key, RowId) compound of entry i, the same
// on leaf and intermediate pages since both share entryBytes' prefix.
func entryCompoundAt(p *page.Page, i int) ([]byte, page.RowId) {
	return parseEntry(entryAt(p, i))
}

func childPageAt(p *page.Page, i int) page.Number {
	_, _, c := parseInteriorEntry(entryAt(p, i))
	return c
}

// compareEntry orders two (key, RowId) compounds: key bytes first,
// RowId as a
// tiebreaker so duplicate keys on a non-unique index still have one
// well-defined, stable tree order.
func compareEntry(key1 []byte, row1 page.RowId, key2 []byte, row2 page.RowId) int {
	if c := compareBytes(key1, key2); c != 0 {
		return c
	}
	if row1.Page != row2.Page {
		if row1.Page < row2.Page {
			return -1
		}
		return 1
	}
	switch {
	case row1.Row < row2.Row:
		return -1
	case row1.Row > row2.Row:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// searchSlot returns the index of the first entry whose (key, RowId)
// compound is >= (key, row) - the standard B-tree search/insertion
// point, via binary search over the page's sorted slot array.
func searchSlot(p *page.Page, key []byte, row page.RowId) int {
	n := entryCount(p)
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		mk, mr := entryCompoundAt(p, mid)
		if compareEntry(mk, mr, key, row) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// childIndexForKey finds which child of an intermediate page holds
// (key, row): the first child whose separator entry is >= (key, row),
// or rightChild if every separator is smaller.
func childIndexForKey(p *page.Page, key []byte, row page.RowId) (idx int, isRight bool) {
	i := searchSlot(p, key, row)
	if i >= entryCount(p) {
		return 0, true
	}
	return i, false
}

// insertEntryAt inserts entryBytes at slot index i, shifting higher
// slots up, and appending the bytes to the (shrinking) data area - the
// same "grow data area downward, slot array upward" shape as
// jet/table's row insertion, generalized to keep the slot array in
// sorted order instead of insertion order.
func insertEntryAt(p *page.Page, i int, bytes []byte) error {
	if freeBytes(p) < len(bytes)+2 {
		return jeterr.New(jeterr.FormatViolation, "index node page has no room for a %d-byte entry", len(bytes))
	}
	n := entryCount(p)
	newStart := dataAreaStart(p) - len(bytes)
	copy(p.Data()[newStart:], bytes)

	for j := n; j > i; j-- {
		writeSlotPtr(p, j, readSlotPtr(p, j-1))
	}
	writeSlotPtr(p, i, newStart)

	setDataAreaStart(p, newStart)
	setEntryCount(p, n+1)
	p.MarkDirty()
	return nil
}

// removeEntryAt deletes the entry at slot index i. Freed data-area bytes
// are not reclaimed until the page is rebuilt (rebuildPage), matching
// jet/table's tombstone-then-compact approach to deleted rows.
func removeEntryAt(p *page.Page, i int) {
	n := entryCount(p)
	for j := i; j < n-1; j++ {
		writeSlotPtr(p, j, readSlotPtr(p, j+1))
	}
	setEntryCount(p, n-1)
	p.MarkDirty()
}

// rebuildPage compacts p's data area by rewriting every live entry back
// to back in slot order, reclaiming bytes left behind by removeEntryAt.
func rebuildPage(p *page.Page, pageSize int) {
	n := entryCount(p)
	entries := make([][]byte, n)
	for i := 0; i < n; i++ {
		entries[i] = append([]byte(nil), entryAt(p, i)...)
	}
	rc := page.Number(0)
	if p.Type() == page.TypeIntermediateIndex {
		rc = rightChild(p)
	}
	initNode(p, p.Type(), pageSize)
	if p.Type() == page.TypeIntermediateIndex {
		setRightChild(p, rc)
	}
	off := pageSize
	for i, e := range entries {
		off -= len(e)
		copy(p.Data()[off:], e)
		writeSlotPtr(p, i, off)
	}
	setDataAreaStart(p, off)
	setEntryCount(p, n)
	p.MarkDirty()
}
