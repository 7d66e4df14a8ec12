// Package usagemap implements UsageMap, the persistent bitset that
// tracks which pages are in use. Parsed header fields (map type, start
// page) are kept in sync with the backing row bytes on every mutation;
// the inline encoding stores the bits in the declaring row itself, the
// reference encoding points at dedicated usage-map pages.
package usagemap

import (
	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/jetlog"
	"github.com/jetdb/jetdb/jet/page"
)

// mapType is the first byte of a usage map's backing row.
type mapType byte

const (
	mapTypeInline    mapType = 0x00
	mapTypeReference mapType = 0x01
)

// Storage is the fixed-size byte buffer a usage map is stored in - the
// table-definition-page row that owns it. Both the inline bitset layout
// and the reference pointer-array layout live in the same buffer; only
// the first byte (mapType) and how the remainder is interpreted differ.
type Storage interface {
	Bytes() []byte
	MarkDirty()
}

// Map is a per-table usage map (an owned-pages or free-space map).
// Use New to create one backed by fresh storage, or Load
// to parse one out of existing bytes.
type Map struct {
	storage Storage
	channel *page.Channel
	jfmt    format.JetFormat

	kind      mapType
	startPage page.Number // inline only
	refPages  []page.Number
}

// New initializes storage as an empty inline map starting at page 0.
func New(storage Storage, channel *page.Channel, jfmt format.JetFormat) *Map {
	b := storage.Bytes()
	for i := range b {
		b[i] = 0
	}
	b[0] = byte(mapTypeInline)
	bytecodec.WriteUint32(b, 1, 0)
	storage.MarkDirty()
	return &Map{storage: storage, channel: channel, jfmt: jfmt, kind: mapTypeInline}
}

// Load parses an existing usage map row.
func Load(storage Storage, channel *page.Channel, jfmt format.JetFormat) (*Map, error) {
	b := storage.Bytes()
	if len(b) < 5 {
		return nil, jeterr.New(jeterr.FormatViolation, "usage map row too short: %d bytes", len(b))
	}
	m := &Map{storage: storage, channel: channel, jfmt: jfmt, kind: mapType(b[0])}
	switch m.kind {
	case mapTypeInline:
		m.startPage = page.Number(bytecodec.ReadUint32(b, 1))
	case mapTypeReference:
		n := (len(b) - 1) / 4
		m.refPages = make([]page.Number, 0, n)
		for i := 0; i < n; i++ {
			p := page.Number(bytecodec.ReadUint32(b, 1+i*4))
			if p != 0 {
				m.refPages = append(m.refPages, p)
			}
		}
	default:
		return nil, jeterr.New(jeterr.FormatViolation, "unrecognized usage map type 0x%02x", b[0])
	}
	return m, nil
}

func (m *Map) inlineCapacityBits() int {
	return (len(m.storage.Bytes()) - 5) * 8
}

// Contains reports whether n is marked used.
func (m *Map) Contains(n page.Number) bool {
	switch m.kind {
	case mapTypeInline:
		if n < m.startPage {
			return false
		}
		bit := int(n - m.startPage)
		if bit >= m.inlineCapacityBits() {
			return false
		}
		return testBit(m.storage.Bytes()[5:], bit)
	case mapTypeReference:
		return m.referenceContains(n)
	default:
		return false
	}
}

func (m *Map) referenceContains(n page.Number) bool {
	bitsPerPage := m.jfmt.UsageMapPageBits - 32
	for _, ref := range m.refPages {
		pg, err := m.channel.ReadPage(ref)
		if err != nil {
			return false
		}
		data := pg.Data()
		start := page.Number(bytecodec.ReadUint32(data, 1))
		if n < start {
			continue
		}
		bit := int(n - start)
		if bit >= bitsPerPage {
			continue
		}
		if testBit(data[5:], bit) {
			return true
		}
	}
	return false
}

// Add marks n as used, promoting inline storage to reference storage if
// the page number falls outside the inline window's reachable span.
func (m *Map) Add(n page.Number) error {
	if m.kind == mapTypeReference {
		return m.addReference(n)
	}
	return m.addInline(n)
}

func (m *Map) addInline(n page.Number) error {
	b := m.storage.Bytes()
	if m.startPage == 0 && !testBit(b[5:], 0) && isAllZero(b[5:]) {
		// First page ever added to an empty map: anchor the window at n
		// rounded down to a multiple of 8, so n falls at bit n%8. A later
		// slide down (below) moves the start to the added page exactly.
		m.startPage = (n / 8) * 8
		bytecodec.WriteUint32(b, 1, uint32(m.startPage))
	}

	if n < m.startPage {
		// Sliding the window down must not push any set bit off the
		// top; promote instead when the combined span won't fit.
		shift := int(m.startPage - n)
		if shift+highestSetBit(b[5:])+1 > m.inlineCapacityBits() {
			return m.promote(n)
		}
		shiftBitsRight(b[5:], shift)
		m.startPage -= page.Number(shift)
		bytecodec.WriteUint32(b, 1, uint32(m.startPage))
	}

	bit := int(n - m.startPage)
	if bit >= m.inlineCapacityBits() {
		return m.promote(n)
	}
	setBit(b[5:], bit, true)
	m.storage.MarkDirty()
	return nil
}

func (m *Map) addReference(n page.Number) error {
	bitsPerPage := m.jfmt.UsageMapPageBits - 32
	for _, ref := range m.refPages {
		pg, err := m.channel.ReadPage(ref)
		if err != nil {
			return err
		}
		data := pg.Data()
		start := page.Number(bytecodec.ReadUint32(data, 1))
		if n >= start && int(n-start) < bitsPerPage {
			setBit(data[5:], int(n-start), true)
			pg.MarkDirty()
			return m.channel.WritePage(pg)
		}
	}
	return m.addNewReferencePage(n)
}

func (m *Map) addNewReferencePage(n page.Number) error {
	b := m.storage.Bytes()
	slots := (len(b) - 1) / 4
	for i := 0; i < slots; i++ {
		if bytecodec.ReadUint32(b, 1+i*4) == 0 {
			pg, err := m.channel.AllocateNewPage(page.TypePageUsageMap)
			if err != nil {
				return err
			}
			start := (n / 8) * 8
			data := pg.Data()
			bytecodec.WriteUint32(data, 1, uint32(start))
			setBit(data[5:], int(n-start), true)
			pg.MarkDirty()
			if err := m.channel.WritePage(pg); err != nil {
				return err
			}
			bytecodec.WriteUint32(b, 1+i*4, uint32(pg.Number()))
			m.refPages = append(m.refPages, pg.Number())
			m.storage.MarkDirty()
			return nil
		}
	}
	return jeterr.New(jeterr.Unsupported, "usage map reference row has no free pointer slots")
}

// promote converts an inline map to reference encoding in place, cloning
// existing bits into one or more dedicated USAGE_MAP pages, then adds n.
func (m *Map) promote(n page.Number) error {
	if m.channel != nil {
		jetlog.WithPage(m.channel.Logger(), uint32(n)).Debug("promoting inline usage map to reference encoding")
	}
	b := m.storage.Bytes()
	oldStart := m.startPage
	oldBits := make([]byte, len(b)-5)
	copy(oldBits, b[5:])

	for i := range b {
		b[i] = 0
	}
	b[0] = byte(mapTypeReference)
	m.kind = mapTypeReference
	m.refPages = nil
	m.storage.MarkDirty()

	for bit := 0; bit < len(oldBits)*8; bit++ {
		if testBit(oldBits, bit) {
			if err := m.addReference(oldStart + page.Number(bit)); err != nil {
				return err
			}
		}
	}
	return m.addReference(n)
}

// Remove clears n's bit. Removing a page that was never set is a no-op.
func (m *Map) Remove(n page.Number) error {
	switch m.kind {
	case mapTypeInline:
		if n < m.startPage {
			return nil
		}
		bit := int(n - m.startPage)
		if bit >= m.inlineCapacityBits() {
			return nil
		}
		setBit(m.storage.Bytes()[5:], bit, false)
		m.storage.MarkDirty()
		return nil
	case mapTypeReference:
		bitsPerPage := m.jfmt.UsageMapPageBits - 32
		for _, ref := range m.refPages {
			pg, err := m.channel.ReadPage(ref)
			if err != nil {
				return err
			}
			data := pg.Data()
			start := page.Number(bytecodec.ReadUint32(data, 1))
			if n >= start && int(n-start) < bitsPerPage {
				setBit(data[5:], int(n-start), false)
				pg.MarkDirty()
				return m.channel.WritePage(pg)
			}
		}
		return nil
	default:
		return nil
	}
}

// PageNumbers returns every page number currently marked used. An inline
// map lists them in ascending order; a reference map lists them per
// reference page, in the order those pages were added, ascending within
// each.
func (m *Map) PageNumbers() []page.Number {
	var out []page.Number
	switch m.kind {
	case mapTypeInline:
		bits := m.storage.Bytes()[5:]
		for bit := 0; bit < len(bits)*8; bit++ {
			if testBit(bits, bit) {
				out = append(out, m.startPage+page.Number(bit))
			}
		}
	case mapTypeReference:
		bitsPerPage := m.jfmt.UsageMapPageBits - 32
		for _, ref := range m.refPages {
			pg, err := m.channel.ReadPage(ref)
			if err != nil {
				continue
			}
			data := pg.Data()
			start := page.Number(bytecodec.ReadUint32(data, 1))
			for bit := 0; bit < bitsPerPage; bit++ {
				if testBit(data[5:], bit) {
					out = append(out, start+page.Number(bit))
				}
			}
		}
	}
	return out
}

func testBit(bits []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(bits) {
		return false
	}
	return bits[byteIdx]&(1<<uint(i%8)) != 0
}

func setBit(bits []byte, i int, v bool) {
	byteIdx := i / 8
	if byteIdx >= len(bits) {
		return
	}
	if v {
		bits[byteIdx] |= 1 << uint(i%8)
	} else {
		bits[byteIdx] &^= 1 << uint(i%8)
	}
}

// highestSetBit returns the index of the highest set bit, or -1 when
// none is set.
func highestSetBit(bits []byte) int {
	for i := len(bits)*8 - 1; i >= 0; i-- {
		if testBit(bits, i) {
			return i
		}
	}
	return -1
}

func isAllZero(bits []byte) bool {
	for _, b := range bits {
		if b != 0 {
			return false
		}
	}
	return true
}

// shiftBitsRight shifts every bit in bits up by n positions (bit i moves
// to bit i+n), used when an inline map's window slides downward to admit
// a lower page number. Bits shifted past the top of the buffer are lost.
func shiftBitsRight(bits []byte, n int) {
	total := len(bits) * 8
	for i := total - 1; i >= 0; i-- {
		src := i - n
		v := src >= 0 && testBit(bits, src)
		setBit(bits, i, v)
	}
}
