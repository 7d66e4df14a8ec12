// TableDef is the parsed form of a TABLE_DEF page: the column
// descriptors recovered from the page's own binary layout. Index
// descriptors and the owned/free-space usage map storage rows are kept
// as an opaque trailer here - jet/catalog owns their layout so this
// package does not import jet/index.
package table

import (
	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/jeterr"
)

// TableDef is everything needed to reconstruct a Table from its
// definition page, plus an opaque trailer for the caller's own use.
type TableDef struct {
	Name    string
	Columns []*column.Column

	// AutoNumberSeeds maps a column number to the last value its
	// generator issued, persisted so autonumbers keep increasing across
	// a close/reopen.
	AutoNumberSeeds map[int]int32

	// Extra is an opaque byte blob appended after the column
	// descriptors; jet/catalog uses it to store index descriptors and
	// usage-map storage rows.
	Extra []byte
}

func writeString(buf []byte, off int, s string) int {
	b := []byte(s)
	bytecodec.WriteUint16(buf, off, uint16(len(b)))
	off += 2
	copy(buf[off:off+len(b)], b)
	return off + len(b)
}

func readString(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", off, jeterr.New(jeterr.FormatViolation, "table definition truncated reading a string length")
	}
	n := int(bytecodec.ReadUint16(buf, off))
	off += 2
	if off+n > len(buf) {
		return "", off, jeterr.New(jeterr.FormatViolation, "table definition truncated reading a %d-byte string", n)
	}
	return string(buf[off : off+n]), off + n, nil
}

const columnDescriptorFixedLen = 2 /*number*/ + 1 /*type*/ + 1 /*flags*/ + 2 /*length*/ + 2 /*fixedOffset*/ + 2 /*variableIndex*/ + 2 /*displayIndex*/ + 1 /*precision*/ + 1 /*scale*/ + 2 /*sortOrder*/

func encodedColumnLen(c *column.Column) int {
	return 2 + len(c.Name) + columnDescriptorFixedLen
}

func writeColumn(buf []byte, off int, c *column.Column) int {
	off = writeString(buf, off, c.Name)
	bytecodec.WriteUint16(buf, off, uint16(c.Number))
	off += 2
	buf[off] = byte(c.Type)
	off++
	buf[off] = byte(c.Flags)
	off++
	bytecodec.WriteUint16(buf, off, uint16(c.Length))
	off += 2
	bytecodec.WriteUint16(buf, off, uint16(c.FixedOffset))
	off += 2
	bytecodec.WriteUint16(buf, off, uint16(c.VariableIndex))
	off += 2
	bytecodec.WriteUint16(buf, off, uint16(c.DisplayIndex))
	off += 2
	buf[off] = c.Precision
	off++
	buf[off] = c.Scale
	off++
	bytecodec.WriteUint16(buf, off, c.SortOrder)
	off += 2
	return off
}

func readColumn(buf []byte, off int) (*column.Column, int, error) {
	name, off, err := readString(buf, off)
	if err != nil {
		return nil, off, err
	}
	if off+columnDescriptorFixedLen > len(buf) {
		return nil, off, jeterr.New(jeterr.FormatViolation, "table definition truncated reading column %q", name)
	}
	c := &column.Column{Name: name}
	c.Number = int(bytecodec.ReadUint16(buf, off))
	off += 2
	c.Type = column.Type(buf[off])
	off++
	c.Flags = column.Flags(buf[off])
	off++
	c.Length = int(bytecodec.ReadUint16(buf, off))
	off += 2
	c.FixedOffset = int(bytecodec.ReadUint16(buf, off))
	off += 2
	c.VariableIndex = int(bytecodec.ReadUint16(buf, off))
	off += 2
	c.DisplayIndex = int(bytecodec.ReadUint16(buf, off))
	off += 2
	c.Precision = buf[off]
	off++
	c.Scale = buf[off]
	off++
	c.SortOrder = bytecodec.ReadUint16(buf, off)
	off += 2
	return c, off, nil
}

// EncodeTableDef serializes def into a byte slice suitable for writing
// into (the tail of) a TABLE_DEF page, not including the page's own
// type byte (the caller, jet/catalog, owns the page header).
func EncodeTableDef(def TableDef) []byte {
	size := 2 + len(def.Name)
	size += 2 // column count
	for _, c := range def.Columns {
		size += encodedColumnLen(c)
	}
	size += 2 // autonumber seed count
	size += len(def.AutoNumberSeeds) * 6
	size += 4 + len(def.Extra)

	buf := make([]byte, size)
	off := writeString(buf, 0, def.Name)

	bytecodec.WriteUint16(buf, off, uint16(len(def.Columns)))
	off += 2
	for _, c := range def.Columns {
		off = writeColumn(buf, off, c)
	}

	bytecodec.WriteUint16(buf, off, uint16(len(def.AutoNumberSeeds)))
	off += 2
	for colNum, seed := range def.AutoNumberSeeds {
		bytecodec.WriteUint16(buf, off, uint16(colNum))
		off += 2
		bytecodec.WriteInt32(buf, off, seed)
		off += 4
	}

	bytecodec.WriteUint32(buf, off, uint32(len(def.Extra)))
	off += 4
	copy(buf[off:], def.Extra)
	off += len(def.Extra)

	return buf[:off]
}

// DecodeTableDef reverses EncodeTableDef.
func DecodeTableDef(buf []byte) (TableDef, error) {
	var def TableDef
	name, off, err := readString(buf, 0)
	if err != nil {
		return def, err
	}
	def.Name = name

	if off+2 > len(buf) {
		return def, jeterr.New(jeterr.FormatViolation, "table definition truncated reading column count")
	}
	colCount := int(bytecodec.ReadUint16(buf, off))
	off += 2

	def.Columns = make([]*column.Column, colCount)
	for i := 0; i < colCount; i++ {
		c, newOff, err := readColumn(buf, off)
		if err != nil {
			return def, err
		}
		def.Columns[i] = c
		off = newOff
	}

	if off+2 > len(buf) {
		return def, jeterr.New(jeterr.FormatViolation, "table definition truncated reading autonumber seed count")
	}
	seedCount := int(bytecodec.ReadUint16(buf, off))
	off += 2
	def.AutoNumberSeeds = make(map[int]int32, seedCount)
	for i := 0; i < seedCount; i++ {
		if off+6 > len(buf) {
			return def, jeterr.New(jeterr.FormatViolation, "table definition truncated reading autonumber seeds")
		}
		colNum := int(bytecodec.ReadUint16(buf, off))
		off += 2
		def.AutoNumberSeeds[colNum] = bytecodec.ReadInt32(buf, off)
		off += 4
	}

	if off+4 > len(buf) {
		return def, jeterr.New(jeterr.FormatViolation, "table definition truncated reading extra-section length")
	}
	extraLen := int(bytecodec.ReadUint32(buf, off))
	off += 4
	if off+extraLen > len(buf) {
		return def, jeterr.New(jeterr.FormatViolation, "table definition truncated reading %d-byte extra section", extraLen)
	}
	def.Extra = buf[off : off+extraLen]

	return def, nil
}

// ApplyAutoNumberSeeds seeds t's autonumber generators from def, used
// right after a Table is constructed from a freshly-decoded TableDef.
func (t *Table) ApplyAutoNumberSeeds(seeds map[int]int32) {
	for colNum, seed := range seeds {
		t.SetAutoNumberSeed(colNum, seed)
	}
}

// CurrentAutoNumberSeeds snapshots every persisted-counter autonumber
// generator's current value, for writing back into the table's
// TableDef.AutoNumberSeeds on close/flush.
func (t *Table) CurrentAutoNumberSeeds() map[int]int32 {
	out := make(map[int]int32)
	for num, gen := range t.autoGens {
		switch g := gen.(type) {
		case *column.LongGenerator:
			out[num] = g.Current()
		case *column.ComplexGenerator:
			out[num] = g.Current()
		}
	}
	return out
}
