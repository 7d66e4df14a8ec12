// Package table implements Table, the row-storage runtime: data-page
// row layout, row insert/update/delete, the overflow-pointer-row
// mechanism, and per-table owned/free-space usage maps. Row data grows
// backward from the page tail while the slot array grows forward from
// the header; insertion picks a page with room or allocates a fresh
// one.
package table

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/jetlog"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/usagemap"
)

// Row slot header bits, packed into the top 2 bits of each 2-byte slot
// entry; the low 14 bits hold the row's byte offset within the page.
const (
	slotFlagOverflow = uint16(0x8000)
	slotFlagDeleted  = uint16(0x4000)
	slotOffsetMask   = uint16(0x3FFF)
)

// dataPageHeaderLen is the fixed header size of a DATA page: type byte,
// 2-byte data-area start offset, 2-byte row count.
const dataPageHeaderLen = 5

// Table owns a set of Columns and the data pages that store their rows.
// Its definition page number is its identity.
type Table struct {
	DefPage page.Number
	Name    string
	Columns []*column.Column

	channel *page.Channel
	jfmt    format.JetFormat
	charset encoding.Encoding
	loc     *time.Location
	log     jetlog.Logger

	// OwnedPages lists every data page belonging to this table.
	OwnedPages *usagemap.Map

	// FreeSpacePages lists data pages with enough room for another
	// average-sized row, consulted first on insert.
	FreeSpacePages *usagemap.Map

	// autoGens holds one autonumber Generator per column number flagged
	// FlagAutoNumber.
	autoGens map[int]column.Generator
}

// Option configures a Table at construction.
type Option func(*Table)

// WithCharset overrides the 8-bit charset used to encode/decode
// non-Unicode TEXT columns; nil (the default) means UTF-16LE.
func WithCharset(enc encoding.Encoding) Option {
	return func(t *Table) { t.charset = enc }
}

// WithLocation overrides the time.Location used for SHORT_DATE_TIME
// conversion; nil (the default) means time.Local.
func WithLocation(loc *time.Location) Option {
	return func(t *Table) { t.loc = loc }
}

// WithLogger attaches a logger; nil (the default) discards everything.
func WithLogger(l jetlog.Logger) Option {
	return func(t *Table) { t.log = l }
}

// New constructs a Table bound to an already-open Channel. Columns must
// be supplied in declaration order; callers build this from a parsed
// TABLE_DEF page (see jet/catalog) or from CreateTable.
func New(defPage page.Number, name string, cols []*column.Column, ch *page.Channel, ownedPages, freeSpacePages *usagemap.Map, opts ...Option) *Table {
	t := &Table{
		DefPage:        defPage,
		Name:           name,
		Columns:        cols,
		channel:        ch,
		jfmt:           ch.Format(),
		OwnedPages:     ownedPages,
		FreeSpacePages: freeSpacePages,
		autoGens:       make(map[int]column.Generator),
	}
	for _, c := range cols {
		if c.Flags.Has(column.FlagAutoNumber) {
			t.autoGens[c.Number] = defaultGenerator(c)
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// defaultGenerator picks the autonumber flavor for c: GUID columns get
// a UUID-v4 generator, LONG columns a persisted
// counter, COMPLEX columns a complex-type counter, everything else the
// unsupported placeholder.
func defaultGenerator(c *column.Column) column.Generator {
	switch c.Type {
	case column.TypeGUID:
		return column.GUIDGenerator{}
	case column.TypeInt32:
		return column.NewLongGenerator(0)
	case column.TypeComplex:
		return column.NewComplexGenerator(0)
	default:
		return column.UnsupportedGenerator{}
	}
}

// SetAutoNumberSeed overrides the starting counter for column columnNumber's
// autonumber generator, used when reopening a table whose last-issued
// value was persisted on its TABLE_DEF page (see tabledef.go).
func (t *Table) SetAutoNumberSeed(columnNumber int, seed int32) {
	c := t.columnByNumber(columnNumber)
	if c == nil {
		return
	}
	switch c.Type {
	case column.TypeInt32:
		t.autoGens[columnNumber] = column.NewLongGenerator(seed)
	case column.TypeComplex:
		t.autoGens[columnNumber] = column.NewComplexGenerator(seed)
	}
}

func (t *Table) columnByNumber(n int) *column.Column {
	for _, c := range t.Columns {
		if c.Number == n {
			return c
		}
	}
	return nil
}

// Logger returns the table's logger, never nil.
func (t *Table) Logger() jetlog.Logger {
	if t.log == nil {
		t.log = jetlog.Discard()
	}
	return t.log
}

func (t *Table) location() *time.Location {
	if t.loc != nil {
		return t.loc
	}
	return time.Local
}

// ColumnByName looks up a column case-insensitively.
func (t *Table) ColumnByName(name string) (*column.Column, bool) {
	for _, c := range t.Columns {
		if equalFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func lookupValue(values map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	for k, v := range values {
		if equalFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func invalidValue(c *column.Column, err error) error {
	return jeterr.Wrap(jeterr.InvalidValue, err, "column %q", c.Name)
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("want an integer type, got %T", raw)
	}
}

func toUint8(raw interface{}) (byte, error) {
	v, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// newDataPageHeader initializes a freshly allocated page as an empty
// DATA page: the data area starts at the very end of the page (nothing
// written yet) and shrinks toward the header as rows are appended.
func newDataPageHeader(p *page.Page, pageSize int) {
	p.SetType(page.TypeDataPage)
	data := p.Data()
	writeUint16(data, 1, uint16(pageSize))
	writeUint16(data, 3, 0)
}

func readUint16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func writeUint16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func dataAreaStart(p *page.Page) int {
	return int(readUint16(p.Data(), 1))
}

func rowCount(p *page.Page) int {
	return int(readUint16(p.Data(), 3))
}

func setDataAreaStart(p *page.Page, v int) {
	writeUint16(p.Data(), 1, uint16(v))
}

func setRowCount(p *page.Page, v int) {
	writeUint16(p.Data(), 3, uint16(v))
}

func slotOffset(rowNumber int) int {
	return dataPageHeaderLen + rowNumber*2
}

func readSlot(p *page.Page, rowNumber int) (offset int, deleted, overflow bool) {
	raw := readUint16(p.Data(), slotOffset(rowNumber))
	return int(raw & slotOffsetMask), raw&slotFlagDeleted != 0, raw&slotFlagOverflow != 0
}

func writeSlot(p *page.Page, rowNumber, offset int, deleted, overflow bool) {
	v := uint16(offset) & slotOffsetMask
	if deleted {
		v |= slotFlagDeleted
	}
	if overflow {
		v |= slotFlagOverflow
	}
	writeUint16(p.Data(), slotOffset(rowNumber), v)
}

// freeSpace returns the number of bytes available for a new row on p,
// matching invariant 4: pageSize minus header minus occupied row bytes
// minus slot-array bytes.
func freeSpace(p *page.Page, pageSize int) int {
	slotsEnd := slotOffset(rowCount(p))
	return dataAreaStart(p) - slotsEnd
}

// fits reports whether a row of rowLen bytes, plus its new slot entry,
// can be added to p without exceeding pageSize.
func fits(p *page.Page, rowLen int) bool {
	return freeSpace(p, len(p.Data())) >= rowLen+2
}

// rowBounds returns the byte range [start, end) of row rowNumber's data,
// where end is the offset of the row stored just above it on the page
// (or the page's end for the row at the highest offset, i.e. the first
// one added).
func rowBounds(p *page.Page, rowNumber int) (start, end int, deleted bool) {
	offset, del, _ := readSlot(p, rowNumber)
	// The end of this row's bytes is the start of whichever row occupies
	// the next-higher offset, or the page's own tail if none exists.
	// Deleted rows still own their byte span until the page is compacted,
	// so they bound their neighbors like any other row.
	end = len(p.Data())
	for i := 0; i < rowCount(p); i++ {
		if i == rowNumber {
			continue
		}
		o, _, _ := readSlot(p, i)
		if o > offset && o < end {
			end = o
		}
	}
	return offset, end, del
}

// resolveRow follows a row's overflow-pointer chain to the page/row
// actually holding its data.
func (t *Table) resolveRow(id page.RowId) (p *page.Page, rowNumber int, err error) {
	cur := id
	for hop := 0; hop < 16; hop++ {
		pg, err := t.channel.ReadPage(cur.Page)
		if err != nil {
			return nil, 0, err
		}
		if int(cur.Row) >= rowCount(pg) {
			return nil, 0, jeterr.New(jeterr.NotFound, "row %s does not exist", cur)
		}
		_, deleted, overflow := readSlot(pg, int(cur.Row))
		if deleted {
			return nil, 0, jeterr.New(jeterr.NotFound, "row %s is deleted", cur)
		}
		if !overflow {
			return pg, int(cur.Row), nil
		}
		start, _, _ := rowBounds(pg, int(cur.Row))
		ptr := pg.Data()[start : start+4]
		cur = page.RowId{Row: uint16(ptr[0]), Page: page.Number(bytecodec.ReadUint24(ptr, 1))}
	}
	return nil, 0, jeterr.New(jeterr.FormatViolation, "overflow pointer chain too deep at %s", id)
}

// ReadRow implements column.RowReader for LVAL chain walking: it returns
// a row's raw bytes given its RowId, following overflow-pointer
// redirection if present.
func (t *Table) ReadRow(id page.RowId) ([]byte, error) {
	pg, rowNumber, err := t.resolveRow(id)
	if err != nil {
		return nil, err
	}
	start, end, _ := rowBounds(pg, rowNumber)
	return pg.Data()[start:end], nil
}

var _ column.RowReader = (*Table)(nil)

// pageForInsert finds (or allocates) a data page with room for a row of
// need bytes, consulting FreeSpacePages first.
func (t *Table) pageForInsert(need int) (*page.Page, error) {
	for _, pn := range t.FreeSpacePages.PageNumbers() {
		p, err := t.channel.ReadPage(pn)
		if err != nil {
			return nil, err
		}
		if fits(p, need) {
			return p, nil
		}
	}

	p, err := t.channel.AllocateNewPage(page.TypeDataPage)
	if err != nil {
		return nil, err
	}
	newDataPageHeader(p, t.channel.PageSize())
	p.MarkDirty()
	if err := t.channel.WritePage(p); err != nil {
		return nil, err
	}
	if err := t.OwnedPages.Add(p.Number()); err != nil {
		return nil, err
	}
	if err := t.FreeSpacePages.Add(p.Number()); err != nil {
		return nil, err
	}
	return p, nil
}

// minFreeSpaceThreshold is the free-space floor below which a page is
// dropped from FreeSpacePages.
const minFreeSpaceThreshold = 16

func (t *Table) updateFreeSpace(p *page.Page) {
	if freeSpace(p, t.channel.PageSize()) < minFreeSpaceThreshold {
		_ = t.FreeSpacePages.Remove(p.Number())
	} else {
		_ = t.FreeSpacePages.Add(p.Number())
	}
}

// insertRawRow appends rowBytes as a brand-new row, returning its RowId.
// It is also used to place long-value overflow rows, whose "row bytes"
// are not schema-shaped at all.
func (t *Table) insertRawRow(rowBytes []byte) (page.RowId, error) {
	p, err := t.pageForInsert(len(rowBytes))
	if err != nil {
		return page.RowId{}, err
	}
	rn := rowCount(p)
	newStart := dataAreaStart(p) - len(rowBytes)
	if newStart < slotOffset(rn+1) {
		return page.RowId{}, jeterr.New(jeterr.FormatViolation, "row does not fit on page %d after allocation", p.Number())
	}
	copy(p.Data()[newStart:newStart+len(rowBytes)], rowBytes)
	setDataAreaStart(p, newStart)
	writeSlot(p, rn, newStart, false, false)
	setRowCount(p, rn+1)
	p.MarkDirty()
	if err := t.channel.WritePage(p); err != nil {
		return page.RowId{}, err
	}
	t.updateFreeSpace(p)
	return page.RowId{Page: p.Number(), Row: uint16(rn)}, nil
}

// InsertRow encodes values (column name -> typed Go value,
// case-insensitive) and appends it as a new row, filling in any
// unspecified autonumber columns along the way.
func (t *Table) InsertRow(values map[string]interface{}) (page.RowId, error) {
	resolved := make(map[string]interface{}, len(values))
	for k, v := range values {
		resolved[k] = v
	}
	for _, c := range t.Columns {
		if !c.Flags.Has(column.FlagAutoNumber) {
			continue
		}
		if _, present := lookupValue(resolved, c.Name); present {
			continue
		}
		gen := t.autoGens[c.Number]
		v, err := gen.Next()
		if err != nil {
			return page.RowId{}, err
		}
		resolved[c.Name] = v
	}

	rowBytes, err := t.encodeRowBytes(resolved)
	if err != nil {
		return page.RowId{}, err
	}
	return t.insertRawRow(rowBytes)
}

// GetRow decodes the row at id into a column-name -> value map.
func (t *Table) GetRow(id page.RowId) (map[string]interface{}, error) {
	pg, rowNumber, err := t.resolveRow(id)
	if err != nil {
		return nil, err
	}
	start, end, _ := rowBounds(pg, rowNumber)
	data := pg.Data()[start:end]

	fixedBytes, cellBytes, nullMask, err := disassembleRow(t.Columns, data)
	if err != nil {
		return nil, err
	}
	return t.decodeRowValues(fixedBytes, cellBytes, nullMask)
}

// fitsInPlace reports whether a row of newLen bytes can replace the
// current row at rowNumber without moving its start offset: the row's
// usable span (per rowBounds, bounded by its neighbors) must cover it.
func fitsInPlace(pg *page.Page, rowNumber int, newLen int) bool {
	start, end, _ := rowBounds(pg, rowNumber)
	return newLen <= end-start
}

func (t *Table) replaceRowInPlace(pg *page.Page, rowNumber int, rowBytes []byte) error {
	offset, _, _ := readSlot(pg, rowNumber)
	// A shorter row is padded between its variable cells and its trailing
	// offset table/null mask, so both stay at the end of the row's span
	// where disassembleRow reads them.
	start, end, _ := rowBounds(pg, rowNumber)
	if pad := (end - start) - len(rowBytes); pad > 0 {
		tail := len(rowBytes) - (variableColumnCount(t.Columns)+1)*2 - nullMaskBytes(t.Columns)
		padded := make([]byte, end-start)
		copy(padded, rowBytes[:tail])
		copy(padded[tail+pad:], rowBytes[tail:])
		rowBytes = padded
	}
	copy(pg.Data()[offset:offset+len(rowBytes)], rowBytes)
	writeSlot(pg, rowNumber, offset, false, false)
	pg.MarkDirty()
	return t.channel.WritePage(pg)
}

// redirectRow rewrites oldID's slot into a 4-byte overflow pointer row
// (flag 0x80) aimed at newID.
func (t *Table) redirectRow(oldID, newID page.RowId) error {
	pg, err := t.channel.ReadPage(oldID.Page)
	if err != nil {
		return err
	}
	if int(oldID.Row) >= rowCount(pg) {
		return jeterr.New(jeterr.NotFound, "row %s does not exist", oldID)
	}
	offset, _, _ := readSlot(pg, int(oldID.Row))
	ptr := make([]byte, 4)
	ptr[0] = byte(newID.Row)
	bytecodec.WriteUint24(ptr, 1, uint32(newID.Page))
	copy(pg.Data()[offset:offset+4], ptr)
	writeSlot(pg, int(oldID.Row), offset, false, true)
	pg.MarkDirty()
	return t.channel.WritePage(pg)
}

// UpdateRow merges patch into the row currently at id (unspecified
// columns keep their existing value) and re-encodes it, updating the row
// in place when it still fits its physical span and otherwise relocating
// it and leaving an overflow-pointer row behind at id.
func (t *Table) UpdateRow(id page.RowId, patch map[string]interface{}) error {
	current, err := t.GetRow(id)
	if err != nil {
		return err
	}
	merged := make(map[string]interface{}, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	rowBytes, err := t.encodeRowBytes(merged)
	if err != nil {
		return err
	}

	pg, rowNumber, err := t.resolveRow(id)
	if err != nil {
		return err
	}

	if fitsInPlace(pg, rowNumber, len(rowBytes)) {
		return t.replaceRowInPlace(pg, rowNumber, rowBytes)
	}

	newID, err := t.insertRawRow(rowBytes)
	if err != nil {
		return err
	}
	if newID == id {
		return nil
	}
	return t.redirectRow(id, newID)
}

// DeleteRow marks id's row slot deleted, walking any overflow-pointer
// chain and marking every hop deleted. Long-value (LVAL) rows referenced
// from the row's cells are not marked and stay in place.
func (t *Table) DeleteRow(id page.RowId) error {
	cur := id
	for hop := 0; hop < 16; hop++ {
		pg, err := t.channel.ReadPage(cur.Page)
		if err != nil {
			return err
		}
		if int(cur.Row) >= rowCount(pg) {
			return jeterr.New(jeterr.NotFound, "row %s does not exist", cur)
		}
		offset, deleted, overflow := readSlot(pg, int(cur.Row))
		if deleted {
			return nil
		}
		start, _, _ := rowBounds(pg, int(cur.Row))
		var next page.RowId
		if overflow {
			ptr := pg.Data()[start : start+4]
			next = page.RowId{Row: uint16(ptr[0]), Page: page.Number(bytecodec.ReadUint24(ptr, 1))}
		}
		writeSlot(pg, int(cur.Row), offset, true, overflow)
		pg.MarkDirty()
		if err := t.channel.WritePage(pg); err != nil {
			return err
		}
		t.updateFreeSpace(pg)
		if !overflow {
			return nil
		}
		cur = next
	}
	return jeterr.New(jeterr.FormatViolation, "overflow pointer chain too deep at %s", id)
}

// IsRowDeleted reports whether id's immediate slot (not following
// overflow redirection) is marked deleted.
func (t *Table) IsRowDeleted(id page.RowId) (bool, error) {
	pg, err := t.channel.ReadPage(id.Page)
	if err != nil {
		return false, err
	}
	if int(id.Row) >= rowCount(pg) {
		return false, jeterr.New(jeterr.NotFound, "row %s does not exist", id)
	}
	_, deleted, _ := readSlot(pg, int(id.Row))
	return deleted, nil
}

// RowNumbers returns every row number (deleted or not) present on page
// pn, in ascending order, for cursor/table-scan use.
func (t *Table) RowNumbers(pn page.Number) ([]uint16, error) {
	pg, err := t.channel.ReadPage(pn)
	if err != nil {
		return nil, err
	}
	n := rowCount(pg)
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(i)
	}
	return out, nil
}

// RowSlotState reports a row's deleted/overflow flags without resolving
// or decoding it, for cursor bookkeeping.
func (t *Table) RowSlotState(id page.RowId) (deleted, overflow bool, err error) {
	pg, err := t.channel.ReadPage(id.Page)
	if err != nil {
		return false, false, err
	}
	if int(id.Row) >= rowCount(pg) {
		return false, false, jeterr.New(jeterr.NotFound, "row %s does not exist", id)
	}
	_, deleted, overflow = readSlot(pg, int(id.Row))
	return deleted, overflow, nil
}

// encodeLvalValue builds a 12-byte LVAL descriptor cell for raw,
// choosing inline, single-row-overflow, or chained storage depending on
// size.
func (t *Table) encodeLvalValue(raw []byte) ([]byte, error) {
	const inlineBudget = 200
	if len(raw) <= inlineBudget {
		desc := column.DescribeInline(uint32(len(raw)))
		cell := desc.Encode()
		return append(cell, raw...), nil
	}

	singleRowCapacity := t.channel.PageSize() - dataPageHeaderLen - 2
	if len(raw) <= singleRowCapacity {
		id, err := t.insertRawRow(raw)
		if err != nil {
			return nil, err
		}
		desc := column.DescribeOverflow(uint32(len(raw)), id)
		return desc.Encode(), nil
	}

	id, err := t.writeLvalChain(raw)
	if err != nil {
		return nil, err
	}
	desc := column.DescribeChain(uint32(len(raw)), id)
	return desc.Encode(), nil
}

// writeLvalChain splits raw across a chain of overflow rows, each
// prefixed by a 4-byte (row#, 3-byte page#) pointer to its successor,
// the last row's pointer being the zero RowId.
func (t *Table) writeLvalChain(raw []byte) (page.RowId, error) {
	capacity := t.channel.PageSize() - dataPageHeaderLen - 2 - 4
	if capacity <= 0 {
		return page.RowId{}, jeterr.New(jeterr.Unsupported, "page too small for long-value overflow rows")
	}

	var chunks [][]byte
	for off := 0; off < len(raw); off += capacity {
		end := off + capacity
		if end > len(raw) {
			end = len(raw)
		}
		chunks = append(chunks, raw[off:end])
	}

	var next page.RowId
	for i := len(chunks) - 1; i >= 0; i-- {
		payload := chunks[i]
		cell := make([]byte, 4+len(payload))
		cell[0] = byte(next.Row)
		bytecodec.WriteUint24(cell, 1, uint32(next.Page))
		copy(cell[4:], payload)

		id, err := t.insertRawRow(cell)
		if err != nil {
			return page.RowId{}, err
		}
		next = id
	}
	return next, nil
}

// encodeRowBytes resolves values against t.Columns and returns the
// on-disk row layout, including any LVAL overflow/chain rows it had to
// allocate along the way.
func (t *Table) encodeRowBytes(values map[string]interface{}) ([]byte, error) {
	fixedBytes := make([]byte, fixedAreaSize(t.Columns))
	var cellBytes [][]byte
	nullMask := make([]byte, nullMaskBytes(t.Columns))

	for _, c := range t.Columns {
		if c.Type == column.TypeBoolean {
			raw, _ := lookupValue(values, c.Name)
			b, _ := raw.(bool)
			if bit, ok := maskBitIndex(t.Columns, c); ok {
				setMaskBit(nullMask, bit, column.EncodeBoolean(b))
			}
			continue
		}

		raw, present := lookupValue(values, c.Name)
		isNull := !present || raw == nil

		if isNull {
			if !c.Nullable() {
				return nil, jeterr.New(jeterr.InvalidValue, "column %q is not nullable", c.Name)
			}
			if bit, ok := maskBitIndex(t.Columns, c); ok {
				setMaskBit(nullMask, bit, true)
			}
			if !c.Type.IsFixedLength() {
				cellBytes = append(cellBytes, nil)
			}
			continue
		}

		if bit, ok := maskBitIndex(t.Columns, c); ok {
			setMaskBit(nullMask, bit, false)
		}

		if c.Type.IsFixedLength() {
			if err := t.encodeFixed(c, raw, fixedBytes); err != nil {
				return nil, err
			}
			continue
		}

		cell, err := t.encodeVariable(c, raw)
		if err != nil {
			return nil, err
		}
		cellBytes = append(cellBytes, cell)
	}

	return assembleRow(t.Columns, fixedBytes, cellBytes, nullMask), nil
}

func (t *Table) encodeFixed(c *column.Column, raw interface{}, fixedBytes []byte) error {
	off := c.FixedOffset
	switch c.Type {
	case column.TypeByte:
		v, err := toUint8(raw)
		if err != nil {
			return invalidValue(c, err)
		}
		fixedBytes[off] = v
	case column.TypeInt16:
		v, err := toInt64(raw)
		if err != nil {
			return invalidValue(c, err)
		}
		bytecodec.WriteInt16(fixedBytes, off, int16(v))
	case column.TypeInt32:
		v, err := toInt64(raw)
		if err != nil {
			return invalidValue(c, err)
		}
		bytecodec.WriteInt32(fixedBytes, off, int32(v))
	case column.TypeFloat32:
		v, ok := raw.(float32)
		if !ok {
			return invalidValue(c, fmt.Errorf("want float32, got %T", raw))
		}
		bytecodec.WriteFloat32(fixedBytes, off, v)
	case column.TypeFloat64:
		v, ok := raw.(float64)
		if !ok {
			return invalidValue(c, fmt.Errorf("want float64, got %T", raw))
		}
		bytecodec.WriteFloat64(fixedBytes, off, v)
	case column.TypeMoney:
		v, err := toInt64(raw)
		if err != nil {
			return invalidValue(c, err)
		}
		column.EncodeMoney(fixedBytes, off, v)
	case column.TypeShortDateTime:
		v, ok := raw.(time.Time)
		if !ok {
			return invalidValue(c, fmt.Errorf("want time.Time, got %T", raw))
		}
		bytecodec.WriteFloat64(fixedBytes, off, column.EncodeShortDateTime(v, t.location()))
	case column.TypeGUID:
		v, ok := raw.(uuid.UUID)
		if !ok {
			return invalidValue(c, fmt.Errorf("want uuid.UUID, got %T", raw))
		}
		column.EncodeGUID(fixedBytes, off, v)
	case column.TypeNumeric:
		v, ok := raw.(*big.Int)
		if !ok {
			return invalidValue(c, fmt.Errorf("want *big.Int, got %T", raw))
		}
		column.EncodeNumeric(fixedBytes, off, v)
	default:
		return jeterr.New(jeterr.Unsupported, "column %q has unsupported fixed type %s", c.Name, c.Type)
	}
	return nil
}

func (t *Table) encodeVariable(c *column.Column, raw interface{}) ([]byte, error) {
	switch c.Type {
	case column.TypeBinary:
		v, ok := raw.([]byte)
		if !ok {
			return nil, invalidValue(c, fmt.Errorf("want []byte, got %T", raw))
		}
		return v, nil
	case column.TypeText:
		s, ok := raw.(string)
		if !ok {
			return nil, invalidValue(c, fmt.Errorf("want string, got %T", raw))
		}
		return column.EncodeText(s, c.Compressed(), t.jfmt.MaxCompressedTextSize, t.charset)
	case column.TypeMemo:
		s, ok := raw.(string)
		if !ok {
			return nil, invalidValue(c, fmt.Errorf("want string, got %T", raw))
		}
		payload, err := column.EncodeText(s, c.Compressed(), t.jfmt.MaxCompressedTextSize, t.charset)
		if err != nil {
			return nil, err
		}
		return t.encodeLvalValue(payload)
	case column.TypeOLE:
		v, ok := raw.([]byte)
		if !ok {
			return nil, invalidValue(c, fmt.Errorf("want []byte, got %T", raw))
		}
		return t.encodeLvalValue(v)
	default:
		return nil, jeterr.New(jeterr.Unsupported, "column %q has unsupported variable type %s", c.Name, c.Type)
	}
}

func (t *Table) decodeRowValues(fixedBytes []byte, cellBytes [][]byte, nullMask []byte) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(t.Columns))
	varIdx := 0
	for _, c := range t.Columns {
		if c.Type == column.TypeBoolean {
			bit, _ := maskBitIndex(t.Columns, c)
			values[c.Name] = column.DecodeBoolean(getMaskBit(nullMask, bit))
			continue
		}

		if bit, ok := maskBitIndex(t.Columns, c); ok && getMaskBit(nullMask, bit) {
			values[c.Name] = nil
			if !c.Type.IsFixedLength() {
				varIdx++
			}
			continue
		}

		if c.Type.IsFixedLength() {
			v, err := t.decodeFixed(c, fixedBytes)
			if err != nil {
				return nil, err
			}
			values[c.Name] = v
			continue
		}

		cell := cellBytes[varIdx]
		varIdx++
		v, err := t.decodeVariable(c, cell)
		if err != nil {
			return nil, err
		}
		values[c.Name] = v
	}
	return values, nil
}

func (t *Table) decodeFixed(c *column.Column, fixedBytes []byte) (interface{}, error) {
	off := c.FixedOffset
	switch c.Type {
	case column.TypeByte:
		return fixedBytes[off], nil
	case column.TypeInt16:
		return bytecodec.ReadInt16(fixedBytes, off), nil
	case column.TypeInt32:
		return bytecodec.ReadInt32(fixedBytes, off), nil
	case column.TypeFloat32:
		return bytecodec.ReadFloat32(fixedBytes, off), nil
	case column.TypeFloat64:
		return bytecodec.ReadFloat64(fixedBytes, off), nil
	case column.TypeMoney:
		return column.DecodeMoney(fixedBytes, off), nil
	case column.TypeShortDateTime:
		return column.DecodeShortDateTime(bytecodec.ReadFloat64(fixedBytes, off), t.location()), nil
	case column.TypeGUID:
		return column.DecodeGUID(fixedBytes, off), nil
	case column.TypeNumeric:
		return column.DecodeNumeric(fixedBytes, off), nil
	default:
		return nil, jeterr.New(jeterr.Unsupported, "column %q has unsupported fixed type %s", c.Name, c.Type)
	}
}

func (t *Table) decodeVariable(c *column.Column, cell []byte) (interface{}, error) {
	switch c.Type {
	case column.TypeBinary:
		out := make([]byte, len(cell))
		copy(out, cell)
		return out, nil
	case column.TypeText:
		return column.DecodeText(cell, t.charset)
	case column.TypeMemo:
		if len(cell) < column.LvalDescriptorSize {
			return nil, jeterr.New(jeterr.FormatViolation, "memo cell shorter than its LVAL descriptor")
		}
		desc, err := column.ParseLvalDescriptor(cell)
		if err != nil {
			return nil, err
		}
		raw, err := column.ReadLval(desc, cell[column.LvalDescriptorSize:], t)
		if err != nil {
			return nil, err
		}
		return column.DecodeText(raw, t.charset)
	case column.TypeOLE:
		if len(cell) < column.LvalDescriptorSize {
			return nil, jeterr.New(jeterr.FormatViolation, "OLE cell shorter than its LVAL descriptor")
		}
		desc, err := column.ParseLvalDescriptor(cell)
		if err != nil {
			return nil, err
		}
		return column.ReadLval(desc, cell[column.LvalDescriptorSize:], t)
	default:
		return nil, jeterr.New(jeterr.Unsupported, "column %q has unsupported variable type %s", c.Name, c.Type)
	}
}
