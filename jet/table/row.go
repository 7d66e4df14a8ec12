// Row encode/decode: the fixed-area/variable-area/offset-table/null-mask
// row layout, built on top of jet/column's per-type codecs. Parsed
// header fields and the backing buffer are kept in lockstep on every
// mutation.
package table

import (
	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/jeterr"
)

// fixedAreaSize returns the byte length of the row's fixed-data area:
// the highest (FixedOffset + FixedSize) among cols' fixed-length columns.
func fixedAreaSize(cols []*column.Column) int {
	size := 0
	for _, c := range cols {
		if c.Type.IsFixedLength() {
			end := c.FixedOffset + c.Type.FixedSize()
			if end > size {
				size = end
			}
		}
	}
	return size
}

// variableColumnCount returns how many of cols are stored in the
// variable-length area (TEXT, BINARY, MEMO, OLE, COMPLEX).
func variableColumnCount(cols []*column.Column) int {
	n := 0
	for _, c := range cols {
		if !c.Type.IsFixedLength() {
			n++
		}
	}
	return n
}

// nullMaskBytes returns the number of bytes needed to hold one bit per
// column that can be null or is a BOOLEAN (which is always represented
// as a mask bit, never a fixed-data byte).
func nullMaskBytes(cols []*column.Column) int {
	bits := 0
	for _, c := range cols {
		if c.Nullable() || c.Type == column.TypeBoolean {
			bits++
		}
	}
	return (bits + 7) / 8
}

// maskBitIndex returns c's bit position within the null mask, and
// whether c occupies one at all.
func maskBitIndex(cols []*column.Column, c *column.Column) (int, bool) {
	bit := 0
	for _, other := range cols {
		maskable := other.Nullable() || other.Type == column.TypeBoolean
		if other == c {
			return bit, maskable
		}
		if maskable {
			bit++
		}
	}
	return 0, false
}

func getMaskBit(mask []byte, bit int) bool {
	idx := bit / 8
	if idx >= len(mask) {
		return false
	}
	return mask[idx]&(1<<uint(bit%8)) != 0
}

func setMaskBit(mask []byte, bit int, v bool) {
	idx := bit / 8
	if idx >= len(mask) {
		return
	}
	if v {
		mask[idx] |= 1 << uint(bit%8)
	} else {
		mask[idx] &^= 1 << uint(bit%8)
	}
}

// assembleRow lays out one row's bytes: a 2-byte column
// count, the fixed area, the variable area (cellBytes concatenated in
// VariableIndex order), a variable-offset table (one 2-byte entry per
// variable column plus a trailing end-of-data entry), and the null mask.
// A nil entry in cellBytes means that variable column is NULL and
// contributes a zero-length cell.
func assembleRow(cols []*column.Column, fixedBytes []byte, cellBytes [][]byte, nullMask []byte) []byte {
	varCount := len(cellBytes)
	varTotal := 0
	for _, c := range cellBytes {
		varTotal += len(c)
	}

	total := 2 + len(fixedBytes) + varTotal + (varCount+1)*2 + len(nullMask)
	buf := make([]byte, total)
	bytecodec.WriteUint16(buf, 0, uint16(len(cols)))

	off := 2
	copy(buf[off:off+len(fixedBytes)], fixedBytes)
	off += len(fixedBytes)

	offsets := make([]int, varCount+1)
	for i, cell := range cellBytes {
		offsets[i] = off
		copy(buf[off:off+len(cell)], cell)
		off += len(cell)
	}
	offsets[varCount] = off

	for _, o := range offsets {
		bytecodec.WriteUint16(buf, off, uint16(o))
		off += 2
	}

	copy(buf[off:off+len(nullMask)], nullMask)
	return buf
}

// disassembleRow reverses assembleRow, given the schema it was encoded
// against.
func disassembleRow(cols []*column.Column, data []byte) (fixedBytes []byte, cellBytes [][]byte, nullMask []byte, err error) {
	if len(data) < 2 {
		return nil, nil, nil, jeterr.New(jeterr.FormatViolation, "row shorter than its column-count header")
	}

	fixedLen := fixedAreaSize(cols)
	varCount := variableColumnCount(cols)
	maskLen := nullMaskBytes(cols)

	need := 2 + fixedLen + (varCount+1)*2 + maskLen
	if len(data) < need {
		return nil, nil, nil, jeterr.New(jeterr.FormatViolation, "row too short: need at least %d bytes, have %d", need, len(data))
	}

	fixedBytes = data[2 : 2+fixedLen]

	maskStart := len(data) - maskLen
	nullMask = data[maskStart : maskStart+maskLen]

	offTableStart := maskStart - (varCount+1)*2
	offsets := make([]int, varCount+1)
	for i := range offsets {
		offsets[i] = int(bytecodec.ReadUint16(data, offTableStart+i*2))
	}

	cellBytes = make([][]byte, varCount)
	for i := 0; i < varCount; i++ {
		start, end := offsets[i], offsets[i+1]
		if start < 0 || end > len(data) || start > end {
			return nil, nil, nil, jeterr.New(jeterr.FormatViolation, "row variable cell %d has invalid bounds [%d,%d)", i, start, end)
		}
		cellBytes[i] = data[start:end]
	}
	return fixedBytes, cellBytes, nullMask, nil
}
