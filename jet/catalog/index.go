package catalog

import (
	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/index"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
)

// Index descriptors and the IndexData metadata backing them are kept in
// a TableDef's Extra blob, a layout jet/table deliberately does not own
// (see tabledef.go's doc comment). The encoding below is a flat,
// length-prefixed record list in the same write-string/read-string
// idiom tabledef.go itself uses, so an IndexData (which may be shared
// by more than one logical Index) is written once and indexes reference
// it by DataNumber.

func writeIdxString(buf []byte, off int, s string) int {
	b := []byte(s)
	bytecodec.WriteUint16(buf, off, uint16(len(b)))
	off += 2
	copy(buf[off:], b)
	return off + len(b)
}

func readIdxString(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", off, jeterr.New(jeterr.FormatViolation, "index section truncated reading a string length")
	}
	n := int(bytecodec.ReadUint16(buf, off))
	off += 2
	if off+n > len(buf) {
		return "", off, jeterr.New(jeterr.FormatViolation, "index section truncated reading a %d-byte string", n)
	}
	return string(buf[off : off+n]), off + n, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func byteBool(b byte) bool { return b != 0 }

func columnByNumber(cols []*column.Column, n int) *column.Column {
	for _, c := range cols {
		if c.Number == n {
			return c
		}
	}
	return nil
}

// encodeIndexSection serializes datas and indexes into a TableDef.Extra
// blob.
func encodeIndexSection(datas map[int]*index.IndexData, indexes []*index.Index) []byte {
	size := 2
	for range datas {
		size += 2 + 4 + 1 + 2
	}
	for dn := range datas {
		size += len(datas[dn].Descriptors) * 5
	}
	size += 2
	for _, ix := range indexes {
		size += 2 + len(ix.Name) + 2 + 2 + 1 + 1 + 1 + 1
		if ix.ForeignKey != nil {
			size += 4 + 2 + 1 + 1 + 1
		}
	}

	buf := make([]byte, size)
	off := 0
	bytecodec.WriteUint16(buf, off, uint16(len(datas)))
	off += 2
	for dn, d := range datas {
		bytecodec.WriteUint16(buf, off, uint16(dn))
		off += 2
		bytecodec.WriteUint32(buf, off, uint32(d.RootPage))
		off += 4
		buf[off] = boolByte(d.Unique)
		off++
		bytecodec.WriteUint16(buf, off, uint16(len(d.Descriptors)))
		off += 2
		for _, desc := range d.Descriptors {
			bytecodec.WriteUint16(buf, off, uint16(desc.Column.Number))
			off += 2
			buf[off] = boolByte(desc.Descending)
			off++
			buf[off] = boolByte(desc.NullsLast)
			off++
			buf[off] = byte(desc.IndexCodesGen)
			off++
		}
	}

	bytecodec.WriteUint16(buf, off, uint16(len(indexes)))
	off += 2
	for _, ix := range indexes {
		off = writeIdxString(buf, off, ix.Name)
		bytecodec.WriteUint16(buf, off, uint16(ix.Number))
		off += 2
		bytecodec.WriteUint16(buf, off, uint16(ix.DataNumber))
		off += 2
		buf[off] = byte(ix.Kind)
		off++
		buf[off] = boolByte(ix.Unique)
		off++
		buf[off] = boolByte(ix.Required)
		off++
		buf[off] = boolByte(ix.ForeignKey != nil)
		off++
		if ix.ForeignKey != nil {
			fk := ix.ForeignKey
			bytecodec.WriteUint32(buf, off, uint32(fk.OtherTableDefPage))
			off += 4
			bytecodec.WriteUint16(buf, off, uint16(fk.OtherIndexNumber))
			off += 2
			buf[off] = boolByte(fk.CascadeUpdates)
			off++
			buf[off] = boolByte(fk.CascadeDeletes)
			off++
			buf[off] = boolByte(fk.SetNullOnDelete)
			off++
		}
	}
	return buf[:off]
}

// decodeIndexSection reverses encodeIndexSection, binding each decoded
// IndexData to channel via index.LoadIndexData.
func decodeIndexSection(channel *page.Channel, cols []*column.Column, buf []byte) (map[int]*index.IndexData, []*index.Index, error) {
	datas := make(map[int]*index.IndexData)
	if len(buf) == 0 {
		return datas, nil, nil
	}

	off := 0
	if off+2 > len(buf) {
		return nil, nil, jeterr.New(jeterr.FormatViolation, "index section truncated reading data count")
	}
	dataCount := int(bytecodec.ReadUint16(buf, off))
	off += 2
	for i := 0; i < dataCount; i++ {
		if off+4+4+1+2 > len(buf) {
			return nil, nil, jeterr.New(jeterr.FormatViolation, "index section truncated reading index data")
		}
		dn := int(bytecodec.ReadUint16(buf, off))
		off += 2
		root := page.Number(bytecodec.ReadUint32(buf, off))
		off += 4
		unique := byteBool(buf[off])
		off++
		descCount := int(bytecodec.ReadUint16(buf, off))
		off += 2
		descs := make([]index.ColumnDescriptor, descCount)
		for j := 0; j < descCount; j++ {
			if off+5 > len(buf) {
				return nil, nil, jeterr.New(jeterr.FormatViolation, "index section truncated reading column descriptor")
			}
			colNum := int(bytecodec.ReadUint16(buf, off))
			off += 2
			descending := byteBool(buf[off])
			off++
			nullsLast := byteBool(buf[off])
			off++
			gen := index.IndexCodesVersion(buf[off])
			off++
			c := columnByNumber(cols, colNum)
			if c == nil {
				return nil, nil, jeterr.New(jeterr.FormatViolation, "index references unknown column %d", colNum)
			}
			descs[j] = index.ColumnDescriptor{Column: c, Descending: descending, NullsLast: nullsLast, IndexCodesGen: gen}
		}
		datas[dn] = index.LoadIndexData(channel, root, descs, unique)
	}

	if off+2 > len(buf) {
		return nil, nil, jeterr.New(jeterr.FormatViolation, "index section truncated reading index count")
	}
	idxCount := int(bytecodec.ReadUint16(buf, off))
	off += 2
	indexes := make([]*index.Index, idxCount)
	for i := 0; i < idxCount; i++ {
		name, newOff, err := readIdxString(buf, off)
		if err != nil {
			return nil, nil, err
		}
		off = newOff
		if off+2+2+1+1+1+1 > len(buf) {
			return nil, nil, jeterr.New(jeterr.FormatViolation, "index section truncated reading index %q", name)
		}
		ix := &index.Index{Name: name}
		ix.Number = int(bytecodec.ReadUint16(buf, off))
		off += 2
		ix.DataNumber = int(bytecodec.ReadUint16(buf, off))
		off += 2
		ix.Kind = index.Kind(buf[off])
		off++
		ix.Unique = byteBool(buf[off])
		off++
		ix.Required = byteBool(buf[off])
		off++
		hasFK := byteBool(buf[off])
		off++
		if hasFK {
			if off+4+2+1+1+1 > len(buf) {
				return nil, nil, jeterr.New(jeterr.FormatViolation, "index section truncated reading foreign key for %q", name)
			}
			fk := &index.ForeignKeyRef{}
			fk.OtherTableDefPage = page.Number(bytecodec.ReadUint32(buf, off))
			off += 4
			fk.OtherIndexNumber = int(bytecodec.ReadUint16(buf, off))
			off += 2
			fk.CascadeUpdates = byteBool(buf[off])
			off++
			fk.CascadeDeletes = byteBool(buf[off])
			off++
			fk.SetNullOnDelete = byteBool(buf[off])
			off++
			ix.ForeignKey = fk
		}
		indexes[i] = ix
	}
	return datas, indexes, nil
}
