package column

import (
	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
)

// LvalType is the storage discriminant of a long-value (MEMO/OLE)
// descriptor.
type LvalType byte

const (
	// LvalInline means the value's bytes follow the 12-byte descriptor
	// directly in the same variable-length cell.
	LvalInline LvalType = 0x80

	// LvalOverflow means the value lives entirely in one row on another
	// page, pointed to by the descriptor.
	LvalOverflow LvalType = 0x40

	// LvalChain means the value spans a linked chain of overflow rows,
	// each one pointing to the next.
	LvalChain LvalType = 0x00
)

// LvalDescriptorSize is the fixed size of every LVAL descriptor.
const LvalDescriptorSize = 12

// LvalDescriptor is the parsed form of a 12-byte long-value header.
type LvalDescriptor struct {
	Length uint32
	Type   LvalType
	// Rest is the 8 type-dependent bytes following the length/type word.
	Rest [8]byte
}

// ParseLvalDescriptor reads a 12-byte descriptor from the front of b.
func ParseLvalDescriptor(b []byte) (LvalDescriptor, error) {
	if len(b) < LvalDescriptorSize {
		return LvalDescriptor{}, jeterr.New(jeterr.FormatViolation, "lval descriptor needs %d bytes, have %d", LvalDescriptorSize, len(b))
	}
	word := bytecodec.ReadUint32(b, 0)
	d := LvalDescriptor{
		Length: word & 0x00FFFFFF,
		Type:   LvalType(byte(word >> 24)),
	}
	copy(d.Rest[:], b[4:12])
	return d, nil
}

// Encode writes d back into its 12-byte wire form.
func (d LvalDescriptor) Encode() []byte {
	b := make([]byte, LvalDescriptorSize)
	word := (d.Length & 0x00FFFFFF) | uint32(d.Type)<<24
	bytecodec.WriteUint32(b, 0, word)
	copy(b[4:12], d.Rest[:])
	return b
}

// overflowRow reads back what DescribeOverflow wrote: row-number, then a
// 3-byte page number.
func (d LvalDescriptor) overflowRow() page.RowId {
	row := d.Rest[0]
	p := bytecodec.ReadUint24(d.Rest[:], 1)
	return page.RowId{Page: page.Number(p), Row: uint16(row)}
}

// RowReader is the row-lookup seam the table layer supplies so this
// package can walk overflow chains without importing jet/table (which
// in turn depends on this package).
type RowReader interface {
	ReadRow(id page.RowId) ([]byte, error)
}

// ReadLval materializes a long value's bytes. inlinePayload is the
// remainder of the variable-length cell immediately following the
// descriptor, used only for the LvalInline case.
func ReadLval(desc LvalDescriptor, inlinePayload []byte, rows RowReader) ([]byte, error) {
	switch desc.Type {
	case LvalInline:
		if uint32(len(inlinePayload)) < desc.Length {
			return nil, jeterr.New(jeterr.FormatViolation, "inline lval declares %d bytes, cell has %d", desc.Length, len(inlinePayload))
		}
		return inlinePayload[:desc.Length], nil

	case LvalOverflow:
		raw, err := rows.ReadRow(desc.overflowRow())
		if err != nil {
			return nil, err
		}
		if uint32(len(raw)) < desc.Length {
			return nil, jeterr.New(jeterr.FormatViolation, "overflow lval declares %d bytes, row has %d", desc.Length, len(raw))
		}
		return raw[:desc.Length], nil

	case LvalChain:
		return readChain(desc, rows)

	default:
		return nil, jeterr.New(jeterr.FormatViolation, "unrecognized lval type 0x%02x", byte(desc.Type))
	}
}

func readChain(desc LvalDescriptor, rows RowReader) ([]byte, error) {
	out := make([]byte, 0, desc.Length)
	id := desc.overflowRow()

	for uint32(len(out)) < desc.Length {
		if id.Page == 0 {
			return nil, jeterr.New(jeterr.FormatViolation, "lval chain ended after %d of %d bytes", len(out), desc.Length)
		}
		raw, err := rows.ReadRow(id)
		if err != nil {
			return nil, err
		}
		if len(raw) < 4 {
			return nil, jeterr.New(jeterr.FormatViolation, "lval overflow row too short for chain header")
		}

		nextRow := raw[0]
		nextPage := bytecodec.ReadUint24(raw, 1)
		payload := raw[4:]

		remaining := desc.Length - uint32(len(out))
		take := uint32(len(payload))
		if take > remaining {
			take = remaining
		}
		out = append(out, payload[:take]...)

		id = page.RowId{Page: page.Number(nextPage), Row: uint16(nextRow)}
	}
	return out, nil
}

// DescribeInline builds the descriptor for an inline long value.
func DescribeInline(length uint32) LvalDescriptor {
	return LvalDescriptor{Length: length, Type: LvalInline}
}

// DescribeOverflow builds the descriptor for a single-row overflow
// value.
func DescribeOverflow(length uint32, id page.RowId) LvalDescriptor {
	d := LvalDescriptor{Length: length, Type: LvalOverflow}
	d.Rest[0] = byte(id.Row)
	bytecodec.WriteUint24(d.Rest[:], 1, uint32(id.Page))
	return d
}

// DescribeChain builds the descriptor for a chained value's head.
func DescribeChain(length uint32, firstID page.RowId) LvalDescriptor {
	d := LvalDescriptor{Length: length, Type: LvalChain}
	d.Rest[0] = byte(firstID.Row)
	bytecodec.WriteUint24(d.Rest[:], 1, uint32(firstID.Page))
	return d
}
