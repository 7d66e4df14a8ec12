// Package index implements IndexData and Index, the collation-aware
// B-tree engine: order-preserving key encoding, node pages, the entry
// cursor, and foreign-key cross-reference. Keys are per-type byte
// encodings chosen so lexicographic comparison matches each type's
// natural order; node splitting allocates a sibling, splits the entry
// run, and links both through the parent.
package index

import (
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/column"
)

// nullFirst / nullLast are the leading flag bytes for null values,
// chosen so that, compared byte-wise, null-first sorts before
// every encoded non-null value and null-last sorts after it.
const (
	nullFirst byte = 0x00
	nullLast  byte = 0xFF
)

// ColumnDescriptor describes one key column of an index: which table
// column it projects, its sort direction, and where NULL sorts.
type ColumnDescriptor struct {
	Column        *column.Column
	Descending    bool
	NullsLast     bool
	IndexCodesGen IndexCodesVersion
}

// IndexCodesVersion selects which of the two text collation engines a
// TEXT key column uses.
type IndexCodesVersion int

const (
	// GeneralLegacy is the Jet >= 2000 collation ("general legacy").
	GeneralLegacy IndexCodesVersion = iota
	// General97 is the Jet 97 collation.
	General97
)

// EncodeKey encodes one column's value into order-preserving key bytes.
// value == nil means SQL NULL. The returned bytes
// already account for d.Descending (bitwise inverted) and the null-flag
// byte is NOT prepended here - callers that need the leading null flag
// call EncodeNullFlag separately so multi-column keys share one
// null-handling seam.
func EncodeKey(d ColumnDescriptor, value interface{}) []byte {
	var b []byte
	if value == nil {
		b = nil
	} else {
		switch d.Column.Type {
		case column.TypeBoolean:
			v := value.(bool)
			if v {
				b = []byte{0x01}
			} else {
				b = []byte{0x00}
			}
		case column.TypeByte:
			b = []byte{value.(byte)}
		case column.TypeInt16:
			b = encodeSignedInt(int64(value.(int16)), 2)
		case column.TypeInt32:
			b = encodeSignedInt(int64(value.(int32)), 4)
		case column.TypeMoney:
			b = encodeSignedInt(value.(int64), 8)
		case column.TypeFloat32:
			b = encodeFloat(float64(value.(float32)), 4)
		case column.TypeFloat64:
			b = encodeFloat(value.(float64), 8)
		case column.TypeShortDateTime:
			switch v := value.(type) {
			case time.Time:
				b = encodeFloat(column.EncodeShortDateTime(v, time.Local), 8)
			default:
				b = encodeFloat(value.(float64), 8)
			}
		case column.TypeNumeric:
			b = encodeNumeric(value.(*big.Int))
		case column.TypeGUID:
			var onDisk [16]byte
			switch g := value.(type) {
			case uuid.UUID:
				column.EncodeGUID(onDisk[:], 0, g)
			case [16]byte:
				onDisk = g
			}
			b = encodeGUIDKey(onDisk)
		case column.TypeText:
			b = EncodeTextKey(value.(string), d.IndexCodesGen)
		case column.TypeBinary:
			b = append([]byte(nil), value.([]byte)...)
		default:
			b = append([]byte(nil), value.([]byte)...)
		}
	}
	if d.Descending {
		invertBytes(b)
	}
	return b
}

// EncodeNullFlag returns the leading per-column flag byte: a constant
// marking whether this column's value is null,
// positioned so null-first/null-last columns sort correctly against
// each other regardless of the column's own Descending flag (the null
// flag's ordering is about null-vs-non-null, not the value itself, so
// it is not inverted by Descending).
func EncodeNullFlag(d ColumnDescriptor, isNull bool) byte {
	if isNull {
		if d.NullsLast {
			return nullLast
		}
		return nullFirst
	}
	if d.NullsLast {
		return nullFirst
	}
	return nullLast
}

// encodeSignedInt returns the big-endian two's-complement bytes of v in
// the given byte width with the sign bit flipped, so that unsigned
// byte-wise comparison matches signed numeric order.
func encodeSignedInt(v int64, width int) []byte {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	b[0] ^= 0x80
	return b
}

// encodeFloat returns a big-endian IEEE-754 encoding of v with
// sign-dependent bit inversion: positive numbers get their sign bit
// flipped (so they sort after negatives), negative numbers are fully
// inverted (so their magnitude order reverses into lexicographic
// order).
func encodeFloat(v float64, width int) []byte {
	var bits uint64
	b := make([]byte, width)
	if width == 4 {
		bits = uint64(math.Float32bits(float32(v)))
	} else {
		bits = math.Float64bits(v)
	}
	negative := bits&(uint64(1)<<(uint(width)*8-1)) != 0
	if negative {
		bits = ^bits
	} else {
		bits |= uint64(1) << (uint(width)*8 - 1)
	}
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(bits)
		bits >>= 8
	}
	return b
}

// encodeNumeric normalizes v (the NUMERIC column's decoded magnitude)
// to a fixed-width big-endian sign-flipped
// integer form so it sorts the same way encodeSignedInt's fixed-width
// integers do.
func encodeNumeric(v *big.Int) []byte {
	const width = 17
	b := make([]byte, width)
	mag := new(big.Int).Abs(v)
	magBytes := mag.Bytes()
	if len(magBytes) > width {
		magBytes = magBytes[len(magBytes)-width:]
	}
	copy(b[width-len(magBytes):], magBytes)
	if v.Sign() < 0 {
		for i := range b {
			b[i] = ^b[i]
		}
		b[0] &^= 0x80
	} else {
		b[0] |= 0x80
	}
	return b
}

// encodeGUIDKey reorders a GUID's bytes into lexicographic form - this
// reverses the mixed-endian on-disk layout column.EncodeGUID produces
// so that two GUIDs compare the same byte-wise as they would field-wise.
func encodeGUIDKey(g [16]byte) []byte {
	b := append([]byte(nil), g[:]...)
	bytecodec.SwapBytes(b[0:4])
	bytecodec.SwapBytes(b[4:6])
	bytecodec.SwapBytes(b[6:8])
	return b
}

func invertBytes(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}

// EncodeEntryKey concatenates the per-column key bytes (each preceded
// by its null flag) for a multi-column index entry.
func EncodeEntryKey(descriptors []ColumnDescriptor, values []interface{}) []byte {
	var out []byte
	for i, d := range descriptors {
		v := values[i]
		out = append(out, EncodeNullFlag(d, v == nil))
		out = append(out, EncodeKey(d, v)...)
	}
	return out
}
