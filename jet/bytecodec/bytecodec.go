// Package bytecodec provides the little-endian primitives the rest of the
// engine uses to read and write Jet's on-disk layout. Every function takes
// an explicit byte slice and offset rather than mutating a shared cursor -
// there is no hidden position/limit state to get out of sync.
package bytecodec

import "fmt"

// ReadUint16 reads a little-endian uint16 at offset.
func ReadUint16(b []byte, offset int) uint16 {
	return uint16(b[offset]) | uint16(b[offset+1])<<8
}

// WriteUint16 writes v as little-endian at offset.
func WriteUint16(b []byte, offset int, v uint16) {
	b[offset] = byte(v)
	b[offset+1] = byte(v >> 8)
}

// ReadInt16 reads a little-endian int16 at offset.
func ReadInt16(b []byte, offset int) int16 {
	return int16(ReadUint16(b, offset))
}

// WriteInt16 writes v as little-endian at offset.
func WriteInt16(b []byte, offset int, v int16) {
	WriteUint16(b, offset, uint16(v))
}

// ReadUint24 reads a little-endian 3-byte unsigned integer at offset.
// Jet uses 3-byte page numbers in a handful of places (overflow row
// pointers) to save a byte over a full uint32.
func ReadUint24(b []byte, offset int) uint32 {
	return uint32(b[offset]) | uint32(b[offset+1])<<8 | uint32(b[offset+2])<<16
}

// WriteUint24 writes the low 24 bits of v as little-endian at offset.
func WriteUint24(b []byte, offset int, v uint32) {
	b[offset] = byte(v)
	b[offset+1] = byte(v >> 8)
	b[offset+2] = byte(v >> 16)
}

// ReadUint32 reads a little-endian uint32 at offset.
func ReadUint32(b []byte, offset int) uint32 {
	return uint32(b[offset]) | uint32(b[offset+1])<<8 | uint32(b[offset+2])<<16 | uint32(b[offset+3])<<24
}

// WriteUint32 writes v as little-endian at offset.
func WriteUint32(b []byte, offset int, v uint32) {
	b[offset] = byte(v)
	b[offset+1] = byte(v >> 8)
	b[offset+2] = byte(v >> 16)
	b[offset+3] = byte(v >> 24)
}

// ReadInt32 reads a little-endian int32 at offset.
func ReadInt32(b []byte, offset int) int32 {
	return int32(ReadUint32(b, offset))
}

// WriteInt32 writes v as little-endian at offset.
func WriteInt32(b []byte, offset int, v int32) {
	WriteUint32(b, offset, uint32(v))
}

// ReadUint64 reads a little-endian uint64 at offset.
func ReadUint64(b []byte, offset int) uint64 {
	lo := uint64(ReadUint32(b, offset))
	hi := uint64(ReadUint32(b, offset+4))
	return lo | hi<<32
}

// WriteUint64 writes v as little-endian at offset.
func WriteUint64(b []byte, offset int, v uint64) {
	WriteUint32(b, offset, uint32(v))
	WriteUint32(b, offset+4, uint32(v>>32))
}

// ReadInt64 reads a little-endian int64 at offset.
func ReadInt64(b []byte, offset int) int64 {
	return int64(ReadUint64(b, offset))
}

// WriteInt64 writes v as little-endian at offset.
func WriteInt64(b []byte, offset int, v int64) {
	WriteUint64(b, offset, uint64(v))
}

// ReadFloat32 reads a little-endian IEEE-754 single at offset.
func ReadFloat32(b []byte, offset int) float32 {
	return float32FromBits(ReadUint32(b, offset))
}

// WriteFloat32 writes v as a little-endian IEEE-754 single at offset.
func WriteFloat32(b []byte, offset int, v float32) {
	WriteUint32(b, offset, float32Bits(v))
}

// ReadFloat64 reads a little-endian IEEE-754 double at offset.
func ReadFloat64(b []byte, offset int) float64 {
	return float64FromBits(ReadUint64(b, offset))
}

// WriteFloat64 writes v as a little-endian IEEE-754 double at offset.
func WriteFloat64(b []byte, offset int, v float64) {
	WriteUint64(b, offset, float64Bits(v))
}

// SwapBytes reverses b in place and returns it, for converting between
// little-endian and big-endian byte runs (e.g. the GUID codec and the
// index key encoder's GUID keys).
func SwapBytes(b []byte) []byte {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// XOR applies mask once over the len(mask) bytes of dst starting at
// offset (dst must hold them), for the page-0
// header obfuscation mask every Jet format version uses.
func XOR(dst []byte, offset int, mask []byte) {
	for i := range mask {
		dst[offset+i] ^= mask[i]
	}
}

// Hex renders b as a space-separated hex dump, used by the jetutil page
// inspector and by error messages that need to show raw bytes.
func Hex(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for i, c := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexDigits[c>>4], hexDigits[c&0xf])
	}
	return string(out)
}

const hexDigits = "0123456789abcdef"

// CheckLen is a panic-free bounds check a caller can run before a
// fixed-width read or write so a short buffer surfaces as an error it can
// wrap. The codec functions in this package do not call it themselves; a
// short buffer there panics with an out-of-range index.
func CheckLen(b []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b) {
		return fmt.Errorf("bytecodec: need %d bytes at offset %d, have %d", length, offset, len(b))
	}
	return nil
}
