package column

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/jetdb/jetdb/jet/bytecodec"
)

// epoch is Jet's SHORT_DATE_TIME zero point.
func epoch(loc *time.Location) time.Time {
	return time.Date(1899, time.December, 30, 0, 0, 0, 0, loc)
}

// EncodeShortDateTime encodes t as Jet's double-precision day count:
// integer part is days since 1899-12-30 in loc, fractional part is the
// fraction of the day elapsed.
func EncodeShortDateTime(t time.Time, loc *time.Location) float64 {
	d := t.In(loc).Sub(epoch(loc))
	return d.Hours() / 24
}

// DecodeShortDateTime reverses EncodeShortDateTime.
func DecodeShortDateTime(v float64, loc *time.Location) time.Time {
	return epoch(loc).Add(time.Duration(v * 24 * float64(time.Hour)))
}

// EncodeMoney encodes a MONEY value (fixed-point, scale 4) as a signed
// 64-bit integer of the underlying scaled amount - callers pass the
// already-scaled integer, e.g. $12.3450 is 123450.
func EncodeMoney(b []byte, offset int, scaled int64) {
	bytecodec.WriteInt64(b, offset, scaled)
}

// DecodeMoney reverses EncodeMoney.
func DecodeMoney(b []byte, offset int) int64 {
	return bytecodec.ReadInt64(b, offset)
}

// EncodeNumeric writes a NUMERIC value as a sign byte followed by a
// 16-byte big-endian unsigned magnitude. scale and
// precision are carried on the Column, not re-encoded per value.
func EncodeNumeric(b []byte, offset int, v *big.Int) {
	sign := byte(0)
	mag := v
	if v.Sign() < 0 {
		sign = 1
		mag = new(big.Int).Neg(v)
	}
	b[offset] = sign
	magBytes := mag.Bytes()
	dst := b[offset+1 : offset+17]
	for i := range dst {
		dst[i] = 0
	}
	if len(magBytes) > 16 {
		magBytes = magBytes[len(magBytes)-16:]
	}
	copy(dst[16-len(magBytes):], magBytes)
}

// DecodeNumeric reverses EncodeNumeric.
func DecodeNumeric(b []byte, offset int) *big.Int {
	sign := b[offset]
	mag := new(big.Int).SetBytes(b[offset+1 : offset+17])
	if sign == 1 {
		mag.Neg(mag)
	}
	return mag
}

// EncodeGUID writes u in Access's mixed-endian GUID layout: the first
// three fields (time-low, time-mid, time-hi-and-version) are stored
// little-endian; the remaining eight bytes (clock sequence + node) keep
// RFC 4122's big-endian order.
func EncodeGUID(b []byte, offset int, u uuid.UUID) {
	dst := b[offset : offset+16]
	copy(dst, u[:])
	bytecodec.SwapBytes(dst[0:4])
	bytecodec.SwapBytes(dst[4:6])
	bytecodec.SwapBytes(dst[6:8])
}

// DecodeGUID reverses EncodeGUID.
func DecodeGUID(b []byte, offset int) uuid.UUID {
	buf := make([]byte, 16)
	copy(buf, b[offset:offset+16])
	bytecodec.SwapBytes(buf[0:4])
	bytecodec.SwapBytes(buf[4:6])
	bytecodec.SwapBytes(buf[6:8])
	var u uuid.UUID
	copy(u[:], buf)
	return u
}

// DecodeBoolean is provided for completeness; BOOLEAN columns don't
// occupy fixed-data bytes at all - they are stored as an inverted bit
// (1 = false) in the row's null mask, so the row codec in
// jet/table reads/writes that bit directly rather than calling into this
// package.
func DecodeBoolean(bitSet bool) bool { return !bitSet }

// EncodeBoolean mirrors DecodeBoolean's inversion for writers.
func EncodeBoolean(value bool) (bitSet bool) { return !value }
