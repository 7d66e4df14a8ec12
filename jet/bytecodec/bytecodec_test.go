package bytecodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUintRoundTrip(t *testing.T) {
	assert := require.New(t)

	buf := make([]byte, 32)

	WriteUint16(buf, 0, 0xBEEF)
	assert.Equal(uint16(0xBEEF), ReadUint16(buf, 0))

	WriteUint24(buf, 2, 0xABCDEF)
	assert.Equal(uint32(0xABCDEF), ReadUint24(buf, 2))

	WriteUint32(buf, 8, 0xDEADBEEF)
	assert.Equal(uint32(0xDEADBEEF), ReadUint32(buf, 8))

	WriteUint64(buf, 16, 0x0102030405060708)
	assert.Equal(uint64(0x0102030405060708), ReadUint64(buf, 16))
}

func TestFloatRoundTrip(t *testing.T) {
	assert := require.New(t)
	buf := make([]byte, 16)

	WriteFloat32(buf, 0, 3.5)
	assert.Equal(float32(3.5), ReadFloat32(buf, 0))

	WriteFloat64(buf, 4, -1899.375)
	assert.Equal(float64(-1899.375), ReadFloat64(buf, 4))
}

func TestSwapBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	SwapBytes(b)
	require.Equal(t, []byte{4, 3, 2, 1}, b)
}

func TestXOR(t *testing.T) {
	dst := []byte{0x00, 0x00, 0x00, 0xFF}
	XOR(dst, 0, []byte{0xFF, 0xFF, 0xFF})
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, dst)

	// Applying the mask twice restores the original bytes.
	XOR(dst, 0, []byte{0xFF, 0xFF, 0xFF})
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0xFF}, dst)
}

func TestCheckLen(t *testing.T) {
	require.NoError(t, CheckLen(make([]byte, 4), 0, 4))
	require.Error(t, CheckLen(make([]byte, 4), 2, 4))
	require.Error(t, CheckLen(make([]byte, 4), -1, 1))
}

func TestHex(t *testing.T) {
	require.Equal(t, "de ad be ef", Hex([]byte{0xde, 0xad, 0xbe, 0xef}))
}
