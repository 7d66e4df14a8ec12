package column

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestShortDateTimeRoundTrip(t *testing.T) {
	loc := time.UTC
	original := time.Date(2024, time.March, 15, 13, 30, 0, 0, loc)

	encoded := EncodeShortDateTime(original, loc)
	decoded := DecodeShortDateTime(encoded, loc)

	require.WithinDuration(t, original, decoded, time.Second)
}

func TestMoneyRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	EncodeMoney(buf, 0, 123450)
	require.Equal(t, int64(123450), DecodeMoney(buf, 0))
}

func TestNumericRoundTripPositive(t *testing.T) {
	buf := make([]byte, 17)
	v := big.NewInt(123456789)
	EncodeNumeric(buf, 0, v)
	require.Equal(t, 0, DecodeNumeric(buf, 0).Cmp(v))
}

func TestNumericRoundTripNegative(t *testing.T) {
	buf := make([]byte, 17)
	v := big.NewInt(-42)
	EncodeNumeric(buf, 0, v)
	require.Equal(t, 0, DecodeNumeric(buf, 0).Cmp(v))
}

func TestGUIDRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	u := uuid.New()
	EncodeGUID(buf, 0, u)
	require.Equal(t, u, DecodeGUID(buf, 0))
}

func TestCompressTextAllASCII(t *testing.T) {
	b, ok := CompressText("hello\tworld\r\n", 1024)
	require.True(t, ok)
	require.True(t, IsCompressed(b))

	s, err := DecompressText(b)
	require.NoError(t, err)
	require.Equal(t, "hello\tworld\r\n", s)
}

func TestCompressTextRejectsNonASCII(t *testing.T) {
	_, ok := CompressText("世界", 1024)
	require.False(t, ok)
}

func TestCompressTextRejectsOversizedResult(t *testing.T) {
	_, ok := CompressText("hello", 3)
	require.False(t, ok)
}

func TestUTF16TextRoundTrip(t *testing.T) {
	b := EncodeUTF16Text("hello 世界")
	require.Equal(t, "hello 世界", DecodeUTF16Text(b))
}

func TestEncodeDecodeTextPrefersCompression(t *testing.T) {
	b, err := EncodeText("plain ascii", true, 1024, nil)
	require.NoError(t, err)
	require.True(t, IsCompressed(b))

	s, err := DecodeText(b, nil)
	require.NoError(t, err)
	require.Equal(t, "plain ascii", s)
}

func TestEncodeDecodeTextFallsBackToUTF16(t *testing.T) {
	b, err := EncodeText("世界", true, 1024, nil)
	require.NoError(t, err)
	require.False(t, IsCompressed(b))

	s, err := DecodeText(b, nil)
	require.NoError(t, err)
	require.Equal(t, "世界", s)
}

func TestFixedSizeByType(t *testing.T) {
	require.Equal(t, 1, TypeBoolean.FixedSize())
	require.Equal(t, 4, TypeInt32.FixedSize())
	require.Equal(t, 8, TypeMoney.FixedSize())
	require.Equal(t, 16, TypeGUID.FixedSize())
	require.Equal(t, 17, TypeNumeric.FixedSize())
	require.Equal(t, 0, TypeText.FixedSize())
}

func TestIsLongValue(t *testing.T) {
	require.True(t, TypeMemo.IsLongValue())
	require.True(t, TypeOLE.IsLongValue())
	require.False(t, TypeText.IsLongValue())
}

func TestBooleanInversion(t *testing.T) {
	require.False(t, DecodeBoolean(true))
	require.True(t, DecodeBoolean(false))
	require.Equal(t, EncodeBoolean(true), !true)
}
