package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectVersion(t *testing.T) {
	page0 := make([]byte, 2048)
	WriteMarker(page0, Jet4)
	v, err := DetectVersion(page0)
	require.NoError(t, err)
	require.Equal(t, Jet4, v)
}

func TestDetectVersionUnrecognized(t *testing.T) {
	page0 := make([]byte, 2048)
	page0[Page0VersionOffset] = 0xFF
	page0[Page0VersionOffset+1] = 0xFF
	_, err := DetectVersion(page0)
	require.Error(t, err)
}

func TestDetectVersionShortBuffer(t *testing.T) {
	_, err := DetectVersion(make([]byte, 4))
	require.Error(t, err)
}

func TestForUnknownFallsBackToJet4(t *testing.T) {
	f := For(Version(99))
	require.Equal(t, formats[Jet4].PageSize, f.PageSize)
}

func TestHeaderMaskLengthMatchesFormat(t *testing.T) {
	for _, v := range []Version{Jet3, Jet4, Jet12, Jet14, Jet16, Jet17} {
		mask := HeaderMask(v)
		require.Len(t, mask, For(v).HeaderMaskLen)
	}
}

func TestPageSizeByVersion(t *testing.T) {
	require.Equal(t, 2048, For(Jet3).PageSize)
	require.Equal(t, 4096, For(Jet4).PageSize)
	require.Equal(t, 4096, For(Jet12).PageSize)
}

// WriteMarker writes v's 2-byte marker into page0, mirroring what Database
// bootstrap (catalog's buildPage0) does when formatting a new file; this
// package itself has no exported marker writer.
func WriteMarker(page0 []byte, v Version) {
	m := Marker(v)
	page0[Page0VersionOffset] = byte(m)
	page0[Page0VersionOffset+1] = byte(m >> 8)
}
