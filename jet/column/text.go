package column

import (
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding"

	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/jeterr"
)

// compressionMagic is the 2-byte marker that precedes a SCSU-like
// compressed TEXT run.
var compressionMagic = [2]byte{0xFF, 0xFE}

// compressiblePredicate reports whether r can be represented as a single
// compressed byte: printable ASCII plus CR/LF/TAB.
func compressiblePredicate(r rune) bool {
	if r == '\t' || r == '\r' || r == '\n' {
		return true
	}
	return r >= 0x20 && r <= 0x7E
}

// CompressText attempts SCSU-like compression of s. It succeeds only
// when every character passes compressiblePredicate and the compressed
// form (plus its 2-byte header) fits within maxSize. Because of that
// all-or-nothing predicate the output is always a single compressed
// run; the 0x00 mode-switch separators of mixed compressed/uncompressed
// streams never occur on write, though IsCompressed/DecompressText only
// ever see this encoder's own output.
func CompressText(s string, maxSize int) ([]byte, bool) {
	for _, r := range s {
		if !compressiblePredicate(r) {
			return nil, false
		}
	}
	out := make([]byte, 0, len(s)+2)
	out = append(out, compressionMagic[0], compressionMagic[1])
	for _, r := range s {
		out = append(out, byte(r))
	}
	if len(out) > maxSize {
		return nil, false
	}
	return out, true
}

// IsCompressed reports whether b begins with the compression magic.
func IsCompressed(b []byte) bool {
	return len(b) >= 2 && b[0] == compressionMagic[0] && b[1] == compressionMagic[1]
}

// DecompressText reverses CompressText.
func DecompressText(b []byte) (string, error) {
	if !IsCompressed(b) {
		return "", jeterr.New(jeterr.FormatViolation, "text run is missing the compression header")
	}
	var sb strings.Builder
	sb.Grow(len(b) - 2)
	for _, c := range b[2:] {
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

// EncodeUTF16Text encodes s as uncompressed little-endian UTF-16, Jet's
// native Unicode TEXT representation.
func EncodeUTF16Text(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		bytecodec.WriteUint16(out, i*2, u)
	}
	return out
}

// DecodeUTF16Text reverses EncodeUTF16Text.
func DecodeUTF16Text(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = bytecodec.ReadUint16(b, i*2)
	}
	return string(utf16.Decode(units))
}

// EncodeText encodes s for storage in a TEXT column. When compress is
// true it first tries CompressText; failing that (or when compress is
// false) it falls back to charset (an 8-bit code-page encoding) if
// non-nil, or plain UTF-16LE otherwise.
func EncodeText(s string, compress bool, maxCompressedSize int, charset encoding.Encoding) ([]byte, error) {
	if compress {
		if b, ok := CompressText(s, maxCompressedSize); ok {
			return b, nil
		}
	}
	if charset != nil {
		return charset.NewEncoder().Bytes([]byte(s))
	}
	return EncodeUTF16Text(s), nil
}

// DecodeText reverses EncodeText, detecting the compression header
// before falling back to charset/UTF-16 decoding.
func DecodeText(b []byte, charset encoding.Encoding) (string, error) {
	if IsCompressed(b) {
		return DecompressText(b)
	}
	if charset != nil {
		out, err := charset.NewDecoder().Bytes(b)
		if err != nil {
			return "", jeterr.Wrap(jeterr.InvalidValue, err, "decode charset text")
		}
		return string(out), nil
	}
	return DecodeUTF16Text(b), nil
}
