package index

// EncodeTextKey drives the IndexCodes collation: each
// code point maps to a primary weight (and, for General97, a secondary
// byte), inline weights are emitted directly, then the stream is
// terminated with a 0x00 sentinel so shorter strings sort before
// strings they are a prefix of.
//
// This implements the two collation engines' documented *shape*
// (primary weights inline, extra bytes in a second stream, 0x00
// terminator) rather than Access's exact per-code-point weight tables,
// which are not published anywhere this module can transcribe them
// from; see DESIGN.md's Open Questions.
func EncodeTextKey(s string, gen IndexCodesVersion) []byte {
	runes := []rune(s)
	primary := make([]byte, 0, len(runes)+1)
	var extra []byte

	for _, r := range runes {
		w := primaryWeight(r)
		primary = append(primary, w)
		if gen == General97 {
			if sw := secondaryWeight(r); sw != 0 {
				extra = append(extra, sw)
			}
		}
	}

	out := append([]byte(nil), primary...)
	if len(extra) > 0 {
		out = append(out, 0x01) // inline/extra stream separator
		out = append(out, extra...)
	}
	out = append(out, 0x00) // terminator
	return out
}

// primaryWeight maps r to its primary collation weight. BMP code points
// below 0x100 map directly (so ASCII already sorts in code-point order,
// matching the "ASCII/CR/LF/TAB predicate" text-compression path in
// jet/column/text.go). Other BMP code points get one weight per
// 256-code-point block (0x80 plus the block number, masked to 7 bits),
// so characters in the same block share a primary weight and these
// weights overlap those of Latin-1 characters 0x80-0xFF; code points
// above the BMP all get 0xFF. Access's indirection table is not
// reproduced.
func primaryWeight(r rune) byte {
	switch {
	case r < 0x100:
		return byte(r)
	case r <= 0xFFFF:
		return byte(0x80 + (r>>8)&0x7F)
	default:
		return 0xFF
	}
}

// secondaryWeight is General97's per-character secondary (case/accent)
// weight; folded to zero for the common case (no secondary
// distinction).
func secondaryWeight(r rune) byte {
	if r >= 'A' && r <= 'Z' {
		return 0x02
	}
	return 0
}
