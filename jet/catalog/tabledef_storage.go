package catalog

import (
	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/usagemap"
)

// Every TABLE_DEF page reserves its last usageMapTrailerLen bytes for
// two fixed-size usage-map rows (owned pages, free-space pages); the
// remaining bytes starting at tableDefBlobOff hold the table's encoded
// TableDef, length-prefixed at tableDefBlobLenOff. Each 64-byte buffer
// holds an inline map of (64-5)*8 = 472 pages before promotion to the
// reference encoding.
const (
	usageMapTrailerLen = 128
	usageMapBufLen     = usageMapTrailerLen / 2

	tableDefBlobLenOff = 1
	tableDefBlobOff    = 3
)

func trailerOffset(pageSize int) int { return pageSize - usageMapTrailerLen }

func ownedMapStorage(p *page.Page) usagemap.Storage {
	off := trailerOffset(len(p.Data()))
	return &pageStorage{p: p, off: off, n: usageMapBufLen}
}

func freeMapStorage(p *page.Page) usagemap.Storage {
	off := trailerOffset(len(p.Data())) + usageMapBufLen
	return &pageStorage{p: p, off: off, n: usageMapBufLen}
}

// writeTableDefBlob stores blob (an EncodeTableDef result) in p's header
// region, ahead of the usage-map trailer.
func writeTableDefBlob(p *page.Page, blob []byte) error {
	trailer := trailerOffset(len(p.Data()))
	if tableDefBlobOff+len(blob) > trailer {
		return jeterr.New(jeterr.FormatViolation, "table definition (%d bytes) does not fit on one page", len(blob))
	}
	bytecodec.WriteUint16(p.Data(), tableDefBlobLenOff, uint16(len(blob)))
	copy(p.Data()[tableDefBlobOff:], blob)
	p.MarkDirty()
	return nil
}

func readTableDefBlob(p *page.Page) ([]byte, error) {
	trailer := trailerOffset(len(p.Data()))
	if tableDefBlobLenOff+2 > trailer {
		return nil, jeterr.New(jeterr.FormatViolation, "page %d too small to hold a table definition", p.Number())
	}
	n := int(bytecodec.ReadUint16(p.Data(), tableDefBlobLenOff))
	if tableDefBlobOff+n > trailer {
		return nil, jeterr.New(jeterr.FormatViolation, "page %d table definition (%d bytes) overruns its usage-map trailer", p.Number(), n)
	}
	return p.Data()[tableDefBlobOff : tableDefBlobOff+n], nil
}

// newTableDefPage allocates a fresh TABLE_DEF page with empty owned and
// free-space usage maps in its trailer.
func newTableDefPage(ch *page.Channel) (*page.Page, *usagemap.Map, *usagemap.Map, error) {
	p, err := ch.AllocateNewPage(page.TypeTableDefinition)
	if err != nil {
		return nil, nil, nil, err
	}
	owned := usagemap.New(ownedMapStorage(p), ch, ch.Format())
	free := usagemap.New(freeMapStorage(p), ch, ch.Format())
	return p, owned, free, nil
}

// loadTableDefPage reads back an existing TABLE_DEF page's usage maps.
func loadTableDefPage(ch *page.Channel, pn page.Number) (*page.Page, *usagemap.Map, *usagemap.Map, error) {
	p, err := ch.ReadPage(pn)
	if err != nil {
		return nil, nil, nil, err
	}
	if p.Type() != page.TypeTableDefinition {
		return nil, nil, nil, jeterr.New(jeterr.FormatViolation, "page %d is a %s, not a table definition", pn, p.Type())
	}
	owned, err := usagemap.Load(ownedMapStorage(p), ch, ch.Format())
	if err != nil {
		return nil, nil, nil, err
	}
	free, err := usagemap.Load(freeMapStorage(p), ch, ch.Format())
	if err != nil {
		return nil, nil, nil, err
	}
	return p, owned, free, nil
}
