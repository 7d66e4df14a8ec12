package page

import (
	"io"
	"os"

	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/jeterr"
)

// fileChunkSize is the transfer unit FileBacking uses when chunked mode
// is on.
const fileChunkSize = 512

// FileBacking adapts an *os.File to the Source and Sink interfaces. It
// performs one positioned read/write per page by default; chunked mode
// splits each transfer into fileChunkSize pieces for hosts whose
// positioned I/O misbehaves on large buffers.
type FileBacking struct {
	f        *os.File
	pageSize int
	chunked  bool
}

// NewFileBacking wraps f with an explicit page size, for creating a new
// database where page 0 does not exist yet.
func NewFileBacking(f *os.File, pageSize int, chunked bool) *FileBacking {
	return &FileBacking{f: f, pageSize: pageSize, chunked: chunked}
}

// OpenFileBacking sniffs f's format version out of its first page and
// wraps it with the matching page size.
func OpenFileBacking(f *os.File, chunked bool) (*FileBacking, error) {
	head := make([]byte, format.Page0VersionOffset+2)
	if _, err := f.ReadAt(head, 0); err != nil {
		return nil, jeterr.Wrap(jeterr.IoFailure, err, "read file header")
	}
	v, err := format.DetectVersion(head)
	if err != nil {
		return nil, err
	}
	return &FileBacking{f: f, pageSize: format.For(v).PageSize, chunked: chunked}, nil
}

func (b *FileBacking) PageSize() int { return b.pageSize }

// PageCount reports how many whole pages the file currently holds.
func (b *FileBacking) PageCount() int {
	info, err := b.f.Stat()
	if err != nil {
		return 0
	}
	return int(info.Size()) / b.pageSize
}

func (b *FileBacking) readAt(buf []byte, off int64) error {
	if !b.chunked {
		_, err := b.f.ReadAt(buf, off)
		return err
	}
	for len(buf) > 0 {
		n := fileChunkSize
		if n > len(buf) {
			n = len(buf)
		}
		if _, err := b.f.ReadAt(buf[:n], off); err != nil {
			return err
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}

func (b *FileBacking) writeAt(buf []byte, off int64) error {
	if !b.chunked {
		_, err := b.f.WriteAt(buf, off)
		return err
	}
	for len(buf) > 0 {
		n := fileChunkSize
		if n > len(buf) {
			n = len(buf)
		}
		if _, err := b.f.WriteAt(buf[:n], off); err != nil {
			return err
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}

// ReadPage reads page n in full. A page past the end of the file reads
// as zeroes, the same answer an in-memory backing gives for a page that
// was never written.
func (b *FileBacking) ReadPage(n Number) ([]byte, error) {
	buf := make([]byte, b.pageSize)
	err := b.readAt(buf, int64(n)*int64(b.pageSize))
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return make([]byte, b.pageSize), nil
	}
	if err != nil {
		return nil, jeterr.Wrap(jeterr.IoFailure, err, "read page %d", n)
	}
	return buf, nil
}

// WritePage writes page n in full, extending the file as needed.
func (b *FileBacking) WritePage(n Number, data []byte) error {
	if len(data) != b.pageSize {
		return jeterr.New(jeterr.IoFailure, "page %d write is %d bytes, want %d", n, len(data), b.pageSize)
	}
	if err := b.writeAt(data, int64(n)*int64(b.pageSize)); err != nil {
		return jeterr.Wrap(jeterr.IoFailure, err, "write page %d", n)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (b *FileBacking) Sync() error {
	if err := b.f.Sync(); err != nil {
		return jeterr.Wrap(jeterr.IoFailure, err, "sync")
	}
	return nil
}
