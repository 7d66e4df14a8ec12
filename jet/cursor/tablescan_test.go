package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/table"
	"github.com/jetdb/jetdb/jet/usagemap"
)

type memBacking struct {
	pageSize int
	pages    map[uint32][]byte
}

func newMemBacking(pageSize int) *memBacking {
	b := &memBacking{pageSize: pageSize, pages: make(map[uint32][]byte)}
	page0 := make([]byte, pageSize)
	page0[format.Page0VersionOffset] = 0x01
	b.pages[0] = page0
	return b
}

func (m *memBacking) ReadPage(n page.Number) ([]byte, error) {
	if b, ok := m.pages[uint32(n)]; ok {
		return b, nil
	}
	return make([]byte, m.pageSize), nil
}

func (m *memBacking) PageCount() int {
	max := 0
	for n := range m.pages {
		if int(n)+1 > max {
			max = int(n) + 1
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

func (m *memBacking) PageSize() int { return m.pageSize }

func (m *memBacking) WritePage(n page.Number, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.pages[uint32(n)] = buf
	return nil
}

func (m *memBacking) Sync() error { return nil }

type fakeStorage struct{ buf []byte }

func (f *fakeStorage) Bytes() []byte { return f.buf }
func (f *fakeStorage) MarkDirty()    {}

func newTestTable(t *testing.T) (*table.Table, *page.Channel) {
	t.Helper()
	backing := newMemBacking(4096)
	ch, err := page.Open(backing, backing)
	require.NoError(t, err)

	owned := usagemap.New(&fakeStorage{buf: make([]byte, 64)}, ch, ch.Format())
	free := usagemap.New(&fakeStorage{buf: make([]byte, 64)}, ch, ch.Format())

	cols := []*column.Column{
		{Name: "A", Number: 0, Type: column.TypeInt32, Flags: column.FlagFixedLength, FixedOffset: 0},
	}
	tbl := table.New(page.Number(2), "T", cols, ch, owned, free)
	return tbl, ch
}

func TestTableScanCursorForwardSkipsDeleted(t *testing.T) {
	tbl, ch := newTestTable(t)

	ch.BeginWrite()
	var ids []page.RowId
	for i := int32(1); i <= 3; i++ {
		id, err := tbl.InsertRow(map[string]interface{}{"A": i})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, tbl.DeleteRow(ids[1]))
	require.NoError(t, ch.EndWrite())

	c := NewTableScanCursor(tbl)
	var seen []interface{}
	for {
		ok, err := c.MoveToNextRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		row, err := c.CurrentRow()
		require.NoError(t, err)
		seen = append(seen, row["A"])
	}
	require.Equal(t, []interface{}{int32(1), int32(3)}, seen)
}

func TestTableScanCursorSavepointRestore(t *testing.T) {
	tbl, ch := newTestTable(t)
	ch.BeginWrite()
	id1, err := tbl.InsertRow(map[string]interface{}{"A": int32(1)})
	require.NoError(t, err)
	_, err = tbl.InsertRow(map[string]interface{}{"A": int32(2)})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	c := NewTableScanCursor(tbl)
	ok, err := c.MoveToNextRow()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id1, c.Position().Row)

	sp := c.Savepoint()
	_, err = c.MoveToNextRow()
	require.NoError(t, err)

	require.NoError(t, c.RestoreSavepoint(sp))
	require.Equal(t, id1, c.Position().Row)

	// An index cursor on the same table has a different cursor id.
	other := NewIndexCursor(tbl, nil, 0)
	require.Error(t, other.RestoreSavepoint(sp))
}

func TestTableScanCursorDeleteCurrentRow(t *testing.T) {
	tbl, ch := newTestTable(t)
	ch.BeginWrite()
	_, err := tbl.InsertRow(map[string]interface{}{"A": int32(1)})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	c := NewTableScanCursor(tbl)
	ok, err := c.MoveToNextRow()
	require.NoError(t, err)
	require.True(t, ok)

	ch.BeginWrite()
	require.NoError(t, c.DeleteCurrentRow())
	require.NoError(t, ch.EndWrite())
	require.True(t, c.IsCurrentRowDeleted())

	ok, err = c.MoveToNextRow()
	require.NoError(t, err)
	require.False(t, ok)
}
