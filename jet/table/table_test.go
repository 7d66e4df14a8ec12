package table

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/page"
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

func newTestTable(t *testing.T, cols []*column.Column) (*Table, *page.Channel) {
	t.Helper()
	backing := newMemBacking(4096)
	ch, err := page.Open(backing, backing)
	require.NoError(t, err)

	owned := usagemap.New(&fakeStorage{buf: make([]byte, 64)}, ch, ch.Format())
	free := usagemap.New(&fakeStorage{buf: make([]byte, 64)}, ch, ch.Format())

	tbl := New(page.Number(2), "T", cols, ch, owned, free)
	return tbl, ch
}

func intCol(num int, name string, nullable bool) *column.Column {
	flags := column.FlagFixedLength
	if nullable {
		flags |= column.FlagCanBeNull
	}
	return &column.Column{Name: name, Number: num, Type: column.TypeInt32, Flags: flags, FixedOffset: num * 4}
}

func textCol(num int, name string, varIdx int) *column.Column {
	return &column.Column{Name: name, Number: num, Type: column.TypeText, Flags: column.FlagCanBeNull, Length: 50, VariableIndex: varIdx}
}

func TestInsertAndGetRow(t *testing.T) {
	cols := []*column.Column{
		intCol(0, "A", false),
		textCol(1, "B", 0),
	}
	tbl, ch := newTestTable(t, cols)

	ch.BeginWrite()
	id1, err := tbl.InsertRow(map[string]interface{}{"A": int32(1), "B": "hello"})
	require.NoError(t, err)
	id2, err := tbl.InsertRow(map[string]interface{}{"A": int32(2), "B": "世界"})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	row1, err := tbl.GetRow(id1)
	require.NoError(t, err)
	require.EqualValues(t, 1, row1["A"])
	require.Equal(t, "hello", row1["B"])

	row2, err := tbl.GetRow(id2)
	require.NoError(t, err)
	require.EqualValues(t, 2, row2["A"])
	require.Equal(t, "世界", row2["B"])
}

func TestUpdateRowInPlace(t *testing.T) {
	cols := []*column.Column{
		intCol(0, "A", false),
		textCol(1, "B", 0),
	}
	tbl, ch := newTestTable(t, cols)

	ch.BeginWrite()
	id, err := tbl.InsertRow(map[string]interface{}{"A": int32(1), "B": "hello world this is a longer string"})
	require.NoError(t, err)
	require.NoError(t, tbl.UpdateRow(id, map[string]interface{}{"B": "bye"}))
	require.NoError(t, ch.EndWrite())

	row, err := tbl.GetRow(id)
	require.NoError(t, err)
	require.EqualValues(t, 1, row["A"])
	require.Equal(t, "bye", row["B"])
}

func TestUpdateRowOverflow(t *testing.T) {
	cols := []*column.Column{
		intCol(0, "A", false),
		textCol(1, "B", 0),
	}
	tbl, ch := newTestTable(t, cols)

	ch.BeginWrite()
	id, err := tbl.InsertRow(map[string]interface{}{"A": int32(1), "B": "x"})
	require.NoError(t, err)
	longer := make([]byte, 0, 2000)
	for i := 0; i < 1000; i++ {
		longer = append(longer, 'a')
	}
	require.NoError(t, tbl.UpdateRow(id, map[string]interface{}{"B": string(longer)}))
	require.NoError(t, ch.EndWrite())

	deleted, overflow, err := tbl.RowSlotState(id)
	require.NoError(t, err)
	require.False(t, deleted)
	require.True(t, overflow)

	row, err := tbl.GetRow(id)
	require.NoError(t, err)
	require.Equal(t, string(longer), row["B"])
}

func TestDeleteThenReinsertUniqueValue(t *testing.T) {
	cols := []*column.Column{intCol(0, "K", false)}
	tbl, ch := newTestTable(t, cols)

	ch.BeginWrite()
	id, err := tbl.InsertRow(map[string]interface{}{"K": int32(5)})
	require.NoError(t, err)
	require.NoError(t, tbl.DeleteRow(id))
	_, err = tbl.InsertRow(map[string]interface{}{"K": int32(5)})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	deleted, _, err := tbl.RowSlotState(id)
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestNotNullableRejectsNull(t *testing.T) {
	cols := []*column.Column{intCol(0, "A", false)}
	tbl, ch := newTestTable(t, cols)

	ch.BeginWrite()
	defer ch.EndWrite()
	_, err := tbl.InsertRow(map[string]interface{}{"A": nil})
	require.Error(t, err)
}

func TestLongMemoChain(t *testing.T) {
	cols := []*column.Column{
		intCol(0, "A", false),
		{Name: "M", Number: 1, Type: column.TypeMemo, Flags: column.FlagCanBeNull, VariableIndex: 0},
	}
	tbl, ch := newTestTable(t, cols)

	text := make([]byte, 0, 100000)
	for i := 0; i < 100000; i++ {
		text = append(text, byte('a'+(i%26)))
	}

	ch.BeginWrite()
	id, err := tbl.InsertRow(map[string]interface{}{"A": int32(1), "M": string(text)})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	row, err := tbl.GetRow(id)
	require.NoError(t, err)
	require.Equal(t, string(text), row["M"])
	require.True(t, len(tbl.OwnedPages.PageNumbers()) >= 100000/(4096-dataPageHeaderLen-2-4))
}

func TestGUIDAndNumericRoundtrip(t *testing.T) {
	cols := []*column.Column{
		{Name: "G", Number: 0, Type: column.TypeGUID, Flags: column.FlagFixedLength, FixedOffset: 0},
		{Name: "N", Number: 1, Type: column.TypeNumeric, Flags: column.FlagFixedLength, FixedOffset: 16, Precision: 18, Scale: 2},
	}
	tbl, ch := newTestTable(t, cols)

	u := uuid.New()
	n := big.NewInt(-123456789)

	ch.BeginWrite()
	id, err := tbl.InsertRow(map[string]interface{}{"G": u, "N": n})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	row, err := tbl.GetRow(id)
	require.NoError(t, err)
	require.Equal(t, u, row["G"])
	require.Equal(t, 0, n.Cmp(row["N"].(*big.Int)))
}

func TestBooleanMaskRoundtrip(t *testing.T) {
	cols := []*column.Column{
		{Name: "Flag", Number: 0, Type: column.TypeBoolean, Flags: 0},
	}
	tbl, ch := newTestTable(t, cols)

	ch.BeginWrite()
	id, err := tbl.InsertRow(map[string]interface{}{"Flag": true})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	row, err := tbl.GetRow(id)
	require.NoError(t, err)
	require.Equal(t, true, row["Flag"])
}

func TestShortDateTimeRoundtrip(t *testing.T) {
	cols := []*column.Column{
		{Name: "D", Number: 0, Type: column.TypeShortDateTime, Flags: column.FlagFixedLength, FixedOffset: 0},
	}
	tbl, ch := newTestTable(t, cols)
	tbl.loc = time.UTC

	when := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	ch.BeginWrite()
	id, err := tbl.InsertRow(map[string]interface{}{"D": when})
	require.NoError(t, err)
	require.NoError(t, ch.EndWrite())

	row, err := tbl.GetRow(id)
	require.NoError(t, err)
	got := row["D"].(time.Time)
	require.WithinDuration(t, when, got, time.Second)
}
