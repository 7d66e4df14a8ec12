package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/page"
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

func newTestChannel(t *testing.T) *page.Channel {
	t.Helper()
	backing := newMemBacking(4096)
	ch, err := page.Open(backing, backing)
	require.NoError(t, err)
	return ch
}

func intDescriptor() []ColumnDescriptor {
	return []ColumnDescriptor{
		{Column: &column.Column{Name: "K", Type: column.TypeInt32}},
	}
}

func textDescriptor() []ColumnDescriptor {
	return []ColumnDescriptor{
		{Column: &column.Column{Name: "K", Type: column.TypeText}},
	}
}

func TestEncodeKeyIntegerOrderPreserving(t *testing.T) {
	d := intDescriptor()[0]
	vals := []int32{-1000, -1, 0, 1, 1000, 1 << 20}
	var prev []byte
	for i, v := range vals {
		b := EncodeKey(d, v)
		if i > 0 {
			require.Equal(t, -1, compareBytes(prev, b), "value %d should sort before %d", vals[i-1], v)
		}
		prev = b
	}
}

func TestEncodeKeyFloatOrderPreserving(t *testing.T) {
	d := ColumnDescriptor{Column: &column.Column{Name: "F", Type: column.TypeFloat64}}
	vals := []float64{-100.5, -1.0, -0.001, 0, 0.001, 1.0, 100.5}
	var prev []byte
	for i, v := range vals {
		b := EncodeKey(d, v)
		if i > 0 {
			require.Equal(t, -1, compareBytes(prev, b), "value %v should sort before %v", vals[i-1], v)
		}
		prev = b
	}
}

func TestEncodeKeyDescendingInverts(t *testing.T) {
	asc := ColumnDescriptor{Column: &column.Column{Name: "K", Type: column.TypeInt32}}
	desc := ColumnDescriptor{Column: &column.Column{Name: "K", Type: column.TypeInt32}, Descending: true}

	a1, a2 := EncodeKey(asc, int32(1)), EncodeKey(asc, int32(2))
	require.Equal(t, -1, compareBytes(a1, a2))

	d1, d2 := EncodeKey(desc, int32(1)), EncodeKey(desc, int32(2))
	require.Equal(t, 1, compareBytes(d1, d2))
}

func TestIndexInsertAndScanOrder(t *testing.T) {
	ch := newTestChannel(t)
	ch.BeginWrite()
	idx, err := NewIndexData(ch, intDescriptor(), false)
	require.NoError(t, err)

	values := []int32{50, 10, 40, 20, 30, 5, 100, 1, 99, 2}
	for i, v := range values {
		require.NoError(t, idx.Insert([]interface{}{v}, page.RowId{Page: page.Number(10), Row: uint16(i)}))
	}
	require.NoError(t, ch.EndWrite())

	cur := idx.NewEntryCursor()
	var got []int
	e, ok, err := cur.First()
	require.NoError(t, err)
	last := -1 << 30
	for ok {
		v := decodeOrderedInt32(e.Key)
		require.GreaterOrEqual(t, v, last)
		last = v
		got = append(got, v)
		e, ok, err = cur.MoveNextEntry()
		require.NoError(t, err)
	}
	require.Len(t, got, len(values))
}

func TestIndexInsertManyTriggersSplit(t *testing.T) {
	ch := newTestChannel(t)
	ch.BeginWrite()
	idx, err := NewIndexData(ch, intDescriptor(), false)
	require.NoError(t, err)

	const n = 500
	perm := rand.New(rand.NewSource(1)).Perm(n)
	for i, v := range perm {
		require.NoError(t, idx.Insert([]interface{}{int32(v)}, page.RowId{Page: page.Number(10), Row: uint16(i)}))
	}
	require.NoError(t, ch.EndWrite())

	entries, distinct, err := idx.Count()
	require.NoError(t, err)
	require.Equal(t, n, entries)
	require.Equal(t, n, distinct)

	cur := idx.NewEntryCursor()
	e, ok, err := cur.First()
	require.NoError(t, err)
	last := -1
	count := 0
	for ok {
		v := decodeOrderedInt32(e.Key)
		require.Greater(t, v, last, "entries must come back in ascending key order")
		last = v
		count++
		e, ok, err = cur.MoveNextEntry()
		require.NoError(t, err)
	}
	require.Equal(t, n, count)
}

// decodeOrderedInt32 reads a single-column LONG key: byte 0 is the null
// flag, bytes 1-4 the sign-flipped big-endian value.
func decodeOrderedInt32(b []byte) int {
	v := int32(b[1]^0x80)<<24 | int32(b[2])<<16 | int32(b[3])<<8 | int32(b[4])
	return int(v)
}

func TestIndexDeleteThenReinsertUniqueValue(t *testing.T) {
	ch := newTestChannel(t)
	ch.BeginWrite()
	idx, err := NewIndexData(ch, intDescriptor(), true)
	require.NoError(t, err)

	row := page.RowId{Page: page.Number(10), Row: 1}
	require.NoError(t, idx.Insert([]interface{}{int32(5)}, row))
	require.NoError(t, idx.Delete([]interface{}{int32(5)}, row))
	require.NoError(t, idx.Insert([]interface{}{int32(5)}, page.RowId{Page: page.Number(10), Row: 2}))
	require.NoError(t, ch.EndWrite())

	entries, distinct, err := idx.Count()
	require.NoError(t, err)
	require.Equal(t, 1, entries)
	require.Equal(t, 1, distinct)
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	ch := newTestChannel(t)
	ch.BeginWrite()
	idx, err := NewIndexData(ch, intDescriptor(), true)
	require.NoError(t, err)

	require.NoError(t, idx.Insert([]interface{}{int32(7)}, page.RowId{Page: page.Number(10), Row: 1}))
	err = idx.Insert([]interface{}{int32(7)}, page.RowId{Page: page.Number(10), Row: 2})
	require.Error(t, err)
	require.NoError(t, ch.EndWrite())
}

func TestNonUniqueIndexAllowsDuplicateKeys(t *testing.T) {
	ch := newTestChannel(t)
	ch.BeginWrite()
	idx, err := NewIndexData(ch, intDescriptor(), false)
	require.NoError(t, err)

	require.NoError(t, idx.Insert([]interface{}{int32(7)}, page.RowId{Page: page.Number(10), Row: 1}))
	require.NoError(t, idx.Insert([]interface{}{int32(7)}, page.RowId{Page: page.Number(10), Row: 2}))
	require.NoError(t, ch.EndWrite())

	entries, distinct, err := idx.Count()
	require.NoError(t, err)
	require.Equal(t, 2, entries)
	require.Equal(t, 1, distinct)
}

func TestFindFirstByEntrySeeksToKey(t *testing.T) {
	ch := newTestChannel(t)
	ch.BeginWrite()
	idx, err := NewIndexData(ch, intDescriptor(), false)
	require.NoError(t, err)
	for i, v := range []int32{10, 20, 30, 40, 50} {
		require.NoError(t, idx.Insert([]interface{}{v}, page.RowId{Page: page.Number(10), Row: uint16(i)}))
	}
	require.NoError(t, ch.EndWrite())

	cur := idx.NewEntryCursor()
	e, ok, err := cur.FindFirstByEntry([]interface{}{int32(25)})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 30, decodeOrderedInt32(e.Key))
}

func TestTextKeyOrdering(t *testing.T) {
	d := textDescriptor()[0]
	words := []string{"apple", "banana", "cherry", "date"}
	var prev []byte
	for i, w := range words {
		b := EncodeKey(d, w)
		if i > 0 {
			require.Equal(t, -1, compareBytes(prev, b))
		}
		prev = b
	}
}
