package catalog

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/index"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/jetlog"
	"github.com/jetdb/jetdb/jet/page"
)

type memBacking struct {
	pageSize int
	pages    map[uint32][]byte
}

func newMemBacking(pageSize int) *memBacking {
	return &memBacking{pageSize: pageSize, pages: make(map[uint32][]byte)}
}

func (m *memBacking) ReadPage(n page.Number) ([]byte, error) {
	if b, ok := m.pages[uint32(n)]; ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
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

func newTestDatabase(t *testing.T) (*Database, *memBacking) {
	t.Helper()
	backing := newMemBacking(format.For(format.Jet4).PageSize)
	db, err := Create(backing, backing, format.Jet4, DefaultConfig())
	require.NoError(t, err)
	return db, backing
}

func intCol(num int, name string) *column.Column {
	return &column.Column{Name: name, Number: num, Type: column.TypeInt32, Flags: column.FlagCanBeNull}
}

func textCol(num int, name string, length int) *column.Column {
	return &column.Column{Name: name, Number: num, Type: column.TypeText, Flags: column.FlagCanBeNull, Length: length}
}

func TestCreateBootstrapsTablesGroup(t *testing.T) {
	db, backing := newTestDatabase(t)
	require.NoError(t, db.Close())

	reopened, err := Open(backing, backing, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, db.tablesParentID, reopened.tablesParentID)
}

func TestOpenWithoutBootstrapRowFails(t *testing.T) {
	backing := newMemBacking(format.For(format.Jet4).PageSize)
	_, err := Open(backing, backing, DefaultConfig())
	require.Error(t, err)
}

func TestCreateInsertReopenScan(t *testing.T) {
	db, backing := newTestDatabase(t)

	tab, err := db.CreateTable("T", []*column.Column{
		intCol(0, "A"),
		textCol(1, "B", 50),
	})
	require.NoError(t, err)

	_, err = tab.InsertRow(map[string]interface{}{"A": int32(1), "B": "hello"})
	require.NoError(t, err)
	_, err = tab.InsertRow(map[string]interface{}{"A": int32(2), "B": "世界"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(backing, backing, DefaultConfig())
	require.NoError(t, err)
	tab2, err := reopened.Table("T")
	require.NoError(t, err)

	cur := tab2.NewTableScanCursor()
	var got []map[string]interface{}
	for {
		ok, err := cur.MoveToNextRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		row, err := cur.CurrentRow()
		require.NoError(t, err)
		got = append(got, row)
	}
	require.Len(t, got, 2)
	require.Equal(t, int32(1), got[0]["A"])
	require.Equal(t, "hello", got[0]["B"])
	require.Equal(t, int32(2), got[1]["A"])
	require.Equal(t, "世界", got[1]["B"])
}

func TestTableNamesListsCreatedTables(t *testing.T) {
	db, _ := newTestDatabase(t)

	_, err := db.CreateTable("Alpha", []*column.Column{intCol(0, "A")})
	require.NoError(t, err)
	_, err = db.CreateTable("Beta", []*column.Column{intCol(0, "A")})
	require.NoError(t, err)

	names, err := db.TableNames()
	require.NoError(t, err)
	require.Contains(t, names, "Alpha")
	require.Contains(t, names, "Beta")
	require.Contains(t, names, "MSysObjects")
}

func TestTableLookupIsCaseInsensitive(t *testing.T) {
	db, _ := newTestDatabase(t)
	_, err := db.CreateTable("People", []*column.Column{intCol(0, "Id")})
	require.NoError(t, err)

	tab, err := db.Table("pEoPlE")
	require.NoError(t, err)
	require.Equal(t, "People", tab.Name)
}

func TestCreateTableRejectsBadIdentifiers(t *testing.T) {
	db, _ := newTestDatabase(t)
	for _, name := range []string{"", " leading", "dot.ted", "brack[et", "back`tick", "bang!"} {
		_, err := db.CreateTable(name, []*column.Column{intCol(0, "A")})
		require.Error(t, err, "name %q", name)
		require.True(t, jeterr.Is(err, jeterr.InvalidIdentifier), "name %q", name)
	}
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	db, _ := newTestDatabase(t)
	_, err := db.CreateTable("Dup", []*column.Column{intCol(0, "A")})
	require.NoError(t, err)
	_, err = db.CreateTable("dup", []*column.Column{intCol(0, "A")})
	require.Error(t, err)
}

func TestUniqueIndexDeleteThenReinsert(t *testing.T) {
	db, _ := newTestDatabase(t)

	tab, err := db.CreateTable("T", []*column.Column{intCol(0, "K")})
	require.NoError(t, err)
	ux, err := tab.CreateIndex("UK", []string{"K"}, true, false, index.KindRegular, nil)
	require.NoError(t, err)

	id, err := tab.InsertRow(map[string]interface{}{"K": int32(5)})
	require.NoError(t, err)
	require.NoError(t, tab.DeleteRow(id))
	_, err = tab.InsertRow(map[string]interface{}{"K": int32(5)})
	require.NoError(t, err)

	cur := tab.NewIndexCursor(ux)
	seen := 0
	ok, err := cur.FindFirstByEntry([]interface{}{int32(5)})
	require.NoError(t, err)
	for ok {
		seen++
		ok, err = cur.MoveToNextRow()
		require.NoError(t, err)
	}
	require.Equal(t, 1, seen)

	entries, distinct, err := tab.IndexData(ux).Count()
	require.NoError(t, err)
	require.Equal(t, 1, entries)
	require.Equal(t, 1, distinct)
}

func TestUniqueIndexRejectsDuplicateInsert(t *testing.T) {
	db, _ := newTestDatabase(t)

	tab, err := db.CreateTable("T", []*column.Column{intCol(0, "K")})
	require.NoError(t, err)
	_, err = tab.CreateIndex("UK", []string{"K"}, true, false, index.KindRegular, nil)
	require.NoError(t, err)

	_, err = tab.InsertRow(map[string]interface{}{"K": int32(7)})
	require.NoError(t, err)
	_, err = tab.InsertRow(map[string]interface{}{"K": int32(7)})
	require.Error(t, err)
	require.True(t, jeterr.Is(err, jeterr.InvalidValue))
}

func autoIDCol(num int, name string) *column.Column {
	return &column.Column{Name: name, Number: num, Type: column.TypeInt32, Flags: column.FlagAutoNumber}
}

func TestForeignKeyCascadeDelete(t *testing.T) {
	db, _ := newTestDatabase(t)

	parent, err := db.CreateTable("P", []*column.Column{autoIDCol(0, "id")})
	require.NoError(t, err)
	_, err = parent.CreateIndex("PK", []string{"id"}, true, true, index.KindPrimaryKey, nil)
	require.NoError(t, err)

	child, err := db.CreateTable("C", []*column.Column{
		textCol(0, "name", 20),
		intCol(1, "pid"),
	})
	require.NoError(t, err)
	_, err = db.CreateRelationship("CP", child, []string{"pid"}, parent, "PK", false, true, false)
	require.NoError(t, err)

	var parentRows []page.RowId
	for i := 0; i < 3; i++ {
		id, err := parent.InsertRow(map[string]interface{}{})
		require.NoError(t, err)
		parentRows = append(parentRows, id)
	}
	// The autonumber generator issues 1, 2, 3 in insertion order.
	row, err := parent.GetRow(parentRows[0])
	require.NoError(t, err)
	require.Equal(t, int32(1), row["id"])

	for _, c := range []struct {
		name string
		pid  int32
	}{{"a", 1}, {"b", 1}, {"c", 2}} {
		_, err := child.InsertRow(map[string]interface{}{"name": c.name, "pid": c.pid})
		require.NoError(t, err)
	}

	require.NoError(t, parent.DeleteRow(parentRows[0]))

	cur := child.NewTableScanCursor()
	var left []string
	for {
		ok, err := cur.MoveToNextRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		row, err := cur.CurrentRow()
		require.NoError(t, err)
		left = append(left, row["name"].(string))
	}
	require.Equal(t, []string{"c"}, left)
}

func TestForeignKeyRejectsOrphanInsert(t *testing.T) {
	db, _ := newTestDatabase(t)

	parent, err := db.CreateTable("P", []*column.Column{intCol(0, "id")})
	require.NoError(t, err)
	_, err = parent.CreateIndex("PK", []string{"id"}, true, true, index.KindPrimaryKey, nil)
	require.NoError(t, err)
	_, err = parent.InsertRow(map[string]interface{}{"id": int32(1)})
	require.NoError(t, err)

	child, err := db.CreateTable("C", []*column.Column{intCol(0, "pid")})
	require.NoError(t, err)
	_, err = db.CreateRelationship("CP", child, []string{"pid"}, parent, "PK", false, false, false)
	require.NoError(t, err)

	_, err = child.InsertRow(map[string]interface{}{"pid": int32(1)})
	require.NoError(t, err)
	_, err = child.InsertRow(map[string]interface{}{"pid": int32(99)})
	require.Error(t, err)
}

func TestRelationshipsAreRecorded(t *testing.T) {
	db, _ := newTestDatabase(t)

	parent, err := db.CreateTable("P", []*column.Column{intCol(0, "id")})
	require.NoError(t, err)
	_, err = parent.CreateIndex("PK", []string{"id"}, true, true, index.KindPrimaryKey, nil)
	require.NoError(t, err)
	child, err := db.CreateTable("C", []*column.Column{intCol(0, "pid")})
	require.NoError(t, err)
	_, err = db.CreateRelationship("CP", child, []string{"pid"}, parent, "PK", true, true, false)
	require.NoError(t, err)

	rels, err := db.Relationships()
	require.NoError(t, err)
	require.Len(t, rels, 1)
	r := rels[0]
	require.Equal(t, "CP", r.Name)
	require.Equal(t, "C", r.ChildTable)
	require.Equal(t, "P", r.ParentTable)
	require.Equal(t, []string{"pid"}, r.ChildColumns)
	require.Equal(t, []string{"id"}, r.ParentColumns)
	require.True(t, r.CascadeUpdates)
	require.True(t, r.CascadeDeletes)
	require.False(t, r.SetNullOnDelete)
}

func TestPropertiesRoundTrip(t *testing.T) {
	db, _ := newTestDatabase(t)

	props, err := db.Properties()
	require.NoError(t, err)
	require.Empty(t, props)

	require.NoError(t, db.PutProperty("AppTitle", "inventory"))
	require.NoError(t, db.PutProperty("AppTitle", "inventory v2"))
	require.NoError(t, db.PutProperty("Locale", "en-US"))

	props, err = db.Properties()
	require.NoError(t, err)
	require.Equal(t, "inventory v2", props["AppTitle"])
	require.Equal(t, "en-US", props["Locale"])
}

func TestCreateTableProvisionsACE(t *testing.T) {
	db, _ := newTestDatabase(t)

	_, err := db.CreateTable("T", []*column.Column{intCol(0, "A")})
	require.NoError(t, err)

	aces, err := db.systemTable("MSysACEs", sysACEsColumns, false)
	require.NoError(t, err)

	e, err := db.findObject("T", db.tablesParentID)
	require.NoError(t, err)

	cur := aces.NewTableScanCursor()
	found := false
	for {
		ok, err := cur.MoveToNextRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		row, err := cur.CurrentRow()
		require.NoError(t, err)
		if oid, _ := row["ObjectId"].(int32); oid == e.id {
			found = true
			require.Equal(t, SysFullAccessACM, row["AcmF"])
		}
	}
	require.True(t, found, "no ACE row for the created table")
}

func TestLinkedTableInfoAndResolution(t *testing.T) {
	db, _ := newTestDatabase(t)
	require.NoError(t, db.CreateLinkedTable("Remote", "other.mdb", "Actual"))

	info, err := db.LinkedTableInfo("Remote")
	require.NoError(t, err)
	require.Equal(t, ObjectTypeLinkedTable, info.Type)
	require.Equal(t, "other.mdb", info.Database)
	require.Equal(t, "Actual", info.ForeignName)

	_, err = db.Table("Remote")
	require.Error(t, err)
	require.True(t, jeterr.Is(err, jeterr.Unsupported))

	_, err = db.LinkedTable("Remote")
	require.Error(t, err)

	other, _ := newTestDatabase(t)
	_, err = other.CreateTable("Actual", []*column.Column{intCol(0, "A")})
	require.NoError(t, err)
	db.SetLinkResolver(func(name string) (*Database, error) {
		require.Equal(t, "other.mdb", name)
		return other, nil
	})
	resolved, err := db.LinkedTable("Remote")
	require.NoError(t, err)
	require.Equal(t, "Actual", resolved.Name)
}

func TestAutoNumberInsertValueDiscardedByDefault(t *testing.T) {
	db, _ := newTestDatabase(t)

	tab, err := db.CreateTable("T", []*column.Column{autoIDCol(0, "id")})
	require.NoError(t, err)

	id, err := tab.InsertRow(map[string]interface{}{"id": int32(99)})
	require.NoError(t, err)
	row, err := tab.GetRow(id)
	require.NoError(t, err)
	require.Equal(t, int32(1), row["id"])
}

func TestAutoNumberInsertValueKeptWhenAllowed(t *testing.T) {
	backing := newMemBacking(format.For(format.Jet4).PageSize)
	cfg := DefaultConfig()
	cfg.AllowAutoNumberInsert = true
	db, err := Create(backing, backing, format.Jet4, cfg)
	require.NoError(t, err)

	tab, err := db.CreateTable("T", []*column.Column{autoIDCol(0, "id")})
	require.NoError(t, err)

	id, err := tab.InsertRow(map[string]interface{}{"id": int32(99)})
	require.NoError(t, err)
	row, err := tab.GetRow(id)
	require.NoError(t, err)
	require.Equal(t, int32(99), row["id"])
}

func TestAutoNumberSeedSurvivesReopen(t *testing.T) {
	db, backing := newTestDatabase(t)

	tab, err := db.CreateTable("T", []*column.Column{autoIDCol(0, "id")})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := tab.InsertRow(map[string]interface{}{})
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	reopened, err := Open(backing, backing, DefaultConfig())
	require.NoError(t, err)
	tab2, err := reopened.Table("T")
	require.NoError(t, err)
	id, err := tab2.InsertRow(map[string]interface{}{})
	require.NoError(t, err)
	row, err := tab2.GetRow(id)
	require.NoError(t, err)
	require.Equal(t, int32(4), row["id"])
}

func TestIndexSurvivesReopenAfterSplits(t *testing.T) {
	db, backing := newTestDatabase(t)

	tab, err := db.CreateTable("T", []*column.Column{intCol(0, "K"), textCol(1, "pad", 64)})
	require.NoError(t, err)
	_, err = tab.CreateIndex("IK", []string{"K"}, false, false, index.KindRegular, nil)
	require.NoError(t, err)

	const n = 300
	pad := make([]byte, 40)
	for i := range pad {
		pad[i] = 'x'
	}
	for i := 0; i < n; i++ {
		_, err := tab.InsertRow(map[string]interface{}{"K": int32(n - i), "pad": string(pad)})
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	reopened, err := Open(backing, backing, DefaultConfig())
	require.NoError(t, err)
	tab2, err := reopened.Table("T")
	require.NoError(t, err)
	ix, ok := tab2.IndexByName("IK")
	require.True(t, ok)

	cur := tab2.NewIndexCursor(ix)
	prev := int32(0)
	count := 0
	ok, err = cur.FindFirstRow()
	require.NoError(t, err)
	for ok {
		row, err := cur.CurrentRow()
		require.NoError(t, err)
		k := row["K"].(int32)
		require.Greater(t, k, prev)
		prev = k
		count++
		ok, err = cur.MoveToNextRow()
		require.NoError(t, err)
	}
	require.Equal(t, n, count)
}

func TestConcurrentCursorSeesDeletion(t *testing.T) {
	db, _ := newTestDatabase(t)

	tab, err := db.CreateTable("T", []*column.Column{intCol(0, "A")})
	require.NoError(t, err)
	var ids []page.RowId
	for i := 1; i <= 5; i++ {
		id, err := tab.InsertRow(map[string]interface{}{"A": int32(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	curA := tab.NewTableScanCursor()
	for i := 0; i < 3; i++ {
		ok, err := curA.MoveToNextRow()
		require.NoError(t, err)
		require.True(t, ok)
	}
	row, err := curA.CurrentRow()
	require.NoError(t, err)
	require.Equal(t, int32(3), row["A"])

	// A second handle deletes the row cursor A sits on.
	require.NoError(t, tab.DeleteRow(ids[2]))

	ok, err := curA.MoveToNextRow()
	require.NoError(t, err)
	require.True(t, ok)
	row, err = curA.CurrentRow()
	require.NoError(t, err)
	require.Equal(t, int32(4), row["A"])

	deleted, _, err := tab.RowSlotState(ids[2])
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestDateTimeTypeLocalDateTimeRendersUTC(t *testing.T) {
	backing := newMemBacking(format.For(format.Jet4).PageSize)
	cfg := DefaultConfig()
	cfg.DateTimeType = DateTimeTypeLocalDateTime
	db, err := Create(backing, backing, format.Jet4, cfg)
	require.NoError(t, err)

	tab, err := db.CreateTable("T", []*column.Column{
		{Name: "When", Number: 0, Type: column.TypeShortDateTime, Flags: column.FlagCanBeNull},
	})
	require.NoError(t, err)

	stamp := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)
	id, err := tab.InsertRow(map[string]interface{}{"When": stamp})
	require.NoError(t, err)

	row, err := tab.GetRow(id)
	require.NoError(t, err)
	got := row["When"].(time.Time)
	require.Equal(t, time.UTC, got.Location())
	require.WithinDuration(t, stamp, got, time.Second)
}

func TestOrderedColumnsHonorsColumnOrder(t *testing.T) {
	backing := newMemBacking(format.For(format.Jet4).PageSize)
	cfg := DefaultConfig()
	cfg.ColumnOrder = ColumnOrderDisplay
	db, err := Create(backing, backing, format.Jet4, cfg)
	require.NoError(t, err)

	cols := []*column.Column{
		{Name: "A", Type: column.TypeInt32, Flags: column.FlagCanBeNull, DisplayIndex: 1},
		{Name: "B", Type: column.TypeInt32, Flags: column.FlagCanBeNull, DisplayIndex: 0},
	}
	tab, err := db.CreateTable("T", cols)
	require.NoError(t, err)

	display := tab.OrderedColumns()
	require.Equal(t, "B", display[0].Name)
	require.Equal(t, "A", display[1].Name)

	// Data order ignores DisplayIndex.
	db.cfg.ColumnOrder = ColumnOrderData
	data := tab.OrderedColumns()
	require.Equal(t, "A", data[0].Name)
	require.Equal(t, "B", data[1].Name)
}

func TestBootstrapLogsThroughConfigLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := jetlog.New(logrus.DebugLevel)
	logger.SetOutput(&buf)

	backing := newMemBacking(format.For(format.Jet4).PageSize)
	cfg := DefaultConfig()
	cfg.Logger = logger
	db, err := Create(backing, backing, format.Jet4, cfg)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "creating database")
	require.Contains(t, buf.String(), "allocated")

	buf.Reset()
	_, err = db.CreateTable("Logged", []*column.Column{intCol(0, "A")})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "created table")
}
