package catalog

import (
	"time"

	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/cursor"
	"github.com/jetdb/jetdb/jet/index"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/jetlog"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/table"
)

// ObjectType is one of the MSysObjects.Type values.
type ObjectType int32

const (
	ObjectTypeTable      ObjectType = 1
	ObjectTypeLinkedODBC ObjectType = 4
	ObjectTypeQuery      ObjectType = 5
	ObjectTypeLinkedTable ObjectType = 6
	ObjectTypeRelationship ObjectType = 8
)

// Object flag bits.
const (
	objFlagSystemHigh uint32 = 0x80000000
	objFlagSystem     uint32 = 0x02
	objFlagHidden     uint32 = 0x08
)

func objFlags(system, hidden bool) int32 {
	var f uint32
	if system {
		f |= objFlagSystemHigh | objFlagSystem
	}
	if hidden {
		f |= objFlagHidden
	}
	return int32(f)
}

// catalogEntry is the decoded form of one MSysObjects row.
type catalogEntry struct {
	id          int32
	name        string
	objType     ObjectType
	flags       int32
	parentID    int32
	defPage     page.Number
	database    string
	foreignName string
	connect     string
}

func newFixedColumn(num int, name string, typ column.Type, nullable bool) *column.Column {
	f := column.Flags(0)
	if nullable {
		f |= column.FlagCanBeNull
	}
	return &column.Column{Name: name, Number: num, Type: typ, Flags: f}
}

// sysObjectsColumns builds MSysObjects' column set. The DefPage column
// is not part of the real Jet catalog schema; this engine adds it (see
// DESIGN.md) to map a catalog row directly to its TABLE_DEF page number
// instead of reconstructing that mapping some other way.
func sysObjectsColumns() []*column.Column {
	cols := []*column.Column{
		newFixedColumn(0, "Id", column.TypeInt32, false),
		newFixedColumn(1, "Name", column.TypeText, false),
		newFixedColumn(2, "Type", column.TypeInt16, false),
		newFixedColumn(3, "Flags", column.TypeInt32, false),
		newFixedColumn(4, "ParentId", column.TypeInt32, false),
		newFixedColumn(5, "Owner", column.TypeBinary, true),
		newFixedColumn(6, "DateCreate", column.TypeShortDateTime, true),
		newFixedColumn(7, "DateUpdate", column.TypeShortDateTime, true),
		newFixedColumn(8, "LvProp", column.TypeMemo, true),
		newFixedColumn(9, "Database", column.TypeText, true),
		newFixedColumn(10, "ForeignName", column.TypeText, true),
		newFixedColumn(11, "Connect", column.TypeText, true),
		newFixedColumn(12, "DefPage", column.TypeInt32, false),
	}
	cols[1].Length, cols[9].Length, cols[10].Length = 64, 64, 64
	cols[11].Length = 255
	table.AssignLayout(cols)
	return cols
}

// bootstrapSysObjects allocates MSysObjects' own TABLE_DEF page and
// inserts the "Tables" group row and MSysObjects' own self-describing
// row. Must run inside a write scope.
func (db *Database) bootstrapSysObjects() error {
	cols := sysObjectsColumns()
	p, owned, free, err := newTableDefPage(db.channel)
	if err != nil {
		return err
	}
	if p.Number() != msysObjectsDefPage {
		return jeterr.New(jeterr.FormatViolation, "expected MSysObjects on page %d, allocator produced page %d", msysObjectsDefPage, p.Number())
	}

	t := table.New(p.Number(), "MSysObjects", cols, db.channel, owned, free, db.tableOptions()...)
	def := table.TableDef{Name: t.Name, Columns: t.Columns, AutoNumberSeeds: t.CurrentAutoNumberSeeds()}
	if err := writeTableDefBlob(p, table.EncodeTableDef(def)); err != nil {
		return err
	}
	db.sysObjects = t
	db.byPage[msysObjectsDefPage] = &Table{Table: t, db: db, data: make(map[int]*index.IndexData)}
	db.nameToPage[upper(t.Name)] = msysObjectsDefPage
	db.nextObjectID = -1

	now := time.Now()
	if _, err := t.InsertRow(map[string]interface{}{
		"Id": tablesGroupID, "Name": "Tables", "Type": int16(0),
		"Flags": objFlags(true, true), "ParentId": tablesParentSentinel,
		"DefPage": int32(0), "DateCreate": now, "DateUpdate": now,
	}); err != nil {
		return err
	}
	if _, err := t.InsertRow(map[string]interface{}{
		"Id": int32(2), "Name": "MSysObjects", "Type": int16(ObjectTypeTable),
		"Flags": objFlags(true, true), "ParentId": tablesGroupID,
		"DefPage": int32(msysObjectsDefPage), "DateCreate": now, "DateUpdate": now,
	}); err != nil {
		return err
	}
	db.tablesParentID = tablesGroupID
	db.Logger().Debug("bootstrapped system catalog")
	return nil
}

// loadSysObjects binds to an existing MSysObjects table on reopen and
// recomputes the object-id allocator and "Tables" group id by scanning
// it. This engine never builds an index over MSysObjects, so every
// lookup here is a linear scan.
func (db *Database) loadSysObjects() error {
	p, owned, free, err := loadTableDefPage(db.channel, msysObjectsDefPage)
	if err != nil {
		return err
	}
	blob, err := readTableDefBlob(p)
	if err != nil {
		return err
	}
	def, err := table.DecodeTableDef(blob)
	if err != nil {
		return err
	}
	t := table.New(p.Number(), def.Name, def.Columns, db.channel, owned, free, db.tableOptions()...)
	t.ApplyAutoNumberSeeds(def.AutoNumberSeeds)
	db.sysObjects = t
	db.byPage[msysObjectsDefPage] = &Table{Table: t, db: db, data: make(map[int]*index.IndexData)}
	db.nameToPage[upper(t.Name)] = msysObjectsDefPage

	minID := int32(0)
	found := false
	objects := 0
	c := cursor.NewTableScanCursor(t)
	for {
		ok, err := c.MoveToNextRow()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		row, err := c.CurrentRow()
		if err != nil {
			return err
		}
		id, _ := row["Id"].(int32)
		parentID, _ := row["ParentId"].(int32)
		name, _ := row["Name"].(string)
		objects++
		if parentID == tablesParentSentinel && equalFold(name, "Tables") {
			db.tablesParentID = id
			found = true
		}
		if id < minID {
			minID = id
		}
	}
	if !found {
		return jeterr.New(jeterr.FormatViolation, "system catalog bootstrap row (ParentId=0x%X, Name=Tables) not found", tablesParentSentinel)
	}
	db.nextObjectID = minID - 1
	db.Logger().Debugf("system catalog loaded, %d objects", objects)
	return nil
}

func decodeEntry(row map[string]interface{}) catalogEntry {
	e := catalogEntry{}
	e.id, _ = row["Id"].(int32)
	e.name, _ = row["Name"].(string)
	if t, ok := row["Type"].(int16); ok {
		e.objType = ObjectType(t)
	}
	e.flags, _ = row["Flags"].(int32)
	e.parentID, _ = row["ParentId"].(int32)
	if dp, ok := row["DefPage"].(int32); ok {
		e.defPage = page.Number(dp)
	}
	e.database, _ = row["Database"].(string)
	e.foreignName, _ = row["ForeignName"].(string)
	e.connect, _ = row["Connect"].(string)
	return e
}

// findObject linear-scans MSysObjects for a row matching name (case
// insensitive) and parentID.
func (db *Database) findObject(name string, parentID int32) (catalogEntry, error) {
	c := cursor.NewTableScanCursor(db.sysObjects)
	for {
		ok, err := c.MoveToNextRow()
		if err != nil {
			return catalogEntry{}, err
		}
		if !ok {
			return catalogEntry{}, jeterr.New(jeterr.NotFound, "object %q not found under parent %d", name, parentID)
		}
		row, err := c.CurrentRow()
		if err != nil {
			return catalogEntry{}, err
		}
		e := decodeEntry(row)
		if e.parentID == parentID && equalFold(e.name, name) {
			return e, nil
		}
	}
}

// listTables linear-scans MSysObjects for every table-type row.
func (db *Database) listTables() ([]catalogEntry, error) {
	var out []catalogEntry
	c := cursor.NewTableScanCursor(db.sysObjects)
	for {
		ok, err := c.MoveToNextRow()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		row, err := c.CurrentRow()
		if err != nil {
			return nil, err
		}
		e := decodeEntry(row)
		if e.objType == ObjectTypeTable && e.parentID == db.tablesParentID {
			out = append(out, e)
		}
	}
}

// TableNames returns the name of every user/system table registered
// under the "Tables" group, in catalog order.
func (db *Database) TableNames() ([]string, error) {
	entries, err := db.listTables()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

// insertObjectRow appends a new MSysObjects row of type typ named name
// whose definition lives at defPage (CreateRelationship uses it for
// relationship rows).
func (db *Database) insertObjectRow(name string, typ ObjectType, defPage page.Number) (int32, error) {
	id := db.allocateObjectID()
	now := time.Now()
	_, err := db.sysObjects.InsertRow(map[string]interface{}{
		"Id": id, "Name": name, "Type": int16(typ),
		"Flags": objFlags(false, false), "ParentId": db.tablesParentID,
		"DefPage": int32(defPage), "DateCreate": now, "DateUpdate": now,
	})
	return id, err
}

// CreateTable allocates a new table named name with cols, registers it
// in MSysObjects, and provisions its access-control entries before
// returning a handle to it.
func (db *Database) CreateTable(name string, cols []*column.Column) (*Table, error) {
	db.channel.BeginWrite()
	ct, err := db.createTable(name, cols, false)
	if eerr := db.channel.EndWrite(); err == nil {
		err = eerr
	}
	if err != nil {
		return nil, err
	}
	return ct, nil
}

// createTable is the shared table-creation path. System tables are
// flagged system+hidden and skip ACE provisioning (MSysACEs itself is
// created through here). Must run inside a write scope.
func (db *Database) createTable(name string, cols []*column.Column, system bool) (*Table, error) {
	if err := validateIdentifier(name); err != nil {
		return nil, err
	}
	if _, err := db.findObject(name, db.tablesParentID); err == nil {
		return nil, jeterr.New(jeterr.InvalidValue, "table %q already exists", name)
	} else if !jeterr.Is(err, jeterr.NotFound) {
		return nil, err
	}

	table.AssignLayout(cols)
	p, owned, free, err := newTableDefPage(db.channel)
	if err != nil {
		return nil, err
	}
	t := table.New(p.Number(), name, cols, db.channel, owned, free, db.tableOptions()...)
	ct := &Table{Table: t, db: db, data: make(map[int]*index.IndexData)}
	if err := ct.persistDef(p); err != nil {
		return nil, err
	}

	id := db.allocateObjectID()
	now := time.Now()
	if _, err := db.sysObjects.InsertRow(map[string]interface{}{
		"Id": id, "Name": name, "Type": int16(ObjectTypeTable),
		"Flags": objFlags(system, system), "ParentId": db.tablesParentID,
		"DefPage": int32(p.Number()), "DateCreate": now, "DateUpdate": now,
	}); err != nil {
		return nil, err
	}

	db.byPage[p.Number()] = ct
	db.nameToPage[upper(name)] = p.Number()
	jetlog.WithTable(db.Logger(), name).Debugf("created table on page %d", p.Number())

	if !system {
		if err := db.provisionACEs(id); err != nil {
			return nil, err
		}
	}
	return ct, nil
}

// Table resolves name to its handle, consulting the name cache first
// and falling back to a linear MSysObjects scan.
func (db *Database) Table(name string) (*Table, error) {
	if pn, ok := db.nameToPage[upper(name)]; ok {
		return db.openTableByDefPage(pn)
	}
	e, err := db.findObject(name, db.tablesParentID)
	if err != nil {
		return nil, err
	}
	if e.objType == ObjectTypeLinkedODBC || e.objType == ObjectTypeLinkedTable {
		return nil, jeterr.New(jeterr.Unsupported, "table %q is a linked table; use LinkedTable", name)
	}
	db.nameToPage[upper(name)] = e.defPage
	return db.openTableByDefPage(e.defPage)
}

func (db *Database) openTableByDefPage(pn page.Number) (*Table, error) {
	if t, ok := db.byPage[pn]; ok {
		return t, nil
	}
	p, owned, free, err := loadTableDefPage(db.channel, pn)
	if err != nil {
		return nil, err
	}
	blob, err := readTableDefBlob(p)
	if err != nil {
		return nil, err
	}
	def, err := table.DecodeTableDef(blob)
	if err != nil {
		return nil, err
	}
	t := table.New(pn, def.Name, def.Columns, db.channel, owned, free, db.tableOptions()...)
	t.ApplyAutoNumberSeeds(def.AutoNumberSeeds)

	datas, indexes, err := decodeIndexSection(db.channel, def.Columns, def.Extra)
	if err != nil {
		return nil, err
	}
	ct := &Table{Table: t, db: db, indexes: indexes, data: datas}
	db.byPage[pn] = ct
	db.nameToPage[upper(def.Name)] = pn
	return ct, nil
}

// resolveIndexData satisfies index.Resolver for this database's
// FKEnforcer.
func (db *Database) resolveIndexData(tableDefPage page.Number, indexNumber int) (*index.IndexData, error) {
	t, err := db.openTableByDefPage(tableDefPage)
	if err != nil {
		return nil, err
	}
	for _, ix := range t.indexes {
		if ix.Number == indexNumber {
			return t.data[ix.DataNumber], nil
		}
	}
	return nil, jeterr.New(jeterr.NotFound, "table on page %d has no index %d", tableDefPage, indexNumber)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
