package catalog

import (
	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/cursor"
	"github.com/jetdb/jetdb/jet/index"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/table"
)

// SysFullAccessACM is the access-control mask granted to every ACE this
// engine provisions: all permission bits set.
const SysFullAccessACM int32 = 1048575

// defaultSID is the principal recorded on ACEs when the parent object
// carries none to mirror (a freshly created database).
var defaultSID = []byte{0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05}

// Relationship cascade flag bits stored in MSysRelationships.grbit.
const (
	relFlagCascadeUpdates  int32 = 1 << 0
	relFlagCascadeDeletes  int32 = 1 << 1
	relFlagSetNullOnDelete int32 = 1 << 2
)

func sysACEsColumns() []*column.Column {
	cols := []*column.Column{
		newFixedColumn(0, "AcmF", column.TypeInt32, false),
		newFixedColumn(1, "FInheritable", column.TypeByte, false),
		newFixedColumn(2, "ObjectId", column.TypeInt32, false),
		newFixedColumn(3, "SID", column.TypeBinary, true),
	}
	cols[3].Length = 255
	table.AssignLayout(cols)
	return cols
}

func sysRelationshipsColumns() []*column.Column {
	cols := []*column.Column{
		newFixedColumn(0, "szRelationship", column.TypeText, false),
		newFixedColumn(1, "szObject", column.TypeText, false),
		newFixedColumn(2, "szReferencedObject", column.TypeText, false),
		newFixedColumn(3, "szColumn", column.TypeText, false),
		newFixedColumn(4, "szReferencedColumn", column.TypeText, false),
		newFixedColumn(5, "icolumn", column.TypeInt16, false),
		newFixedColumn(6, "ccolumn", column.TypeInt16, false),
		newFixedColumn(7, "grbit", column.TypeInt32, false),
	}
	for _, i := range []int{0, 1, 2, 3, 4} {
		cols[i].Length = 64
	}
	table.AssignLayout(cols)
	return cols
}

func sysDbColumns() []*column.Column {
	cols := []*column.Column{
		newFixedColumn(0, "Name", column.TypeText, false),
		newFixedColumn(1, "Type", column.TypeInt16, false),
		newFixedColumn(2, "Value", column.TypeText, true),
	}
	cols[0].Length = 64
	cols[2].Length = 255
	table.AssignLayout(cols)
	return cols
}

// systemTable resolves one of the lazily created MSys* side tables,
// creating it (flagged system+hidden, with no ACE provisioning of its
// own) on first use when create is true.
func (db *Database) systemTable(name string, cols func() []*column.Column, create bool) (*Table, error) {
	e, err := db.findObject(name, db.tablesParentID)
	if err == nil {
		return db.openTableByDefPage(e.defPage)
	}
	if !jeterr.Is(err, jeterr.NotFound) || !create {
		return nil, err
	}
	db.channel.BeginWrite()
	t, cerr := db.createTable(name, cols(), true)
	if eerr := db.channel.EndWrite(); cerr == nil {
		cerr = eerr
	}
	return t, cerr
}

// provisionACEs appends MSysACEs rows for a freshly created object,
// mirroring the SIDs already granted on the parent ("Tables") object
// with a full-access mask. A parent with no ACEs yet contributes one
// default-SID row.
func (db *Database) provisionACEs(objectID int32) error {
	aces, err := db.systemTable("MSysACEs", sysACEsColumns, true)
	if err != nil {
		return err
	}

	var sids [][]byte
	c := cursor.NewTableScanCursor(aces.Table)
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
		if oid, _ := row["ObjectId"].(int32); oid == db.tablesParentID {
			if sid, ok := row["SID"].([]byte); ok {
				sids = append(sids, sid)
			}
		}
	}
	if len(sids) == 0 {
		sids = [][]byte{defaultSID}
	}
	for _, sid := range sids {
		if _, err := aces.Table.InsertRow(map[string]interface{}{
			"AcmF": SysFullAccessACM, "FInheritable": byte(0),
			"ObjectId": objectID, "SID": sid,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Relationship is the decoded, grouped form of one named relationship's
// MSysRelationships rows: the child (referencing) table and columns, the
// parent (referenced) table and columns, and the cascade flags.
type Relationship struct {
	Name          string
	ChildTable    string
	ChildColumns  []string
	ParentTable   string
	ParentColumns []string

	CascadeUpdates  bool
	CascadeDeletes  bool
	SetNullOnDelete bool
}

// CreateRelationship builds the foreign-key index on child over
// childColumns referencing parent's named index, records the
// relationship in MSysRelationships (one row per column pair) and
// MSysObjects, and returns the new child-side index.
func (db *Database) CreateRelationship(name string, child *Table, childColumns []string, parent *Table, parentIndexName string, cascadeUpdates, cascadeDeletes, setNullOnDelete bool) (*index.Index, error) {
	if err := validateIdentifier(name); err != nil {
		return nil, err
	}
	pix, ok := parent.IndexByName(parentIndexName)
	if !ok {
		return nil, jeterr.New(jeterr.NotFound, "table %q has no index %q", parent.Name, parentIndexName)
	}
	pdata := parent.IndexData(pix)
	if len(pdata.Descriptors) != len(childColumns) {
		return nil, jeterr.New(jeterr.InvalidValue, "relationship %q maps %d child columns onto a %d-column parent index", name, len(childColumns), len(pdata.Descriptors))
	}

	db.channel.BeginWrite()
	defer db.channel.EndWrite()

	fk := &index.ForeignKeyRef{
		OtherTableDefPage: parent.DefPage,
		OtherIndexNumber:  pix.Number,
		CascadeUpdates:    cascadeUpdates,
		CascadeDeletes:    cascadeDeletes,
		SetNullOnDelete:   setNullOnDelete,
	}
	ix, err := child.CreateIndex(name, childColumns, false, false, index.KindForeignKey, fk)
	if err != nil {
		return nil, err
	}

	rels, err := db.systemTable("MSysRelationships", sysRelationshipsColumns, true)
	if err != nil {
		return nil, err
	}
	var grbit int32
	if cascadeUpdates {
		grbit |= relFlagCascadeUpdates
	}
	if cascadeDeletes {
		grbit |= relFlagCascadeDeletes
	}
	if setNullOnDelete {
		grbit |= relFlagSetNullOnDelete
	}
	for i, cc := range childColumns {
		if _, err := rels.Table.InsertRow(map[string]interface{}{
			"szRelationship": name, "szObject": child.Name,
			"szReferencedObject": parent.Name,
			"szColumn":           cc,
			"szReferencedColumn": pdata.Descriptors[i].Column.Name,
			"icolumn":            int16(i), "ccolumn": int16(len(childColumns)),
			"grbit": grbit,
		}); err != nil {
			return nil, err
		}
	}
	if _, err := db.insertObjectRow(name, ObjectTypeRelationship, 0); err != nil {
		return nil, err
	}
	return ix, nil
}

// Relationships enumerates every relationship recorded in
// MSysRelationships, grouping its per-column rows by name. A database
// with no MSysRelationships table has no relationships.
func (db *Database) Relationships() ([]Relationship, error) {
	rels, err := db.systemTable("MSysRelationships", sysRelationshipsColumns, false)
	if err != nil {
		if jeterr.Is(err, jeterr.NotFound) {
			return nil, nil
		}
		return nil, err
	}

	byName := make(map[string]*Relationship)
	var order []string
	c := cursor.NewTableScanCursor(rels.Table)
	for {
		ok, err := c.MoveToNextRow()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row, err := c.CurrentRow()
		if err != nil {
			return nil, err
		}
		name, _ := row["szRelationship"].(string)
		r, ok := byName[name]
		if !ok {
			grbit, _ := row["grbit"].(int32)
			child, _ := row["szObject"].(string)
			parent, _ := row["szReferencedObject"].(string)
			n, _ := row["ccolumn"].(int16)
			r = &Relationship{
				Name: name, ChildTable: child, ParentTable: parent,
				ChildColumns:    make([]string, int(n)),
				ParentColumns:   make([]string, int(n)),
				CascadeUpdates:  grbit&relFlagCascadeUpdates != 0,
				CascadeDeletes:  grbit&relFlagCascadeDeletes != 0,
				SetNullOnDelete: grbit&relFlagSetNullOnDelete != 0,
			}
			byName[name] = r
			order = append(order, name)
		}
		i64, _ := row["icolumn"].(int16)
		i := int(i64)
		cc, _ := row["szColumn"].(string)
		pc, _ := row["szReferencedColumn"].(string)
		if i >= 0 && i < len(r.ChildColumns) {
			r.ChildColumns[i] = cc
			r.ParentColumns[i] = pc
		}
	}

	out := make([]Relationship, len(order))
	for i, name := range order {
		out[i] = *byName[name]
	}
	return out, nil
}

// Properties reads the database-level property map out of MSysDb: name
// to decoded value. A database that never stored properties yields an
// empty map.
func (db *Database) Properties() (map[string]interface{}, error) {
	props, err := db.systemTable("MSysDb", sysDbColumns, false)
	if err != nil {
		if jeterr.Is(err, jeterr.NotFound) {
			return map[string]interface{}{}, nil
		}
		return nil, err
	}
	out := make(map[string]interface{})
	c := cursor.NewTableScanCursor(props.Table)
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
		name, _ := row["Name"].(string)
		out[name] = row["Value"]
	}
}

// PutProperty stores (or replaces) one database-level property in
// MSysDb, creating the table on first use.
func (db *Database) PutProperty(name string, value string) error {
	props, err := db.systemTable("MSysDb", sysDbColumns, true)
	if err != nil {
		return err
	}
	db.channel.BeginWrite()
	defer db.channel.EndWrite()

	c := cursor.NewTableScanCursor(props.Table)
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
		if got, _ := row["Name"].(string); equalFold(got, name) {
			return props.Table.UpdateRow(c.Position().Row, map[string]interface{}{"Value": value})
		}
	}
	_, err = props.Table.InsertRow(map[string]interface{}{
		"Name": name, "Type": int16(column.TypeText), "Value": value,
	})
	return err
}

// LinkedTableInfo describes a linked or linked-ODBC catalog entry: the
// foreign database/connection and the remote table's name there.
type LinkedTableInfo struct {
	Name        string
	Type        ObjectType
	Database    string
	ForeignName string
	Connect     string
}

// SetLinkResolver installs the callback LinkedTable uses to open the
// database backing a linked table.
func (db *Database) SetLinkResolver(r LinkResolver) { db.linkResolver = r }

// CreateLinkedTable records a linked-table catalog entry pointing at
// foreignName inside databaseName. No local pages are allocated; the
// rows live in the foreign file.
func (db *Database) CreateLinkedTable(name, databaseName, foreignName string) error {
	if err := validateIdentifier(name); err != nil {
		return err
	}
	if _, err := db.findObject(name, db.tablesParentID); err == nil {
		return jeterr.New(jeterr.InvalidValue, "object %q already exists", name)
	} else if !jeterr.Is(err, jeterr.NotFound) {
		return err
	}
	db.channel.BeginWrite()
	defer db.channel.EndWrite()
	id := db.allocateObjectID()
	_, err := db.sysObjects.InsertRow(map[string]interface{}{
		"Id": id, "Name": name, "Type": int16(ObjectTypeLinkedTable),
		"Flags": objFlags(false, false), "ParentId": db.tablesParentID,
		"DefPage": int32(0), "Database": databaseName, "ForeignName": foreignName,
	})
	return err
}

// LinkedTableInfo returns the catalog metadata for a linked or
// linked-ODBC table without resolving it.
func (db *Database) LinkedTableInfo(name string) (LinkedTableInfo, error) {
	e, err := db.findObject(name, db.tablesParentID)
	if err != nil {
		return LinkedTableInfo{}, err
	}
	if e.objType != ObjectTypeLinkedTable && e.objType != ObjectTypeLinkedODBC {
		return LinkedTableInfo{}, jeterr.New(jeterr.InvalidValue, "table %q is local, not linked", name)
	}
	return LinkedTableInfo{
		Name: e.name, Type: e.objType,
		Database: e.database, ForeignName: e.foreignName, Connect: e.connect,
	}, nil
}

// LinkedTable resolves a linked table to a handle inside its backing
// database via the installed LinkResolver. Linked-ODBC entries carry no
// resolvable file and are reported Unsupported.
func (db *Database) LinkedTable(name string) (*Table, error) {
	info, err := db.LinkedTableInfo(name)
	if err != nil {
		return nil, err
	}
	if info.Type == ObjectTypeLinkedODBC {
		return nil, jeterr.New(jeterr.Unsupported, "table %q is a linked-ODBC table; only its definition is available", name)
	}
	if db.linkResolver == nil {
		return nil, jeterr.New(jeterr.Unsupported, "no LinkResolver installed to open linked database %q", info.Database)
	}
	other, err := db.linkResolver(info.Database)
	if err != nil {
		return nil, err
	}
	return other.Table(info.ForeignName)
}
