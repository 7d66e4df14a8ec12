package catalog

import (
	"reflect"
	"sort"

	"github.com/jetdb/jetdb/jet/column"
	"github.com/jetdb/jetdb/jet/cursor"
	"github.com/jetdb/jetdb/jet/index"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/table"
)

// Table is a catalog-resolved table handle: the physical table.Table
// plus the logical Indexes bound to it. It is the seam that keeps
// every index (and any foreign
// key it carries) in sync with InsertRow/UpdateRow/DeleteRow, which
// table.Table does not do itself (jet/table does not import
// jet/index).
type Table struct {
	*table.Table
	db      *Database
	indexes []*index.Index
	data    map[int]*index.IndexData
}

// OrderedColumns returns t's columns in the order selected by
// Config.ColumnOrder: data (declaration) order, or display order by
// each column's DisplayIndex.
func (t *Table) OrderedColumns() []*column.Column {
	out := append([]*column.Column(nil), t.Columns...)
	if t.db.cfg.ColumnOrder == ColumnOrderDisplay {
		sort.Slice(out, func(i, j int) bool { return out[i].DisplayIndex < out[j].DisplayIndex })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	}
	return out
}

// Indexes returns t's logical indexes in declaration order.
func (t *Table) Indexes() []*index.Index { return t.indexes }

// IndexByName finds a logical index by name (case-insensitive).
func (t *Table) IndexByName(name string) (*index.Index, bool) {
	for _, ix := range t.indexes {
		if equalFold(ix.Name, name) {
			return ix, true
		}
	}
	return nil, false
}

// IndexData returns the physical B-tree backing ix.
func (t *Table) IndexData(ix *index.Index) *index.IndexData { return t.data[ix.DataNumber] }

func keyValues(d *index.IndexData, row map[string]interface{}) []interface{} {
	vals := make([]interface{}, len(d.Descriptors))
	for i, desc := range d.Descriptors {
		vals[i] = row[desc.Column.Name]
	}
	return vals
}

func valuesEqual(a, b []interface{}) bool {
	return reflect.DeepEqual(a, b)
}

// persistDef re-encodes t's column/autonumber/index metadata and writes
// it to p, the table's own TABLE_DEF page. Callers that mutate t.indexes
// or t.data must call this to make the change durable.
func (t *Table) persistDef(p *page.Page) error {
	def := table.TableDef{
		Name:            t.Name,
		Columns:         t.Columns,
		AutoNumberSeeds: t.CurrentAutoNumberSeeds(),
		Extra:           encodeIndexSection(t.data, t.indexes),
	}
	return writeTableDefBlob(p, table.EncodeTableDef(def))
}

func (t *Table) defPage() (*page.Page, error) {
	p, _, _, err := loadTableDefPage(t.db.channel, t.DefPage)
	return p, err
}

func (t *Table) rootSnapshot() map[int]page.Number {
	roots := make(map[int]page.Number, len(t.data))
	for n, d := range t.data {
		roots[n] = d.RootPage
	}
	return roots
}

// persistIfChanged re-persists the table definition when force is set or
// any index root page moved since roots was captured (a split installed
// a new root, which lives only in the definition blob).
func (t *Table) persistIfChanged(roots map[int]page.Number, force bool) error {
	changed := force
	if !changed {
		for n, d := range t.data {
			if roots[n] != d.RootPage {
				changed = true
				break
			}
		}
	}
	if !changed {
		return nil
	}
	p, err := t.defPage()
	if err != nil {
		return err
	}
	return t.persistDef(p)
}

// CreateIndex builds a new logical Index over columnNames, allocating a
// fresh IndexData and backfilling it from every row currently in the
// table. fk is nil for a plain or unique index.
func (t *Table) CreateIndex(name string, columnNames []string, unique, required bool, kind index.Kind, fk *index.ForeignKeyRef) (*index.Index, error) {
	if err := validateIdentifier(name); err != nil {
		return nil, err
	}
	t.db.channel.BeginWrite()
	defer t.db.channel.EndWrite()
	if _, exists := t.IndexByName(name); exists {
		return nil, jeterr.New(jeterr.InvalidValue, "index %q already exists on table %q", name, t.Name)
	}

	descs := make([]index.ColumnDescriptor, len(columnNames))
	for i, cn := range columnNames {
		c, ok := t.ColumnByName(cn)
		if !ok {
			return nil, jeterr.New(jeterr.NotFound, "column %q not found on table %q", cn, t.Name)
		}
		gen := index.GeneralLegacy
		descs[i] = index.ColumnDescriptor{Column: c, IndexCodesGen: gen}
	}

	data, err := index.NewIndexData(t.db.channel, descs, unique)
	if err != nil {
		return nil, err
	}

	dataNumber := 0
	for n := range t.data {
		if n >= dataNumber {
			dataNumber = n + 1
		}
	}
	t.data[dataNumber] = data

	ix := &index.Index{
		Name:       name,
		Number:     len(t.indexes),
		DataNumber: dataNumber,
		Kind:       kind,
		Unique:     unique,
		Required:   required,
		ForeignKey: fk,
	}
	t.indexes = append(t.indexes, ix)

	sc := cursor.NewTableScanCursor(t.Table)
	for {
		ok, err := sc.MoveToNextRow()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row, err := sc.CurrentRow()
		if err != nil {
			return nil, err
		}
		if err := data.Insert(keyValues(data, row), sc.Position().Row); err != nil {
			return nil, err
		}
	}

	p, err := t.defPage()
	if err != nil {
		return nil, err
	}
	if err := t.persistDef(p); err != nil {
		return nil, err
	}
	return ix, nil
}

// InsertRow inserts values, enforcing every KindForeignKey index's
// reference check (if enabled) and maintaining every index's entries.
// Caller-supplied values for autonumber columns are discarded in favor
// of generated ones unless Config.AllowAutoNumberInsert is set.
func (t *Table) InsertRow(values map[string]interface{}) (page.RowId, error) {
	t.db.channel.BeginWrite()
	defer t.db.channel.EndWrite()

	if !t.db.cfg.AllowAutoNumberInsert {
		for _, c := range t.Columns {
			if !c.Flags.Has(column.FlagAutoNumber) {
				continue
			}
			if _, present := values[c.Name]; present {
				trimmed := make(map[string]interface{}, len(values))
				for k, v := range values {
					trimmed[k] = v
				}
				for _, ac := range t.Columns {
					if ac.Flags.Has(column.FlagAutoNumber) {
						delete(trimmed, ac.Name)
					}
				}
				values = trimmed
				break
			}
		}
	}

	if t.db.cfg.EnforceForeignKeys {
		for _, ix := range t.indexes {
			if ix.Kind != index.KindForeignKey || ix.ForeignKey == nil {
				continue
			}
			d := t.data[ix.DataNumber]
			if err := t.db.fk.CheckReference(ix.ForeignKey, keyValues(d, values)); err != nil {
				return page.RowId{}, err
			}
		}
	}

	roots := t.rootSnapshot()
	id, err := t.Table.InsertRow(values)
	if err != nil {
		return id, err
	}

	// Index keys come from the stored row, not the caller's map, so
	// generated autonumber values land in their indexes.
	stored, err := t.Table.GetRow(id)
	if err != nil {
		return id, err
	}

	seen := map[int]bool{}
	for _, ix := range t.indexes {
		if seen[ix.DataNumber] {
			continue
		}
		seen[ix.DataNumber] = true
		d := t.data[ix.DataNumber]
		if err := d.Insert(keyValues(d, stored), id); err != nil {
			return id, err
		}
	}

	// A generated autonumber advances the seed stored in the table
	// definition, and an index split can move a root page; both live
	// only in the definition blob, so re-persist when either happened.
	force := false
	for _, c := range t.Columns {
		if c.Flags.Has(column.FlagAutoNumber) {
			force = true
			break
		}
	}
	if err := t.persistIfChanged(roots, force); err != nil {
		return id, err
	}
	return id, nil
}

// UpdateRow merges patch into id's row and reconciles every index whose
// key columns were touched.
func (t *Table) UpdateRow(id page.RowId, patch map[string]interface{}) error {
	t.db.channel.BeginWrite()
	defer t.db.channel.EndWrite()
	oldRow, err := t.Table.GetRow(id)
	if err != nil {
		return err
	}
	merged := make(map[string]interface{}, len(oldRow)+len(patch))
	for k, v := range oldRow {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	if t.db.cfg.EnforceForeignKeys {
		for _, ix := range t.indexes {
			if ix.Kind != index.KindForeignKey || ix.ForeignKey == nil {
				continue
			}
			d := t.data[ix.DataNumber]
			oldVals, newVals := keyValues(d, oldRow), keyValues(d, merged)
			if !valuesEqual(oldVals, newVals) {
				if err := t.db.fk.CheckReference(ix.ForeignKey, newVals); err != nil {
					return err
				}
			}
		}
	}

	roots := t.rootSnapshot()
	if err := t.Table.UpdateRow(id, patch); err != nil {
		return err
	}

	seen := map[int]bool{}
	for _, ix := range t.indexes {
		if seen[ix.DataNumber] {
			continue
		}
		seen[ix.DataNumber] = true
		d := t.data[ix.DataNumber]
		oldVals, newVals := keyValues(d, oldRow), keyValues(d, merged)
		if valuesEqual(oldVals, newVals) {
			continue
		}
		if err := d.Delete(oldVals, id); err != nil {
			return err
		}
		if err := d.Insert(newVals, id); err != nil {
			return err
		}
	}
	return t.persistIfChanged(roots, false)
}

// DeleteRow removes id, its entry from every index, and cascades to any
// other table whose foreign key references one of this table's
// indexes.
func (t *Table) DeleteRow(id page.RowId) error {
	t.db.channel.BeginWrite()
	defer t.db.channel.EndWrite()
	oldRow, err := t.Table.GetRow(id)
	if err != nil {
		return err
	}
	if err := t.Table.DeleteRow(id); err != nil {
		return err
	}

	seen := map[int]bool{}
	for _, ix := range t.indexes {
		if seen[ix.DataNumber] {
			continue
		}
		seen[ix.DataNumber] = true
		d := t.data[ix.DataNumber]
		if err := d.Delete(keyValues(d, oldRow), id); err != nil {
			return err
		}
	}

	if t.db.cfg.EnforceForeignKeys {
		for _, ix := range t.indexes {
			if err := t.db.cascadeFrom(t, ix, oldRow); err != nil {
				return err
			}
		}
	}
	return nil
}

// cascadeFrom implements the CASCADE/SET NULL half of a foreign key:
// every other table's index that references (parent, parentIndex) is
// walked for matching child rows, which are deleted or nulled out
// according to the relationship's flags.
func (db *Database) cascadeFrom(parent *Table, parentIndex *index.Index, oldRow map[string]interface{}) error {
	parentData, ok := parent.data[parentIndex.DataNumber]
	if !ok {
		return nil
	}
	parentVals := keyValues(parentData, oldRow)

	entries, err := db.listTables()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.defPage == parent.DefPage {
			continue
		}
		child, err := db.openTableByDefPage(e.defPage)
		if err != nil {
			return err
		}
		for _, cix := range child.indexes {
			if cix.Kind != index.KindForeignKey || cix.ForeignKey == nil {
				continue
			}
			if cix.ForeignKey.OtherTableDefPage != parent.DefPage || cix.ForeignKey.OtherIndexNumber != parentIndex.Number {
				continue
			}
			childData := child.data[cix.DataNumber]
			rows, err := db.fk.MatchingChildRows(childData, parentVals)
			if err != nil {
				return err
			}
			if len(rows) > 0 && !cix.ForeignKey.CascadeDeletes && !cix.ForeignKey.SetNullOnDelete {
				return jeterr.New(jeterr.InvalidValue, "row is referenced by %q on table %q", cix.Name, child.Name)
			}
			for _, rid := range rows {
				switch {
				case cix.ForeignKey.CascadeDeletes:
					if err := child.DeleteRow(rid); err != nil {
						return err
					}
				case cix.ForeignKey.SetNullOnDelete:
					patch := make(map[string]interface{}, len(childData.Descriptors))
					for _, d := range childData.Descriptors {
						patch[d.Column.Name] = nil
					}
					if err := child.UpdateRow(rid, patch); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// GetRow decodes the row at id, routing any decode failure through the
// configured ErrorHandler before surfacing it.
func (t *Table) GetRow(id page.RowId) (map[string]interface{}, error) {
	row, err := t.Table.GetRow(id)
	if err != nil {
		return nil, t.db.cfg.ErrorHandler(err)
	}
	return row, nil
}

// NewTableScanCursor returns a fresh table-scan cursor over t.
func (t *Table) NewTableScanCursor() *cursor.TableScanCursor {
	return cursor.NewTableScanCursor(t.Table)
}

// NewIndexCursor returns a fresh cursor walking ix in key order.
func (t *Table) NewIndexCursor(ix *index.Index) *cursor.IndexCursor {
	return cursor.NewIndexCursor(t.Table, t.data[ix.DataNumber], ix.Number)
}
