package index

import (
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
)

// Resolver locates the physical IndexData backing a (tableDefPage,
// indexNumber) pair, without FKEnforcer needing to know anything about
// jet/catalog's Database or jet/table's Table (avoiding an import
// cycle: catalog depends on table and index, so neither of those can
// depend back on catalog).
type Resolver func(tableDefPage page.Number, indexNumber int) (*IndexData, error)

// FKEnforcer is the single piece of code that checks and walks foreign
// key relationships, shared by every table's insert/update/delete path.
// It locates the peer IndexData through its Resolver and consults it.
type FKEnforcer struct {
	resolve Resolver
}

func NewFKEnforcer(resolve Resolver) *FKEnforcer {
	return &FKEnforcer{resolve: resolve}
}

// CheckReference verifies that a row about to be inserted or updated
// with childValues (in the FK column order of ref's own index) has a
// matching parent entry. Enforcement is driven off index lookups rather
// than per-table scans.
func (e *FKEnforcer) CheckReference(ref *ForeignKeyRef, childValues []interface{}) error {
	parent, err := e.resolve(ref.OtherTableDefPage, ref.OtherIndexNumber)
	if err != nil {
		return err
	}
	for _, v := range childValues {
		if v == nil {
			// A NULL foreign-key column never violates the constraint.
			return nil
		}
	}
	key := parent.EncodeKey(childValues)
	ok, err := parent.ContainsKey(key)
	if err != nil {
		return err
	}
	if !ok {
		return jeterr.New(jeterr.InvalidValue, "foreign key constraint violated: no parent row matching %v", childValues)
	}
	return nil
}

// MatchingChildRows scans ownIndexData (the child table's index on its
// FK columns) for every row whose key equals parentValues, for
// cascading an update or delete of the referenced parent row.
func (e *FKEnforcer) MatchingChildRows(ownIndexData *IndexData, parentValues []interface{}) ([]page.RowId, error) {
	key := ownIndexData.EncodeKey(parentValues)
	cur := ownIndexData.NewEntryCursor()
	entry, ok, err := cur.findFirstByKey(key, page.RowId{})
	if err != nil {
		return nil, err
	}
	var rows []page.RowId
	for ok && compareBytes(entry.Key, key) == 0 {
		rows = append(rows, entry.Row)
		entry, ok, err = cur.MoveNextEntry()
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}
