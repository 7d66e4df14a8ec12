package cursor

import (
	"bytes"

	"github.com/jetdb/jetdb/jet/index"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/table"
)

// IndexCursor walks an IndexData in collated key order and resolves
// each entry's RowId through the owning Table. The traversal is
// two-level (index.EntryCursor for key order, table.Table for the
// actual row bytes) since Jet keeps keys and rows in separate on-disk
// structures.
type IndexCursor struct {
	base
	t      *table.Table
	data   *index.IndexData
	entry  *index.EntryCursor
	rangeN int // length of the FindFirstByEntry prefix, for keepSearching
	rangeK []byte
}

// NewIndexCursor returns a cursor over data's entries, resolving rows
// through t. indexNumber identifies the logical Index bound to data for
// ID() purposes.
func NewIndexCursor(t *table.Table, data *index.IndexData, indexNumber int) *IndexCursor {
	return &IndexCursor{
		base: newBase(ID{TableDefPage: t.DefPage, IndexNumber: indexNumber}, t.Logger()),
		t:    t,
		data: data,
	}
}

func (c *IndexCursor) cur() *index.EntryCursor {
	if c.entry == nil {
		c.entry = c.data.NewEntryCursor()
	}
	return c.entry
}

// MoveToNextRow advances to the next index entry and returns its row.
// Deleted rows are skipped: DeleteCurrentRow and table.Table's DeleteRow
// leave index entries in place (only jet/catalog's Table removes them),
// so an entry can outlive its row.
func (c *IndexCursor) MoveToNextRow() (bool, error) {
	return c.runStep(func() (Position, bool, bool, error) {
		if c.current.State == StateAfterLast {
			return afterLast, false, false, nil
		}
		for {
			e, ok, err := c.cur().MoveNextEntry()
			if err != nil {
				return Position{}, false, false, err
			}
			if !ok {
				return afterLast, false, false, nil
			}
			if c.rangeK != nil && !c.withinRange(e.Key) {
				return afterLast, false, false, nil
			}
			deleted, _, err := c.t.RowSlotState(e.Row)
			if err != nil {
				return Position{}, false, false, err
			}
			if !deleted {
				return AtRow(e.Row), false, true, nil
			}
		}
	})
}

// MoveToPreviousRow retreats to the previous index entry.
func (c *IndexCursor) MoveToPreviousRow() (bool, error) {
	return c.runStep(func() (Position, bool, bool, error) {
		if c.current.State == StateBeforeFirst {
			return beforeFirst, false, false, nil
		}
		for {
			e, ok, err := c.cur().MovePreviousEntry()
			if err != nil {
				return Position{}, false, false, err
			}
			if !ok {
				return beforeFirst, false, false, nil
			}
			if c.rangeK != nil && !c.withinRange(e.Key) {
				return beforeFirst, false, false, nil
			}
			deleted, _, err := c.t.RowSlotState(e.Row)
			if err != nil {
				return Position{}, false, false, err
			}
			if !deleted {
				return AtRow(e.Row), false, true, nil
			}
		}
	})
}

// withinRange is the keepSearching short-circuit: once a backward (or
// forward) scan's key passes the
// length of the original FindFirstByEntry prefix, it can never match
// again since the tree is sorted, so the scan stops instead of walking
// every remaining entry.
func (c *IndexCursor) withinRange(key []byte) bool {
	n := c.rangeN
	if n > len(key) {
		n = len(key)
	}
	return bytes.Equal(key[:n], c.rangeK[:n])
}

// FindFirstRow repositions before the first entry and moves onto it.
func (c *IndexCursor) FindFirstRow() (bool, error) {
	c.rangeK = nil
	c.entry = c.data.NewEntryCursor()
	return c.runStep(func() (Position, bool, bool, error) {
		e, ok, err := c.cur().First()
		if err != nil {
			return Position{}, false, false, err
		}
		if !ok {
			return afterLast, false, false, nil
		}
		deleted, _, err := c.t.RowSlotState(e.Row)
		if err != nil {
			return Position{}, false, false, err
		}
		return AtRow(e.Row), deleted, true, nil
	})
}

// FindFirstByEntry seeks to the first entry whose key matches values (a
// prefix of the index's columns), constraining subsequent
// MoveToNextRow/MoveToPreviousRow calls to that key range.
func (c *IndexCursor) FindFirstByEntry(values []interface{}) (bool, error) {
	c.entry = c.data.NewEntryCursor()
	descriptors := c.data.Descriptors
	if len(values) < len(descriptors) {
		descriptors = descriptors[:len(values)]
	}
	prefix := index.EncodeEntryKey(descriptors, values)
	c.rangeN = len(prefix)
	c.rangeK = prefix
	return c.runStep(func() (Position, bool, bool, error) {
		e, ok, err := c.cur().FindFirstByEntry(values)
		if err != nil {
			return Position{}, false, false, err
		}
		if !ok {
			return afterLast, false, false, nil
		}
		if !c.withinRange(e.Key) {
			return afterLast, false, false, nil
		}
		deleted, _, err := c.t.RowSlotState(e.Row)
		if err != nil {
			return Position{}, false, false, err
		}
		return AtRow(e.Row), deleted, true, nil
	})
}

// RestoreSavepoint repositions both the cursor's logical position and
// the underlying entry walk, re-seeking the index at the restored row's
// key so subsequent moves continue from there.
func (c *IndexCursor) RestoreSavepoint(sp Savepoint) error {
	if err := c.base.RestoreSavepoint(sp); err != nil {
		return err
	}
	c.rangeK = nil
	c.entry = c.data.NewEntryCursor()
	if c.current.State != StateAtRow {
		return nil
	}
	row, err := c.t.GetRow(c.current.Row)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(c.data.Descriptors))
	for i, d := range c.data.Descriptors {
		vals[i] = row[d.Column.Name]
	}
	_, _, err = c.entry.SeekEntry(vals, c.current.Row)
	return err
}

// FindRow positions the cursor at id without using the index, by
// validating id directly against the Table - used by
// Savepoint/Table-level callers that already know a RowId.
func (c *IndexCursor) FindRow(id page.RowId) (bool, error) {
	return c.runStep(func() (Position, bool, bool, error) {
		deleted, _, err := c.t.RowSlotState(id)
		if err != nil {
			return Position{}, false, false, err
		}
		return AtRow(id), deleted, true, nil
	})
}

// CurrentRow decodes the row the cursor is positioned at.
func (c *IndexCursor) CurrentRow(columns ...string) (map[string]interface{}, error) {
	if c.current.State != StateAtRow {
		return nil, jeterr.New(jeterr.NotFound, "cursor is not positioned at a row")
	}
	row, err := c.t.GetRow(c.current.Row)
	if err != nil {
		return nil, err
	}
	return projectColumns(row, columns), nil
}

// DeleteCurrentRow deletes the row the cursor is positioned at.
func (c *IndexCursor) DeleteCurrentRow() error {
	if c.current.State != StateAtRow {
		return jeterr.New(jeterr.NotFound, "cursor is not positioned at a row")
	}
	if err := c.t.DeleteRow(c.current.Row); err != nil {
		return err
	}
	c.deleted = true
	return nil
}
