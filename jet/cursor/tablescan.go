package cursor

import (
	"sort"

	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/table"
)

// TableScanCursor walks a Table's owned-pages usage map in page-number
// order, then each page's row-slot array in row-number order. There is
// no tree to descend, only the flat owned-pages map plus each page's
// slot array.
type TableScanCursor struct {
	base
	t *table.Table
}

// NewTableScanCursor returns a cursor positioned before the first row of
// t.
func NewTableScanCursor(t *table.Table) *TableScanCursor {
	return &TableScanCursor{
		base: newBase(ID{TableDefPage: t.DefPage, IndexNumber: NoIndex}, t.Logger()),
		t:    t,
	}
}

// sortedOwnedPages returns t's owned data pages in ascending order,
// re-read fresh on every call so concurrent allocation/deallocation by
// another cursor is always visible.
func (c *TableScanCursor) sortedOwnedPages() []page.Number {
	pages := append([]page.Number(nil), c.t.OwnedPages.PageNumbers()...)
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

func pageIndex(pages []page.Number, pn page.Number) int {
	for i, p := range pages {
		if p == pn {
			return i
		}
	}
	return -1
}

// firstRowOnOrAfter finds the first row at or after (pageIdx, rowNum) in
// pages, skipping deleted rows, scanning forward. rowNum applies only to
// the starting page; later pages scan from their first slot.
func (c *TableScanCursor) firstRowOnOrAfter(pages []page.Number, pageIdx, rowNum int) (Position, bool, bool, error) {
	for ; pageIdx < len(pages); pageIdx++ {
		rows, err := c.t.RowNumbers(pages[pageIdx])
		if err != nil {
			return Position{}, false, false, err
		}
		start := rowNum
		for ; start < len(rows); start++ {
			id := page.RowId{Page: pages[pageIdx], Row: rows[start]}
			deleted, _, err := c.t.RowSlotState(id)
			if err != nil {
				return Position{}, false, false, err
			}
			if !deleted {
				return AtRow(id), false, true, nil
			}
		}
		rowNum = 0
	}
	return afterLast, false, false, nil
}

// lastRowOnOrBefore is the backward counterpart: rowNum < 0 means "the
// last slot of the starting page".
func (c *TableScanCursor) lastRowOnOrBefore(pages []page.Number, pageIdx, rowNum int) (Position, bool, bool, error) {
	for ; pageIdx >= 0; pageIdx-- {
		rows, err := c.t.RowNumbers(pages[pageIdx])
		if err != nil {
			return Position{}, false, false, err
		}
		start := rowNum
		if start < 0 || start > len(rows)-1 {
			start = len(rows) - 1
		}
		for ; start >= 0; start-- {
			id := page.RowId{Page: pages[pageIdx], Row: rows[start]}
			deleted, _, err := c.t.RowSlotState(id)
			if err != nil {
				return Position{}, false, false, err
			}
			if !deleted {
				return AtRow(id), false, true, nil
			}
		}
		rowNum = -1
	}
	return beforeFirst, false, false, nil
}

// MoveToNextRow advances to the next non-deleted row. ok is false when
// the move lands AfterLast.
func (c *TableScanCursor) MoveToNextRow() (bool, error) {
	return c.runStep(func() (Position, bool, bool, error) {
		pages := c.sortedOwnedPages()
		switch c.current.State {
		case StateBeforeFirst:
			return c.firstRowOnOrAfter(pages, 0, 0)
		case StateAfterLast:
			return afterLast, false, false, nil
		default:
			idx := pageIndex(pages, c.current.Row.Page)
			if idx < 0 {
				return Position{}, false, false, jeterr.New(jeterr.NotFound, "current page %d no longer owned by table", c.current.Row.Page)
			}
			return c.firstRowOnOrAfter(pages, idx, int(c.current.Row.Row)+1)
		}
	})
}

// MoveToPreviousRow retreats to the previous non-deleted row.
func (c *TableScanCursor) MoveToPreviousRow() (bool, error) {
	return c.runStep(func() (Position, bool, bool, error) {
		pages := c.sortedOwnedPages()
		switch c.current.State {
		case StateAfterLast:
			return c.lastRowOnOrBefore(pages, len(pages)-1, -1)
		case StateBeforeFirst:
			return beforeFirst, false, false, nil
		default:
			idx := pageIndex(pages, c.current.Row.Page)
			if idx < 0 {
				return Position{}, false, false, jeterr.New(jeterr.NotFound, "current page %d no longer owned by table", c.current.Row.Page)
			}
			r := int(c.current.Row.Row) - 1
			if r < 0 {
				// Slot 0 was current; resume from the end of the
				// previous page.
				idx--
			}
			return c.lastRowOnOrBefore(pages, idx, r)
		}
	})
}

// FindFirstRow repositions the cursor before the first row and moves
// onto it.
func (c *TableScanCursor) FindFirstRow() (bool, error) {
	c.current = beforeFirst
	return c.MoveToNextRow()
}

// FindRow positions the cursor directly at id without scanning,
// validating that id still resolves to a live row.
func (c *TableScanCursor) FindRow(id page.RowId) (bool, error) {
	return c.runStep(func() (Position, bool, bool, error) {
		deleted, _, err := c.t.RowSlotState(id)
		if err != nil {
			return Position{}, false, false, err
		}
		return AtRow(id), deleted, true, nil
	})
}

// CurrentRow decodes the row at the cursor's current position,
// projecting only the named columns if columns is non-empty.
func (c *TableScanCursor) CurrentRow(columns ...string) (map[string]interface{}, error) {
	if c.current.State != StateAtRow {
		return nil, jeterr.New(jeterr.NotFound, "cursor is not positioned at a row")
	}
	row, err := c.t.GetRow(c.current.Row)
	if err != nil {
		return nil, err
	}
	return projectColumns(row, columns), nil
}

func projectColumns(row map[string]interface{}, columns []string) map[string]interface{} {
	if len(columns) == 0 {
		return row
	}
	out := make(map[string]interface{}, len(columns))
	for _, name := range columns {
		out[name] = row[name]
	}
	return out
}

// DeleteCurrentRow deletes the row at the cursor's current position and
// marks it deleted locally; the next move skips it.
func (c *TableScanCursor) DeleteCurrentRow() error {
	if c.current.State != StateAtRow {
		return jeterr.New(jeterr.NotFound, "cursor is not positioned at a row")
	}
	if err := c.t.DeleteRow(c.current.Row); err != nil {
		return err
	}
	c.deleted = true
	return nil
}

// FindRowMatching scans forward from the cursor's current position for
// the first row satisfying pattern under matcher (DefaultColumnMatcher
// if nil).
func (c *TableScanCursor) FindRowMatching(pattern map[string]interface{}, matcher ColumnMatcher) (bool, error) {
	for {
		ok, err := c.MoveToNextRow()
		if err != nil || !ok {
			return ok, err
		}
		row, err := c.CurrentRow()
		if err != nil {
			return false, err
		}
		if matchRow(row, pattern, matcher) {
			return true, nil
		}
	}
}
