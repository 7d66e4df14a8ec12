// Package cursor implements the table-scan and index-backed traversal
// state machine: BeforeFirst/AtRow/AfterLast positions, savepoints,
// deletion-aware skipping, and pattern search via a configurable
// ColumnMatcher. The two concrete walkers over jet/table and jet/index
// share one base state machine for position bookkeeping.
package cursor

import (
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/jetlog"
	"github.com/jetdb/jetdb/jet/page"
)

// State is one of the three positions a Cursor may occupy.
type State int

const (
	StateBeforeFirst State = iota
	StateAtRow
	StateAfterLast
)

// Position is a cursor's location: either a sentinel (BeforeFirst,
// AfterLast) or a concrete row.
type Position struct {
	State State
	Row   page.RowId
}

var beforeFirst = Position{State: StateBeforeFirst}
var afterLast = Position{State: StateAfterLast}

// AtRow returns the Position naming row id.
func AtRow(id page.RowId) Position { return Position{State: StateAtRow, Row: id} }

// ID identifies a cursor: the backing table's
// definition page plus the index number it is bound to, or -1 for a
// plain table scan.
type ID struct {
	TableDefPage page.Number
	IndexNumber  int
}

// NoIndex is the IndexNumber a table-scan (non-index-backed) Cursor
// carries.
const NoIndex = -1

// Savepoint is an opaque snapshot of a cursor's current and previous
// position, restorable only on the same cursor id.
type Savepoint struct {
	cursorID ID
	current  Position
	previous Position
}

// base implements the position bookkeeping shared by TableScanCursor and
// IndexCursor: the current/previous position pair, savepoint capture and
// restore, and the single-retry staleness handling for concurrent
// mutation: a stale row-state restores the previous position and repeats
// the step once. Concrete cursors embed base and supply
// the page-walking logic through the stepper they pass to move.
type base struct {
	id       ID
	current  Position
	previous Position
	deleted  bool
	log      jetlog.Logger
}

func newBase(id ID, log jetlog.Logger) base {
	if log == nil {
		log = jetlog.Discard()
	}
	return base{id: id, current: beforeFirst, previous: beforeFirst, log: log}
}

// ID returns the cursor's identity.
func (b *base) ID() ID { return b.id }

// Position returns the cursor's current position.
func (b *base) Position() Position { return b.current }

// IsCurrentRowDeleted reports whether the row last positioned on (by
// the most recent successful move) was found deleted.
func (b *base) IsCurrentRowDeleted() bool { return b.deleted }

func (b *base) setPosition(p Position, deleted bool) {
	b.previous = b.current
	b.current = p
	b.deleted = deleted
}

// Savepoint captures the cursor's current and previous position.
func (b *base) Savepoint() Savepoint {
	return Savepoint{cursorID: b.id, current: b.current, previous: b.previous}
}

// RestoreSavepoint repositions the cursor to sp, rejecting a savepoint
// captured by a different cursor id.
func (b *base) RestoreSavepoint(sp Savepoint) error {
	if sp.cursorID != b.id {
		return jeterr.New(jeterr.InvalidValue, "savepoint belongs to cursor %+v, not %+v", sp.cursorID, b.id)
	}
	b.current = sp.current
	b.previous = sp.previous
	return nil
}

// stepFunc performs one directional move attempt from a base position,
// returning the new position and whether the destination row (if any)
// is deleted. ok is false when the move lands on a sentinel
// (BeforeFirst/AfterLast) rather than a row.
type stepFunc func() (pos Position, deleted bool, ok bool, err error)

// runStep is the idempotent single-retry driver: if step fails with a
// NotFound (the row-state's page/row no longer resolves, the
// concurrent-mutation case), the cursor restores its previous position
// and tries once more before surfacing ConcurrentModification.
func (b *base) runStep(step stepFunc) (bool, error) {
	pos, deleted, ok, err := step()
	if err != nil && jeterr.Is(err, jeterr.NotFound) {
		jetlog.WithPage(b.log, uint32(b.current.Row.Page)).Debug("cursor row state stale, retrying from previous position")
		b.current = b.previous
		pos, deleted, ok, err = step()
		if err != nil {
			return false, jeterr.Wrap(jeterr.ConcurrentModification, err, "row state could not be reconciled after retry")
		}
	}
	if err != nil {
		return false, err
	}
	b.setPosition(pos, deleted)
	return ok, nil
}

// ColumnMatcher decides whether a stored value matches a caller-supplied
// pattern value for one column. The default (DefaultColumnMatcher) is
// null-sensible equality: NULL matches only NULL.
type ColumnMatcher func(pattern, value interface{}) bool

// DefaultColumnMatcher is the default ColumnMatcher: nil matches only
// nil, otherwise values compare with ==-equivalent semantics via
// reflect-free type assertions on the handful of concrete types
// Table.GetRow ever produces.
func DefaultColumnMatcher(pattern, value interface{}) bool {
	if pattern == nil || value == nil {
		return pattern == nil && value == nil
	}
	switch p := pattern.(type) {
	case []byte:
		v, ok := value.([]byte)
		if !ok || len(p) != len(v) {
			return false
		}
		for i := range p {
			if p[i] != v[i] {
				return false
			}
		}
		return true
	default:
		return pattern == value
	}
}

// matchRow reports whether row satisfies every (column, pattern) pair in
// pattern using matcher.
func matchRow(row map[string]interface{}, pattern map[string]interface{}, matcher ColumnMatcher) bool {
	if matcher == nil {
		matcher = DefaultColumnMatcher
	}
	for name, want := range pattern {
		got, present := row[name]
		if !present {
			got = nil
		}
		if !matcher(want, got) {
			return false
		}
	}
	return true
}
