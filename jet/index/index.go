package index

import "github.com/jetdb/jetdb/jet/page"

// Kind distinguishes the three roles an Index can play.
type Kind int

const (
	KindRegular Kind = iota
	KindPrimaryKey
	KindForeignKey
)

// ForeignKeyRef is the cross-reference a KindForeignKey Index carries:
// the peer table's definition page and the index on it this one
// references, plus the cascade behavior carried by the
// UPDATES/DELETES/NULL flag bits.
type ForeignKeyRef struct {
	OtherTableDefPage page.Number
	OtherIndexNumber  int

	CascadeUpdates bool
	CascadeDeletes bool
	// SetNullOnDelete, when true, nulls the referencing columns instead
	// of deleting the referencing row (the NULL=2 flag).
	SetNullOnDelete bool
}

// Index is the logical, named object a table's users address (via
// Relationships, a cursor's index hint, or FK enforcement); it refers
// to its physical IndexData by DataNumber rather than embedding a
// pointer: two Indexes (say, a unique
// index and the primary key built on the same columns) can share one
// IndexData, and a table's set of Indexes needs to survive a TableDef
// round-trip without re-pointering.
type Index struct {
	Name       string
	Number     int
	DataNumber int
	Kind       Kind
	Unique     bool
	Required   bool

	ForeignKey *ForeignKeyRef
}
