package column

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jetdb/jetdb/jet/jeterr"
)

// AutoNumberKind distinguishes the four generator flavors.
type AutoNumberKind int

const (
	// AutoNumberLong is a monotonically increasing 32-bit counter
	// persisted on the owning table.
	AutoNumberLong AutoNumberKind = iota

	// AutoNumberGUID issues a random (v4) GUID per row.
	AutoNumberGUID

	// AutoNumberComplex issues a synthetic complex-value id, also
	// table-persisted, for columns backing a complex (multi-value)
	// type.
	AutoNumberComplex

	// AutoNumberUnsupported is a placeholder for generator kinds this
	// engine recognizes in the file format but declines to originate
	// values for.
	AutoNumberUnsupported
)

// Generator issues successive autonumber values for one column.
type Generator interface {
	Kind() AutoNumberKind
	Next() (interface{}, error)
}

// LongGenerator implements AutoNumberLong: a simple persisted counter.
// Seed should be loaded from the table definition page's stored "last
// long autonumber" field; it is the caller's job to persist Current
// after each Next call.
type LongGenerator struct {
	mu      sync.Mutex
	current int32
}

// NewLongGenerator seeds a counter at seed; the next call to Next
// returns seed+1.
func NewLongGenerator(seed int32) *LongGenerator {
	return &LongGenerator{current: seed}
}

func (g *LongGenerator) Kind() AutoNumberKind { return AutoNumberLong }

func (g *LongGenerator) Next() (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	return g.current, nil
}

// Current returns the most recently issued value without advancing the
// counter, for persisting back to the table definition page.
func (g *LongGenerator) Current() int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// GUIDGenerator implements AutoNumberGUID using RFC 4122 version-4
// (random) UUIDs via google/uuid.
type GUIDGenerator struct{}

func (GUIDGenerator) Kind() AutoNumberKind { return AutoNumberGUID }

func (GUIDGenerator) Next() (interface{}, error) {
	return uuid.New(), nil
}

// ComplexGenerator implements AutoNumberComplex: like LongGenerator, a
// persisted counter, but tagged with its own Kind so callers can route
// the issued id into a complex-type column's identity field rather than
// a plain LONG column.
type ComplexGenerator struct {
	mu      sync.Mutex
	current int32
}

// NewComplexGenerator seeds a counter at seed.
func NewComplexGenerator(seed int32) *ComplexGenerator {
	return &ComplexGenerator{current: seed}
}

func (g *ComplexGenerator) Kind() AutoNumberKind { return AutoNumberComplex }

func (g *ComplexGenerator) Next() (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	return g.current, nil
}

// Current returns the most recently issued value without advancing the
// counter, mirroring LongGenerator.Current.
func (g *ComplexGenerator) Current() int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// UnsupportedGenerator implements AutoNumberUnsupported: it recognizes
// the column's presence but refuses to originate a value, surfacing a
// typed Unsupported error instead of silently returning zero.
type UnsupportedGenerator struct{}

func (UnsupportedGenerator) Kind() AutoNumberKind { return AutoNumberUnsupported }

func (UnsupportedGenerator) Next() (interface{}, error) {
	return nil, jeterr.New(jeterr.Unsupported, "autonumber generator kind is not supported")
}

var (
	_ Generator = (*LongGenerator)(nil)
	_ Generator = GUIDGenerator{}
	_ Generator = (*ComplexGenerator)(nil)
	_ Generator = UnsupportedGenerator{}
)
