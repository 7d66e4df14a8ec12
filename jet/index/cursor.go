package index

import "github.com/jetdb/jetdb/jet/page"

// EntryCursor walks an IndexData's entries in key order. It keeps a
// full ancestor stack since the on-disk B-tree can be deeper than two
// levels; advanceStack / retreatStack pop through as many
// levels as a leaf boundary requires.
type EntryCursor struct {
	data *IndexData

	stack       []pathStep
	leafPage    page.Number
	leafSlot    int
	beforeFirst bool
	afterLast   bool
}

// NewEntryCursor returns a cursor positioned before the first entry.
func (d *IndexData) NewEntryCursor() *EntryCursor {
	return &EntryCursor{data: d, beforeFirst: true}
}

func (c *EntryCursor) leaf() (*page.Page, error) {
	return c.data.channel.ReadPage(c.leafPage)
}

// descendLeftmostAppend walks pn down to its leftmost leaf, appending the
// frames crossed to c.stack (the caller's existing ancestor frames, if
// any, are kept - used when resuming a walk from a frame advanceStack
// just repositioned) and setting c.leafPage.
func (c *EntryCursor) descendLeftmostAppend(pn page.Number) error {
	for {
		p, err := c.data.channel.ReadPage(pn)
		if err != nil {
			return err
		}
		if p.Type() == page.TypeLeafIndex {
			c.leafPage = pn
			return nil
		}
		c.stack = append(c.stack, pathStep{pn: pn, childIdx: 0})
		if entryCount(p) == 0 {
			pn = rightChild(p)
		} else {
			pn = childPageAt(p, 0)
		}
	}
}

// descendRightmostAppend is descendLeftmostAppend's mirror, always
// following the rightChild pointer, used by Last()/MovePreviousEntry.
func (c *EntryCursor) descendRightmostAppend(pn page.Number) error {
	for {
		p, err := c.data.channel.ReadPage(pn)
		if err != nil {
			return err
		}
		if p.Type() == page.TypeLeafIndex {
			c.leafPage = pn
			return nil
		}
		n := entryCount(p)
		c.stack = append(c.stack, pathStep{pn: pn, childIdx: n})
		pn = rightChild(p)
	}
}

// descendLeftmostFrom resets the stack and descends from pn, used when
// starting a fresh walk at the tree root (First, FindFirstByEntry).
func (c *EntryCursor) descendLeftmostFrom(pn page.Number) error {
	c.stack = c.stack[:0]
	return c.descendLeftmostAppend(pn)
}

// descendRightmostFrom is descendLeftmostFrom's mirror for Last.
func (c *EntryCursor) descendRightmostFrom(pn page.Number) error {
	c.stack = c.stack[:0]
	return c.descendRightmostAppend(pn)
}

func childOf(p *page.Page, childIdx int) page.Number {
	if childIdx >= entryCount(p) {
		return rightChild(p)
	}
	return childPageAt(p, childIdx)
}

// advanceStack moves the stack to the next child to the right of the one
// currently open, popping exhausted ancestors, and returns the page
// number to descend leftmost from. ok is false once the whole tree is
// exhausted.
func (c *EntryCursor) advanceStack() (page.Number, bool, error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		p, err := c.data.channel.ReadPage(top.pn)
		if err != nil {
			return 0, false, err
		}
		n := entryCount(p)
		if top.childIdx < n {
			top.childIdx++
			return childOf(p, top.childIdx), true, nil
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return 0, false, nil
}

// retreatStack is advanceStack's mirror for moving left/backward.
func (c *EntryCursor) retreatStack() (page.Number, bool, error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.childIdx > 0 {
			top.childIdx--
			p, err := c.data.channel.ReadPage(top.pn)
			if err != nil {
				return 0, false, err
			}
			return childOf(p, top.childIdx), true, nil
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return 0, false, nil
}

func entryAtSlot(p *page.Page, i int) *Entry {
	key, row := entryCompoundAt(p, i)
	return &Entry{Key: append([]byte(nil), key...), Row: row}
}

// First positions the cursor on the index's lowest-keyed entry.
func (c *EntryCursor) First() (*Entry, bool, error) {
	if err := c.descendLeftmostFrom(c.data.RootPage); err != nil {
		return nil, false, err
	}
	c.beforeFirst, c.afterLast = false, false
	p, err := c.leaf()
	if err != nil {
		return nil, false, err
	}
	if entryCount(p) == 0 {
		c.afterLast = true
		return nil, false, nil
	}
	c.leafSlot = 0
	return entryAtSlot(p, 0), true, nil
}

// Last positions the cursor on the index's highest-keyed entry.
func (c *EntryCursor) Last() (*Entry, bool, error) {
	if err := c.descendRightmostFrom(c.data.RootPage); err != nil {
		return nil, false, err
	}
	c.beforeFirst, c.afterLast = false, false
	p, err := c.leaf()
	if err != nil {
		return nil, false, err
	}
	n := entryCount(p)
	if n == 0 {
		c.beforeFirst = true
		return nil, false, nil
	}
	c.leafSlot = n - 1
	return entryAtSlot(p, c.leafSlot), true, nil
}

// FindFirstByEntry positions the cursor on the first entry whose key is
// >= the key built from values (a prefix of the index's columns is
// allowed; missing trailing columns compare as their encoding's
// smallest value, matching a partial-key index seek).
func (c *EntryCursor) FindFirstByEntry(values []interface{}) (*Entry, bool, error) {
	descriptors := c.data.Descriptors
	if len(values) < len(descriptors) {
		descriptors = descriptors[:len(values)]
	}
	key := EncodeEntryKey(descriptors, values)
	return c.findFirstByKey(key, page.RowId{})
}

func (c *EntryCursor) findFirstByKey(key []byte, row page.RowId) (*Entry, bool, error) {
	path, leaf, err := c.data.descend(key, row)
	if err != nil {
		return nil, false, err
	}
	c.stack = path
	c.leafPage = leaf.Number()
	c.beforeFirst, c.afterLast = false, false

	i := searchSlot(leaf, key, row)
	if i < entryCount(leaf) {
		c.leafSlot = i
		return entryAtSlot(leaf, i), true, nil
	}
	// Lower bound falls past the end of this leaf: the first matching
	// entry, if any, is the first entry of the next leaf.
	nextPn, ok, err := c.advanceStack()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.afterLast = true
		return nil, false, nil
	}
	if err := c.descendLeftmostAppend(nextPn); err != nil {
		return nil, false, err
	}
	p, err := c.leaf()
	if err != nil {
		return nil, false, err
	}
	if entryCount(p) == 0 {
		c.afterLast = true
		return nil, false, nil
	}
	c.leafSlot = 0
	return entryAtSlot(p, 0), true, nil
}

// SeekEntry positions the cursor at the first entry >= (the key built
// from values, row), for resuming a walk at an exact entry.
func (c *EntryCursor) SeekEntry(values []interface{}, row page.RowId) (*Entry, bool, error) {
	return c.findFirstByKey(c.data.EncodeKey(values), row)
}

// MoveNextEntry advances the cursor one entry forward and returns it.
func (c *EntryCursor) MoveNextEntry() (*Entry, bool, error) {
	if c.beforeFirst {
		return c.First()
	}
	if c.afterLast {
		return nil, false, nil
	}
	p, err := c.leaf()
	if err != nil {
		return nil, false, err
	}
	c.leafSlot++
	if c.leafSlot < entryCount(p) {
		return entryAtSlot(p, c.leafSlot), true, nil
	}

	nextPn, ok, err := c.advanceStack()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.afterLast = true
		return nil, false, nil
	}
	if err := c.descendLeftmostAppend(nextPn); err != nil {
		return nil, false, err
	}
	p2, err := c.leaf()
	if err != nil {
		return nil, false, err
	}
	if entryCount(p2) == 0 {
		c.afterLast = true
		return nil, false, nil
	}
	c.leafSlot = 0
	return entryAtSlot(p2, 0), true, nil
}

// MovePreviousEntry retreats the cursor one entry backward and returns
// it.
func (c *EntryCursor) MovePreviousEntry() (*Entry, bool, error) {
	if c.afterLast {
		return c.Last()
	}
	if c.beforeFirst {
		return nil, false, nil
	}
	if c.leafSlot > 0 {
		c.leafSlot--
		p, err := c.leaf()
		if err != nil {
			return nil, false, err
		}
		return entryAtSlot(p, c.leafSlot), true, nil
	}

	prevPn, ok, err := c.retreatStack()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.beforeFirst = true
		return nil, false, nil
	}
	if err := c.descendRightmostAppend(prevPn); err != nil {
		return nil, false, err
	}
	p2, err := c.leaf()
	if err != nil {
		return nil, false, err
	}
	n := entryCount(p2)
	if n == 0 {
		c.beforeFirst = true
		return nil, false, nil
	}
	c.leafSlot = n - 1
	return entryAtSlot(p2, c.leafSlot), true, nil
}
