package index

import (
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/page"
)

// Entry is one (key, RowId) pair stored in the tree.
type Entry struct {
	Key []byte
	Row page.RowId
}

// pathStep records one level crossed while descending the tree: the
// page visited and the child index chosen (entryCount(page) meaning
// "the rightChild pointer"), so both Insert's upward propagation and
// EntryCursor's next/previous walk can resume from where a search left
// off - parent/child bookkeeping kept as a full stack to support
// arbitrary tree depth.
type pathStep struct {
	pn       page.Number
	childIdx int
}

// IndexData is the shared physical B-tree backing one or more logical
// Indexes.
type IndexData struct {
	RootPage    page.Number
	Descriptors []ColumnDescriptor
	Unique      bool

	channel *page.Channel
}

// NewIndexData allocates a fresh, empty IndexData rooted at a new leaf
// page.
func NewIndexData(channel *page.Channel, descriptors []ColumnDescriptor, unique bool) (*IndexData, error) {
	root, err := channel.AllocateNewPage(page.TypeLeafIndex)
	if err != nil {
		return nil, err
	}
	initNode(root, page.TypeLeafIndex, channel.PageSize())
	if err := channel.WritePage(root); err != nil {
		return nil, err
	}
	return &IndexData{RootPage: root.Number(), Descriptors: descriptors, Unique: unique, channel: channel}, nil
}

// LoadIndexData binds an IndexData to an already-existing root page, for
// a table opened from its TABLE_DEF (see jet/catalog).
func LoadIndexData(channel *page.Channel, rootPage page.Number, descriptors []ColumnDescriptor, unique bool) *IndexData {
	return &IndexData{RootPage: rootPage, Descriptors: descriptors, Unique: unique, channel: channel}
}

func (d *IndexData) pageSize() int { return d.channel.PageSize() }

// descend walks from the root to the leaf page that does, or would,
// contain (key, row), recording the path taken.
func (d *IndexData) descend(key []byte, row page.RowId) ([]pathStep, *page.Page, error) {
	var path []pathStep
	pn := d.RootPage
	for {
		p, err := d.channel.ReadPage(pn)
		if err != nil {
			return nil, nil, err
		}
		if p.Type() == page.TypeLeafIndex {
			return path, p, nil
		}
		if p.Type() != page.TypeIntermediateIndex {
			return nil, nil, jeterr.New(jeterr.FormatViolation, "page %d has unexpected type %s for an index node", pn, p.Type())
		}
		idx := searchSlot(p, key, row)
		path = append(path, pathStep{pn: pn, childIdx: idx})
		if idx >= entryCount(p) {
			pn = rightChild(p)
		} else {
			pn = childPageAt(p, idx)
		}
	}
}

// EncodeKey builds the full multi-column entry key for values.
func (d *IndexData) EncodeKey(values []interface{}) []byte {
	return EncodeEntryKey(d.Descriptors, values)
}

// ContainsKey reports whether any entry (of any RowId) has exactly key,
// used for unique-constraint checks and foreign-key existence checks.
func (d *IndexData) ContainsKey(key []byte) (bool, error) {
	_, leaf, err := d.descend(key, page.RowId{})
	if err != nil {
		return false, err
	}
	i := searchSlot(leaf, key, page.RowId{})
	if i >= entryCount(leaf) {
		return false, nil
	}
	ek, _ := entryCompoundAt(leaf, i)
	return compareBytes(ek, key) == 0, nil
}

// Insert adds values/row as a new entry. If the index
// is unique and key already has an entry, it returns an InvalidValue
// error instead of inserting.
func (d *IndexData) Insert(values []interface{}, row page.RowId) error {
	key := d.EncodeKey(values)
	if d.Unique {
		exists, err := d.ContainsKey(key)
		if err != nil {
			return err
		}
		if exists {
			return jeterr.New(jeterr.InvalidValue, "duplicate key for unique index")
		}
	}
	return d.insertEntry(key, row)
}

func (d *IndexData) insertEntry(key []byte, row page.RowId) error {
	path, leaf, err := d.descend(key, row)
	if err != nil {
		return err
	}
	i := searchSlot(leaf, key, row)
	eb := entryBytes(key, row)
	if err := insertEntryAt(leaf, i, eb); err == nil {
		return d.channel.WritePage(leaf)
	}
	rebuildPage(leaf, d.pageSize())
	i = searchSlot(leaf, key, row)
	if err := insertEntryAt(leaf, i, eb); err == nil {
		return d.channel.WritePage(leaf)
	}

	promoteKey, promoteRow, leftPageNum, err := d.splitLeaf(leaf, key, row)
	if err != nil {
		return err
	}
	return d.propagate(path, promoteKey, promoteRow, leftPageNum)
}

// splitLeaf splits a full leaf page (which is also about to receive
// (insertKey, insertRow)) into two: a newly allocated left sibling
// holding the lower half, and leaf itself rebuilt in place to hold the
// upper half (so every existing pointer to leaf's page number stays
// valid). It returns the separator (the left sibling's greatest entry)
// and the left sibling's page number, for the caller to insert into the
// parent.
func (d *IndexData) splitLeaf(leaf *page.Page, insertKey []byte, insertRow page.RowId) ([]byte, page.RowId, page.Number, error) {
	n := entryCount(leaf)
	combined := make([][]byte, 0, n+1)
	insPos := searchSlot(leaf, insertKey, insertRow)
	for i := 0; i < n; i++ {
		if i == insPos {
			combined = append(combined, entryBytes(insertKey, insertRow))
		}
		combined = append(combined, append([]byte(nil), entryAt(leaf, i)...))
	}
	if insPos == n {
		combined = append(combined, entryBytes(insertKey, insertRow))
	}

	mid := len(combined) / 2

	leftPage, err := d.channel.AllocateNewPage(page.TypeLeafIndex)
	if err != nil {
		return nil, page.RowId{}, 0, err
	}
	initNode(leftPage, page.TypeLeafIndex, d.pageSize())
	for i := 0; i < mid; i++ {
		if err := insertEntryAt(leftPage, i, combined[i]); err != nil {
			return nil, page.RowId{}, 0, err
		}
	}
	if err := d.channel.WritePage(leftPage); err != nil {
		return nil, page.RowId{}, 0, err
	}

	initNode(leaf, page.TypeLeafIndex, d.pageSize())
	for i, e := range combined[mid:] {
		if err := insertEntryAt(leaf, i, e); err != nil {
			return nil, page.RowId{}, 0, err
		}
	}
	if err := d.channel.WritePage(leaf); err != nil {
		return nil, page.RowId{}, 0, err
	}

	promoteKey, promoteRow := parseEntry(combined[mid-1])
	return promoteKey, promoteRow, leftPage.Number(), nil
}

// splitIntermediate is splitLeaf's analogue for a full intermediate
// page, additionally carrying forward the rightChild pointer: the
// median entry's child becomes the new left page's rightChild (it holds
// every key between the left page's remaining entries and the
// promoted separator), and the reused page's rightChild is untouched.
func (d *IndexData) splitIntermediate(parent *page.Page, insertIdx int, newEntryBytes []byte) ([]byte, page.RowId, page.Number, error) {
	n := entryCount(parent)
	combined := make([][]byte, 0, n+1)
	for i := 0; i < n; i++ {
		if i == insertIdx {
			combined = append(combined, newEntryBytes)
		}
		combined = append(combined, append([]byte(nil), entryAt(parent, i)...))
	}
	if insertIdx == n {
		combined = append(combined, newEntryBytes)
	}
	oldRightChild := rightChild(parent)

	mid := len(combined) / 2

	leftPage, err := d.channel.AllocateNewPage(page.TypeIntermediateIndex)
	if err != nil {
		return nil, page.RowId{}, 0, err
	}
	initNode(leftPage, page.TypeIntermediateIndex, d.pageSize())
	for i := 0; i < mid; i++ {
		if err := insertEntryAt(leftPage, i, combined[i]); err != nil {
			return nil, page.RowId{}, 0, err
		}
	}
	midKey, midRow, midChild := parseInteriorEntry(combined[mid])
	setRightChild(leftPage, midChild)
	if err := d.channel.WritePage(leftPage); err != nil {
		return nil, page.RowId{}, 0, err
	}

	initNode(parent, page.TypeIntermediateIndex, d.pageSize())
	for i, e := range combined[mid+1:] {
		if err := insertEntryAt(parent, i, e); err != nil {
			return nil, page.RowId{}, 0, err
		}
	}
	setRightChild(parent, oldRightChild)
	if err := d.channel.WritePage(parent); err != nil {
		return nil, page.RowId{}, 0, err
	}

	return midKey, midRow, leftPage.Number(), nil
}

// propagate inserts a new (key, row) -> childPage separator into the
// lowest unresolved ancestor in path, splitting ancestors up the chain
// as needed, and finally installing a new root if path is exhausted.
func (d *IndexData) propagate(path []pathStep, key []byte, row page.RowId, childPage page.Number) error {
	for len(path) > 0 {
		last := path[len(path)-1]
		path = path[:len(path)-1]

		parent, err := d.channel.ReadPage(last.pn)
		if err != nil {
			return err
		}
		eb := interiorEntryBytes(key, row, childPage)
		idx := searchSlot(parent, key, row)
		if err := insertEntryAt(parent, idx, eb); err == nil {
			return d.channel.WritePage(parent)
		}
		rebuildPage(parent, d.pageSize())
		idx = searchSlot(parent, key, row)
		if err := insertEntryAt(parent, idx, eb); err == nil {
			return d.channel.WritePage(parent)
		}

		newKey, newRow, leftPageNum, err := d.splitIntermediate(parent, idx, eb)
		if err != nil {
			return err
		}
		key, row, childPage = newKey, newRow, leftPageNum
	}
	return d.newRoot(key, row, childPage)
}

// newRoot installs a fresh intermediate root above the current root:
// leftPageNum (holding entries <= key) becomes the new root's sole
// entry, and the old root (now logically the "right" subtree) becomes
// its rightChild.
func (d *IndexData) newRoot(key []byte, row page.RowId, leftPageNum page.Number) error {
	root, err := d.channel.AllocateNewPage(page.TypeIntermediateIndex)
	if err != nil {
		return err
	}
	initNode(root, page.TypeIntermediateIndex, d.pageSize())
	if err := insertEntryAt(root, 0, interiorEntryBytes(key, row, leftPageNum)); err != nil {
		return err
	}
	setRightChild(root, d.RootPage)
	if err := d.channel.WritePage(root); err != nil {
		return err
	}
	d.RootPage = root.Number()
	return nil
}

// Delete removes the entry matching values/row exactly. Freed space is
// reclaimed lazily (rebuildPage on the next insert that needs it); no
// rebalancing/merging of sparse pages is performed, the same
// simplification jet/table's row deletion makes (a deleted slot is
// tombstoned, not immediately compacted).
func (d *IndexData) Delete(values []interface{}, row page.RowId) error {
	key := d.EncodeKey(values)
	_, leaf, err := d.descend(key, row)
	if err != nil {
		return err
	}
	i := searchSlot(leaf, key, row)
	if i >= entryCount(leaf) {
		return jeterr.New(jeterr.NotFound, "index entry not found")
	}
	ek, er := entryCompoundAt(leaf, i)
	if compareEntry(ek, er, key, row) != 0 {
		return jeterr.New(jeterr.NotFound, "index entry not found")
	}
	removeEntryAt(leaf, i)
	return d.channel.WritePage(leaf)
}

// Count walks the whole tree and returns the number of live entries and
// the number of distinct keys among them (the unique-entry count).
func (d *IndexData) Count() (entries int, distinctKeys int, err error) {
	cur := d.NewEntryCursor()
	e, ok, err := cur.First()
	if err != nil {
		return 0, 0, err
	}
	var lastKey []byte
	haveLast := false
	for ok {
		entries++
		if !haveLast || compareBytes(lastKey, e.Key) != 0 {
			distinctKeys++
			lastKey = e.Key
			haveLast = true
		}
		e, ok, err = cur.MoveNextEntry()
		if err != nil {
			return 0, 0, err
		}
	}
	return entries, distinctKeys, nil
}
