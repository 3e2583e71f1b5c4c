package ldbx

// cursorFrame is one branch page on the path from root down to the current
// leaf, together with the index of the child currently being (or about to
// be) descended into. The stack's depth is bounded by the tree height, not
// by range width, so a scan's memory footprint doesn't depend on how many
// keys it visits.
type cursorFrame struct {
	page     PageID
	childIdx int
}

// Cursor implements the ordered, restartable range scan described in spec
// §4.2: seek descends from root pushing one frame per branch, landing on
// the leaf that would contain startKey; Next then walks the current leaf
// and, once exhausted, pops back up the stack to find the next subtree to
// descend into, pushing fresh frames on the way down.
type Cursor struct {
	pr       pageReader
	stack    []cursorFrame
	cells    []leafCell
	idx      int
	endKey   []byte // exclusive upper bound; nil means unbounded
	done     bool
}

// newCursor seeks to the first key >= startKey (or the very first key, if
// startKey is nil) and returns a cursor ready for Next. endKey, if non-nil,
// is an exclusive upper bound.
func newCursor(pr pageReader, root PageID, startKey, endKey []byte) (*Cursor, error) {
	c := &Cursor{pr: pr, endKey: endKey}
	if root == invalidPage {
		c.done = true
		return c, nil
	}

	cur := root
	for {
		buf, err := pr.read(cur, 0)
		if err != nil {
			return nil, err
		}
		switch pageKindOf(buf) {
		case kindLeaf:
			cells, _ := decodeLeaf(buf)
			idx, _ := searchLeaf(cells, startKey)
			c.cells = cells
			c.idx = idx
			return c, nil
		case kindBranch:
			firstChild, seps := decodeBranch(buf)
			childIdx := childForKey(seps, startKey)
			c.stack = append(c.stack, cursorFrame{page: cur, childIdx: childIdx})
			cur = childPageID(firstChild, seps, childIdx)
		default:
			return nil, wrapError(KindCorrupt, "unexpected page kind during range seek", nil)
		}
	}
}

// Next returns the next key/value pair in range, or ok=false once the scan
// is exhausted or has passed endKey.
func (c *Cursor) Next() (key, val []byte, ok bool, err error) {
	if c.done {
		return nil, nil, false, nil
	}

	for {
		if c.idx < len(c.cells) {
			cell := c.cells[c.idx]
			if c.endKey != nil && compareBytes(cell.key, c.endKey) >= 0 {
				c.done = true
				return nil, nil, false, nil
			}
			c.idx++
			return cell.key, cell.val, true, nil
		}

		more, err := c.climbAndDescend()
		if err != nil || !more {
			c.done = true
			return nil, nil, false, err
		}
	}
}

// climbAndDescend pops exhausted branch frames until it finds one with an
// unvisited child to its right, descends to that child's leftmost leaf,
// and loads it as the cursor's current leaf. Returns false once the stack
// empties without finding anywhere left to go, or an error if a page on the
// way fails to read or validate.
func (c *Cursor) climbAndDescend() (bool, error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		buf, err := c.pr.read(top.page, kindBranch)
		if err != nil {
			return false, err
		}
		firstChild, seps := decodeBranch(buf)
		nextChildIdx := top.childIdx + 1
		if nextChildIdx > len(seps) {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		top.childIdx = nextChildIdx
		cur := childPageID(firstChild, seps, nextChildIdx)

		for {
			buf, err := c.pr.read(cur, 0)
			if err != nil {
				return false, err
			}
			switch pageKindOf(buf) {
			case kindLeaf:
				cells, _ := decodeLeaf(buf)
				c.cells = cells
				c.idx = 0
				return true, nil
			case kindBranch:
				fc, seps := decodeBranch(buf)
				c.stack = append(c.stack, cursorFrame{page: cur, childIdx: 0})
				cur = childPageID(fc, seps, 0)
			default:
				return false, wrapError(KindCorrupt, "unexpected page kind during range scan", nil)
			}
		}
	}
	return false, nil
}
