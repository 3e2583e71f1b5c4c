package ldbx

// pageReader is the minimal read path the tree needs: a reader snapshot's
// mmap view, the pager's own direct reads, or a writer's working set (which
// must see its own not-yet-committed pages). get and range scans only ever
// need this half of the contract.
type pageReader interface {
	read(id PageID, want pageKind) ([]byte, error)
}

// treeWriter is the write path: allocate a fresh page id, stage a fully
// encoded page into the transaction's working set, and retire an old page
// id into the pending-free list. Nothing here touches disk — that happens
// only at commit, so an aborted write transaction costs nothing beyond the
// memory it allocated.
type treeWriter interface {
	pageReader
	allocate() PageID
	putDirty(id PageID, buf []byte)
	free(id PageID)
	txnID() uint64
	pageSize() int
}

// btreeGet walks from root to a leaf and returns the value for key, if any.
// It never allocates or mutates; it works equally against a read snapshot
// or a writer's in-progress view.
func btreeGet(pr pageReader, root PageID, key []byte) ([]byte, bool, error) {
	if root == invalidPage {
		return nil, false, nil
	}
	cur := root
	for {
		buf, err := pr.read(cur, 0)
		if err != nil {
			return nil, false, err
		}
		switch pageKindOf(buf) {
		case kindLeaf:
			cells, _ := decodeLeaf(buf)
			idx, found := searchLeaf(cells, key)
			if !found {
				return nil, false, nil
			}
			return cells[idx].val, true, nil
		case kindBranch:
			firstChild, seps := decodeBranch(buf)
			idx := childForKey(seps, key)
			cur = childPageID(firstChild, seps, idx)
		default:
			return nil, false, wrapError(KindCorrupt, "unexpected page kind during get", nil)
		}
	}
}

// splitResult carries a promoted separator and the new right sibling up to
// the caller one level higher, when a page overflowed and had to split.
type splitResult struct {
	sepKey []byte
	right  PageID
}

// btreeInsert inserts or overwrites key/val starting from root, returning
// the new root. Every page on the root-to-leaf path is cloned (path copy):
// the old pages are handed to w.free and never mutated.
func btreeInsert(w treeWriter, root PageID, key, val []byte) (PageID, error) {
	if root == invalidPage {
		cell := leafCell{key: key, val: val}
		usable := w.pageSize() - commonHeaderSize - leafHeaderSize
		if cell.size() > usable {
			return invalidPage, newError(KindValueTooLarge, "key/value pair exceeds a single page")
		}
		id := w.allocate()
		buf := make([]byte, w.pageSize())
		encodeLeaf(buf, id, w.txnID(), []leafCell{cell}, invalidPage)
		w.putDirty(id, buf)
		return id, nil
	}

	newRoot, split, err := insertRec(w, root, key, val)
	if err != nil {
		return invalidPage, err
	}
	if split == nil {
		return newRoot, nil
	}

	newRootID := w.allocate()
	buf := make([]byte, w.pageSize())
	encodeBranch(buf, newRootID, w.txnID(), newRoot, []branchSep{{key: split.sepKey, child: split.right}})
	w.putDirty(newRootID, buf)
	return newRootID, nil
}

func insertRec(w treeWriter, id PageID, key, val []byte) (newID PageID, split *splitResult, err error) {
	buf, err := w.read(id, 0)
	if err != nil {
		return invalidPage, nil, err
	}

	switch pageKindOf(buf) {
	case kindLeaf:
		return insertLeaf(w, id, buf, key, val)
	case kindBranch:
		return insertBranch(w, id, buf, key, val)
	default:
		return invalidPage, nil, wrapError(KindCorrupt, "unexpected page kind during insert", nil)
	}
}

func insertLeaf(w treeWriter, id PageID, buf []byte, key, val []byte) (PageID, *splitResult, error) {
	cells, rightSibling := decodeLeaf(buf)
	idx, found := searchLeaf(cells, key)
	if found {
		cells[idx] = leafCell{key: key, val: val}
	} else {
		cells = append(cells, leafCell{})
		copy(cells[idx+1:], cells[idx:])
		cells[idx] = leafCell{key: key, val: val}
	}

	usable := w.pageSize() - commonHeaderSize - leafHeaderSize
	total := 0
	sizes := make([]int, len(cells))
	for i, c := range cells {
		sizes[i] = c.size()
		total += sizes[i]
	}

	if total <= usable {
		newID := w.allocate()
		out := make([]byte, w.pageSize())
		encodeLeaf(out, newID, w.txnID(), cells, rightSibling)
		w.putDirty(newID, out)
		w.free(id)
		return newID, nil, nil
	}

	splitIdx, ok := computeSplit(sizes, usable, idx)
	if !ok {
		return invalidPage, nil, newError(KindValueTooLarge, "key/value pair too large to fit after split")
	}

	leftID := w.allocate()
	rightID := w.allocate()

	leftBuf := make([]byte, w.pageSize())
	encodeLeaf(leftBuf, leftID, w.txnID(), cells[:splitIdx], rightID)
	w.putDirty(leftID, leftBuf)

	rightBuf := make([]byte, w.pageSize())
	encodeLeaf(rightBuf, rightID, w.txnID(), cells[splitIdx:], rightSibling)
	w.putDirty(rightID, rightBuf)

	w.free(id)

	return leftID, &splitResult{sepKey: cells[splitIdx].key, right: rightID}, nil
}

func insertBranch(w treeWriter, id PageID, buf []byte, key, val []byte) (PageID, *splitResult, error) {
	firstChild, seps := decodeBranch(buf)
	idx := childForKey(seps, key)
	childID := childPageID(firstChild, seps, idx)

	newChildID, childSplit, err := insertRec(w, childID, key, val)
	if err != nil {
		return invalidPage, nil, err
	}

	newFirstChild := firstChild
	newSeps := make([]branchSep, len(seps))
	copy(newSeps, seps)
	if idx == 0 {
		newFirstChild = newChildID
	} else {
		newSeps[idx-1].child = newChildID
	}

	if childSplit != nil {
		newSeps = append(newSeps, branchSep{})
		copy(newSeps[idx+1:], newSeps[idx:])
		newSeps[idx] = branchSep{key: childSplit.sepKey, child: childSplit.right}
	}

	usable := w.pageSize() - commonHeaderSize - branchHeaderSize - branchChildSize
	total := 0
	sizes := make([]int, len(newSeps))
	for i, s := range newSeps {
		sizes[i] = s.size()
		total += sizes[i]
	}

	if total <= usable {
		newID := w.allocate()
		out := make([]byte, w.pageSize())
		encodeBranch(out, newID, w.txnID(), newFirstChild, newSeps)
		w.putDirty(newID, out)
		w.free(id)
		return newID, nil, nil
	}

	// Overflow can only happen immediately after inserting a new separator,
	// so idx is the position of the entry that pushed this page over.
	splitIdx, ok := computeSplit(sizes, usable, idx)
	if !ok {
		return invalidPage, nil, newError(KindValueTooLarge, "separator too large to fit after split")
	}

	promoted := newSeps[splitIdx]
	leftSeps := newSeps[:splitIdx]
	rightSeps := newSeps[splitIdx+1:]

	leftID := w.allocate()
	leftBuf := make([]byte, w.pageSize())
	encodeBranch(leftBuf, leftID, w.txnID(), newFirstChild, leftSeps)
	w.putDirty(leftID, leftBuf)

	rightID := w.allocate()
	rightBuf := make([]byte, w.pageSize())
	encodeBranch(rightBuf, rightID, w.txnID(), promoted.child, rightSeps)
	w.putDirty(rightID, rightBuf)

	w.free(id)

	return leftID, &splitResult{sepKey: promoted.key, right: rightID}, nil
}

// btreeDelete removes key if present, returning the new root and whether
// anything was actually removed. Matching spec's choice not to merge
// underfull nodes, a leaf that empties out is simply left sparse rather
// than rebalanced with a sibling.
func btreeDelete(w treeWriter, root PageID, key []byte) (PageID, bool, error) {
	if root == invalidPage {
		return root, false, nil
	}
	return deleteRec(w, root, key)
}

func deleteRec(w treeWriter, id PageID, key []byte) (PageID, bool, error) {
	buf, err := w.read(id, 0)
	if err != nil {
		return invalidPage, false, err
	}

	switch pageKindOf(buf) {
	case kindLeaf:
		cells, rightSibling := decodeLeaf(buf)
		idx, found := searchLeaf(cells, key)
		if !found {
			return id, false, nil
		}
		cells = append(cells[:idx], cells[idx+1:]...)
		newID := w.allocate()
		out := make([]byte, w.pageSize())
		encodeLeaf(out, newID, w.txnID(), cells, rightSibling)
		w.putDirty(newID, out)
		w.free(id)
		return newID, true, nil

	case kindBranch:
		firstChild, seps := decodeBranch(buf)
		idx := childForKey(seps, key)
		childID := childPageID(firstChild, seps, idx)

		newChildID, existed, err := deleteRec(w, childID, key)
		if err != nil {
			return invalidPage, false, err
		}
		if !existed {
			return id, false, nil
		}

		newFirstChild := firstChild
		newSeps := make([]branchSep, len(seps))
		copy(newSeps, seps)
		if idx == 0 {
			newFirstChild = newChildID
		} else {
			newSeps[idx-1].child = newChildID
		}

		newID := w.allocate()
		out := make([]byte, w.pageSize())
		encodeBranch(out, newID, w.txnID(), newFirstChild, newSeps)
		w.putDirty(newID, out)
		w.free(id)
		return newID, true, nil

	default:
		return invalidPage, false, wrapError(KindCorrupt, "unexpected page kind during delete", nil)
	}
}
