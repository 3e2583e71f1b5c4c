package ldbx

import "encoding/binary"

// leafCellHeaderSize is the per-cell overhead: a 4-byte key length and a
// 4-byte value length, both preceding the raw bytes.
const leafCellHeaderSize = 8

// leafHeaderSize is the leaf payload's own header: cell count followed by
// an optional right-sibling hint. The hint is written on split (left ->
// right) but, per spec, a reader must never trust it — the cursor stack is
// the only authoritative traversal order.
const leafHeaderSize = 2 + 8

type leafCell struct {
	key []byte
	val []byte
}

func (c leafCell) size() int { return leafCellHeaderSize + len(c.key) + len(c.val) }

// encodeLeaf renders a full leaf page (no cells pointer-aliases the input;
// callers own their own copies going forward since this is a dirty page).
func encodeLeaf(buf []byte, id PageID, txnID uint64, cells []leafCell, rightSibling PageID) {
	p := buf[commonHeaderSize:]
	binary.LittleEndian.PutUint16(p[0:2], uint16(len(cells)))
	binary.LittleEndian.PutUint64(p[2:10], uint64(rightSibling))
	off := leafHeaderSize
	for _, c := range cells {
		binary.LittleEndian.PutUint32(p[off:off+4], uint32(len(c.key)))
		binary.LittleEndian.PutUint32(p[off+4:off+8], uint32(len(c.val)))
		off += leafCellHeaderSize
		copy(p[off:], c.key)
		off += len(c.key)
		copy(p[off:], c.val)
		off += len(c.val)
	}
	finishPage(buf, kindLeaf, id, txnID, off)
}

func decodeLeaf(buf []byte) (cells []leafCell, rightSibling PageID) {
	p := buf[commonHeaderSize:]
	n := int(binary.LittleEndian.Uint16(p[0:2]))
	rightSibling = PageID(binary.LittleEndian.Uint64(p[2:10]))
	cells = make([]leafCell, n)
	off := leafHeaderSize
	for i := 0; i < n; i++ {
		klen := int(binary.LittleEndian.Uint32(p[off : off+4]))
		vlen := int(binary.LittleEndian.Uint32(p[off+4 : off+8]))
		off += leafCellHeaderSize
		key := make([]byte, klen)
		copy(key, p[off:off+klen])
		off += klen
		val := make([]byte, vlen)
		copy(val, p[off:off+vlen])
		off += vlen
		cells[i] = leafCell{key: key, val: val}
	}
	return cells, rightSibling
}

// searchLeaf returns the index of key if present (found=true), or the
// index it would be inserted at to keep cells sorted (found=false).
func searchLeaf(cells []leafCell, key []byte) (idx int, found bool) {
	lo, hi := 0, len(cells)
	for lo < hi {
		mid := (lo + hi) / 2
		c := compareBytes(cells[mid].key, key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// branchHeaderSize is the branch payload's own header: separator count.
// The tree has count+1 children, the first of which is stored immediately
// after the header.
const branchHeaderSize = 2
const branchChildSize = 8
const branchSepHeaderSize = 4 // separator key length prefix

type branchSep struct {
	key   []byte
	child PageID // child to the RIGHT of this separator
}

func (s branchSep) size() int { return branchSepHeaderSize + len(s.key) + branchChildSize }

func encodeBranch(buf []byte, id PageID, txnID uint64, firstChild PageID, seps []branchSep) {
	p := buf[commonHeaderSize:]
	binary.LittleEndian.PutUint16(p[0:2], uint16(len(seps)))
	off := branchHeaderSize
	binary.LittleEndian.PutUint64(p[off:off+8], uint64(firstChild))
	off += branchChildSize
	for _, s := range seps {
		binary.LittleEndian.PutUint32(p[off:off+4], uint32(len(s.key)))
		off += branchSepHeaderSize
		copy(p[off:], s.key)
		off += len(s.key)
		binary.LittleEndian.PutUint64(p[off:off+8], uint64(s.child))
		off += branchChildSize
	}
	finishPage(buf, kindBranch, id, txnID, off)
}

func decodeBranch(buf []byte) (firstChild PageID, seps []branchSep) {
	p := buf[commonHeaderSize:]
	n := int(binary.LittleEndian.Uint16(p[0:2]))
	off := branchHeaderSize
	firstChild = PageID(binary.LittleEndian.Uint64(p[off : off+8]))
	off += branchChildSize
	seps = make([]branchSep, n)
	for i := 0; i < n; i++ {
		klen := int(binary.LittleEndian.Uint32(p[off : off+4]))
		off += branchSepHeaderSize
		key := make([]byte, klen)
		copy(key, p[off:off+klen])
		off += klen
		child := PageID(binary.LittleEndian.Uint64(p[off : off+8]))
		off += branchChildSize
		seps[i] = branchSep{key: key, child: child}
	}
	return firstChild, seps
}

// childForKey returns the index of the child subtree that can contain key:
// 0 (firstChild) if key is smaller than every separator, otherwise the
// index (1-based into the conceptual child[0..n] array, matching
// seps[i-1].child) of the first separator greater than key.
//
// Invariant (spec §3): for all keys k in subtree child[i], sep[i-1] <= k <
// sep[i]. So the child to descend into is the first one whose *following*
// separator is > key, i.e. we binary search for the first sep > key and
// take the child just before it.
func childForKey(seps []branchSep, key []byte) (childIdx int) {
	lo, hi := 0, len(seps)
	for lo < hi {
		mid := (lo + hi) / 2
		if compareBytes(seps[mid].key, key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// childPageID resolves childForKey's index to an actual page id, given the
// branch's firstChild and separator list.
func childPageID(firstChild PageID, seps []branchSep, idx int) PageID {
	if idx == 0 {
		return firstChild
	}
	return seps[idx-1].child
}

// compareBytes orders keys as unsigned byte sequences: lexicographic, with
// a shorter prefix sorting before a longer string that extends it.
func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// computeSplit implements the byte-size split rule (spec §4.2): scan cells
// left to right, split where the left half first exceeds usable/2 — unless
// the cell at insertedPos is itself larger than usable/2, in which case
// search instead for the smallest split point whose right half (carrying
// the oversized cell) fits. Either way, the chosen index is nudged to the
// nearest point where *both* halves actually fit within usable; if none
// exists, ok is false and the caller must reject the insert.
func computeSplit(sizes []int, usable int, insertedPos int) (idx int, ok bool) {
	n := len(sizes)
	if n < 2 {
		return 0, false
	}
	prefix := make([]int, n+1)
	for i, s := range sizes {
		prefix[i+1] = prefix[i] + s
	}
	total := prefix[n]

	fits := func(i int) bool {
		return i > 0 && i < n && prefix[i] <= usable && total-prefix[i] <= usable
	}

	var start int
	if sizes[insertedPos] > usable/2 {
		start = n - 1
		for i := 1; i < n; i++ {
			if total-prefix[i] <= usable {
				start = i
				break
			}
		}
	} else {
		start = n - 1
		for i := 1; i < n; i++ {
			if prefix[i] > usable/2 {
				start = i
				break
			}
		}
	}

	for d := 0; d < n; d++ {
		if i := start - d; i > 0 && fits(i) {
			return i, true
		}
		if i := start + d; i < n && fits(i) {
			return i, true
		}
	}
	return 0, false
}
