package ldbx

import (
	"bytes"
	"testing"
)

func TestLeafEncodeDecodeRoundTrip(t *testing.T) {
	cells := []leafCell{
		{key: []byte("a"), val: []byte("1")},
		{key: []byte("bb"), val: []byte("22")},
		{key: []byte("ccc"), val: []byte("333")},
	}
	buf := make([]byte, 4096)
	encodeLeaf(buf, 7, 3, cells, PageID(9))

	if _, err := verifyPage(buf, 7, kindLeaf); err != nil {
		t.Fatalf("verifyPage: %v", err)
	}

	got, rightSibling := decodeLeaf(buf)
	if rightSibling != 9 {
		t.Fatalf("rightSibling = %d, want 9", rightSibling)
	}
	if len(got) != len(cells) {
		t.Fatalf("got %d cells, want %d", len(got), len(cells))
	}
	for i := range cells {
		if !bytes.Equal(got[i].key, cells[i].key) || !bytes.Equal(got[i].val, cells[i].val) {
			t.Fatalf("cell %d = %+v, want %+v", i, got[i], cells[i])
		}
	}
}

func TestSearchLeaf(t *testing.T) {
	cells := []leafCell{
		{key: []byte("b")},
		{key: []byte("d")},
		{key: []byte("f")},
	}
	cases := []struct {
		key   string
		idx   int
		found bool
	}{
		{"a", 0, false},
		{"b", 0, true},
		{"c", 1, false},
		{"d", 1, true},
		{"g", 3, false},
	}
	for _, c := range cases {
		idx, found := searchLeaf(cells, []byte(c.key))
		if idx != c.idx || found != c.found {
			t.Errorf("searchLeaf(%q) = (%d, %v), want (%d, %v)", c.key, idx, found, c.idx, c.found)
		}
	}
}

func TestBranchEncodeDecodeRoundTrip(t *testing.T) {
	seps := []branchSep{
		{key: []byte("m"), child: PageID(20)},
		{key: []byte("t"), child: PageID(30)},
	}
	buf := make([]byte, 4096)
	encodeBranch(buf, 5, 2, PageID(10), seps)

	if _, err := verifyPage(buf, 5, kindBranch); err != nil {
		t.Fatalf("verifyPage: %v", err)
	}

	firstChild, got := decodeBranch(buf)
	if firstChild != 10 {
		t.Fatalf("firstChild = %d, want 10", firstChild)
	}
	if len(got) != 2 || !bytes.Equal(got[0].key, seps[0].key) || got[1].child != seps[1].child {
		t.Fatalf("seps = %+v, want %+v", got, seps)
	}
}

func TestChildForKey(t *testing.T) {
	seps := []branchSep{{key: []byte("m")}, {key: []byte("t")}}
	cases := []struct {
		key  string
		want int
	}{
		{"a", 0},
		{"m", 1},
		{"n", 1},
		{"t", 2},
		{"z", 2},
	}
	for _, c := range cases {
		if got := childForKey(seps, []byte(c.key)); got != c.want {
			t.Errorf("childForKey(%q) = %d, want %d", c.key, got, c.want)
		}
	}
}

func TestComputeSplitEvenSizes(t *testing.T) {
	sizes := make([]int, 10)
	for i := range sizes {
		sizes[i] = 100
	}
	idx, ok := computeSplit(sizes, 550, 0)
	if !ok {
		t.Fatal("expected a valid split")
	}
	if idx < 1 || idx >= len(sizes) {
		t.Fatalf("split index %d out of range", idx)
	}
	left, right := 0, 0
	for i, s := range sizes {
		if i < idx {
			left += s
		} else {
			right += s
		}
	}
	if left > 550 || right > 550 {
		t.Fatalf("split halves don't fit: left=%d right=%d usable=550", left, right)
	}
}

func TestComputeSplitOversizedCell(t *testing.T) {
	sizes := []int{10, 10, 400, 10, 10}
	idx, ok := computeSplit(sizes, 420, 2)
	if !ok {
		t.Fatal("expected a valid split with both halves, including the oversized cell's, fitting")
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	left, right := 0, 0
	for i, s := range sizes {
		if i < idx {
			left += s
		} else {
			right += s
		}
	}
	if left > 420 || right > 420 {
		t.Fatalf("split halves don't fit: left=%d right=%d (total=%d)", left, right, total)
	}
}

func TestComputeSplitImpossible(t *testing.T) {
	sizes := []int{10, 5000}
	if _, ok := computeSplit(sizes, 100, 1); ok {
		t.Fatal("expected split to be rejected when no arrangement fits")
	}
}

func TestCompareBytes(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"a", "a", 0},
		{"a", "b", -1},
		{"b", "a", 1},
		{"ab", "a", 1},
		{"a", "ab", -1},
	}
	for _, c := range cases {
		got := compareBytes([]byte(c.a), []byte(c.b))
		if sign(got) != sign(c.want) {
			t.Errorf("compareBytes(%q, %q) = %d, want sign %d", c.a, c.b, got, c.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
