package ldbx

import (
	"fmt"
	"testing"
)

// memTreeWriter is a treeWriter test double that never touches disk: pages
// live in a plain map keyed by a locally incrementing id. It lets the
// B+tree algorithms be exercised without the pager/freelist machinery
// underneath.
type memTreeWriter struct {
	pages  map[PageID][]byte
	nextID PageID
	txn    uint64
	psize  int
}

func newMemTreeWriter(pageSize int) *memTreeWriter {
	return &memTreeWriter{pages: make(map[PageID][]byte), nextID: firstDataPID, txn: 1, psize: pageSize}
}

func (m *memTreeWriter) read(id PageID, want pageKind) ([]byte, error) {
	buf, ok := m.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %d not found", id)
	}
	if want != 0 && pageKindOf(buf) != want {
		return nil, fmt.Errorf("page %d: kind mismatch", id)
	}
	return buf, nil
}

func (m *memTreeWriter) allocate() PageID {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memTreeWriter) putDirty(id PageID, buf []byte) { m.pages[id] = buf }

func (m *memTreeWriter) free(id PageID) { delete(m.pages, id) }

func (m *memTreeWriter) txnID() uint64 { return m.txn }

func (m *memTreeWriter) pageSize() int { return m.psize }

func TestBtreeInsertGetRoundTrip(t *testing.T) {
	w := newMemTreeWriter(256)
	root := PageID(invalidPage)

	n := 300
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		val := []byte(fmt.Sprintf("v%04d", i))
		var err error
		root, err = btreeInsert(w, root, key, val)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		want := fmt.Sprintf("v%04d", i)
		got, ok, err := btreeGet(w, root, key)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("get %d: key missing", i)
		}
		if string(got) != want {
			t.Fatalf("get %d = %q, want %q", i, got, want)
		}
	}

	if _, ok, _ := btreeGet(w, root, []byte("missing")); ok {
		t.Fatal("expected missing key to be absent")
	}
}

func TestBtreeOverwrite(t *testing.T) {
	w := newMemTreeWriter(4096)
	root := PageID(invalidPage)
	var err error

	root, err = btreeInsert(w, root, []byte("a"), []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	root, err = btreeInsert(w, root, []byte("a"), []byte("2"))
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err := btreeGet(w, root, []byte("a"))
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != "2" {
		t.Fatalf("got %q, want %q", got, "2")
	}
}

func TestBtreeDelete(t *testing.T) {
	w := newMemTreeWriter(256)
	root := PageID(invalidPage)
	var err error

	n := 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		root, err = btreeInsert(w, root, key, []byte("v"))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	for i := 0; i < n; i += 2 {
		key := []byte(fmt.Sprintf("k%04d", i))
		var existed bool
		root, existed, err = btreeDelete(w, root, key)
		if err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
		if !existed {
			t.Fatalf("delete %d: expected key to exist", i)
		}
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		_, ok, err := btreeGet(w, root, key)
		if err != nil {
			t.Fatal(err)
		}
		wantPresent := i%2 != 0
		if ok != wantPresent {
			t.Fatalf("key %d present=%v, want %v", i, ok, wantPresent)
		}
	}

	root, existed, err := btreeDelete(w, root, []byte("not-there"))
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Fatal("deleting an absent key should report existed=false")
	}
	_ = root
}

func TestBtreeRangeScanOrdered(t *testing.T) {
	w := newMemTreeWriter(256)
	root := PageID(invalidPage)
	var err error

	n := 500
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		root, err = btreeInsert(w, root, key, []byte(fmt.Sprintf("v%04d", i)))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	cur, err := newCursor(w, root, []byte("k0100"), []byte("k0110"))
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for {
		k, _, ok, err := cur.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, string(k))
	}

	if len(got) != 10 {
		t.Fatalf("got %d keys, want 10: %v", len(got), got)
	}
	for i, k := range got {
		want := fmt.Sprintf("k%04d", 100+i)
		if k != want {
			t.Fatalf("got[%d] = %q, want %q", i, k, want)
		}
	}
}
