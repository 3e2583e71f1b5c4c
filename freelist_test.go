package ldbx

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func tempPager(t *testing.T, pageSize int) *pager {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ldbx-pager-*.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return newPager(f, pageSize, firstDataPID, zerolog.Nop(), nil)
}

func TestFreelistViewReserveAndFree(t *testing.T) {
	fm := &freelistManager{
		records: []freelistRecord{
			{txnID: 1, pageID: 10},
			{txnID: 5, pageID: 11},
			{txnID: 2, pageID: 12},
		},
	}

	view := fm.view(4) // oldest live reader txn is 4: only txnID < 4 is available
	if len(view.available) != 2 {
		t.Fatalf("available = %v, want 2 entries", view.available)
	}
	if view.available[0] != 10 || view.available[1] != 12 {
		t.Fatalf("available = %v, want ascending [10 12]", view.available)
	}

	id, ok := view.reserve()
	if !ok || id != 10 {
		t.Fatalf("reserve() = (%d, %v), want (10, true)", id, ok)
	}
	id, ok = view.reserve()
	if !ok || id != 12 {
		t.Fatalf("reserve() = (%d, %v), want (12, true)", id, ok)
	}
	if _, ok := view.reserve(); ok {
		t.Fatal("expected no more available pages")
	}

	view.free(99, 7)
	if len(view.pending) != 1 || view.pending[0] != (freelistRecord{txnID: 7, pageID: 99}) {
		t.Fatalf("pending = %v", view.pending)
	}
}

func TestFreelistCommitFoldsAndRetiresOldChain(t *testing.T) {
	pg := tempPager(t, 512)

	fm := &freelistManager{
		records: []freelistRecord{{txnID: 1, pageID: 50}},
		pages:   []PageID{firstDataPID}, // pretend one old chain page
	}
	pg.setHighWaterMark(firstDataPID + 1)

	view := fm.view(2)
	if _, ok := view.reserve(); !ok {
		t.Fatal("expected page 50 to be available")
	}
	view.free(200, 9)

	newRoot, err := fm.commit(view, 9, pg, 512)
	if err != nil {
		t.Fatal(err)
	}
	if newRoot == invalidPage {
		t.Fatal("expected a new freelist root")
	}

	// The consumed page (50) must be gone; the new pending record (200) and
	// the retired old chain page (firstDataPID) must both be present.
	found := map[PageID]bool{}
	for _, r := range fm.records {
		if r.pageID == 50 {
			t.Fatalf("consumed page 50 should not remain in the master list")
		}
		found[r.pageID] = true
	}
	if !found[200] {
		t.Fatal("expected pending free of page 200 to survive commit")
	}
	if !found[firstDataPID] {
		t.Fatal("expected retired old freelist chain page to be recorded")
	}
}

func TestFreelistCommitEmpty(t *testing.T) {
	pg := tempPager(t, 512)
	fm := &freelistManager{}
	view := fm.view(1)

	root, err := fm.commit(view, 1, pg, 512)
	if err != nil {
		t.Fatal(err)
	}
	if root != invalidPage {
		t.Fatalf("root = %d, want invalidPage for an empty freelist", root)
	}
}
