package ldbx

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestPagerWriteReadRoundTrip(t *testing.T) {
	pg := tempPager(t, 512)

	id := pg.extendFresh()
	buf := make([]byte, 512)
	encodeLeaf(buf, id, 1, []leafCell{{key: []byte("x"), val: []byte("y")}}, invalidPage)

	if err := pg.writeDirty(id, buf); err != nil {
		t.Fatal(err)
	}
	if err := pg.sync(); err != nil {
		t.Fatal(err)
	}

	got, err := pg.readDirect(id, kindLeaf)
	if err != nil {
		t.Fatal(err)
	}
	cells, _ := decodeLeaf(got)
	if len(cells) != 1 || string(cells[0].key) != "x" || string(cells[0].val) != "y" {
		t.Fatalf("cells = %+v", cells)
	}
}

func TestPagerWriteDirtyWrongSizeRejected(t *testing.T) {
	pg := tempPager(t, 512)
	if err := pg.writeDirty(firstDataPID, make([]byte, 256)); err == nil {
		t.Fatal("expected writeDirty to reject a mis-sized buffer")
	}
}

func TestPagerHighWaterMarkAdvances(t *testing.T) {
	pg := tempPager(t, 512)
	first := pg.extendFresh()
	second := pg.extendFresh()
	if second != first+1 {
		t.Fatalf("extendFresh should hand out strictly increasing ids: %d then %d", first, second)
	}
	if pg.highWaterMark() != second+1 {
		t.Fatalf("highWaterMark = %d, want %d", pg.highWaterMark(), second+1)
	}
}

func TestReaderSnapshotReadsWithinRange(t *testing.T) {
	pg := tempPager(t, 512)
	id := pg.extendFresh()
	buf := make([]byte, 512)
	encodeLeaf(buf, id, 1, []leafCell{{key: []byte("a"), val: []byte("b")}}, invalidPage)
	if err := pg.writeDirty(id, buf); err != nil {
		t.Fatal(err)
	}
	if err := pg.sync(); err != nil {
		t.Fatal(err)
	}

	snap, err := openReaderSnapshot(pg.file, pg.pageSize, pg.highWaterMark(), zerolog.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer snap.close()

	got, err := snap.read(id, kindLeaf)
	if err != nil {
		t.Fatal(err)
	}
	cells, _ := decodeLeaf(got)
	if len(cells) != 1 || string(cells[0].key) != "a" {
		t.Fatalf("cells = %+v", cells)
	}
}
