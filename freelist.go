package ldbx

import (
	"encoding/binary"
	"sort"

	"github.com/rs/zerolog"
)

// freelistRecord is one (txn_id, page_id) entry: page_id was released by
// the writer whose commit produced txn_id. A page only becomes reusable
// once txn_id is strictly below every live reader's snapshot txn id (spec §4.3).
type freelistRecord struct {
	txnID  uint64
	pageID PageID
}

const freelistHeaderSize = 2 + 8 // record count, next page
const freelistRecordSize = 8 + 8 // txn id, page id

func recordsPerFreelistPage(pageSize int) int {
	return (pageSize - commonHeaderSize - freelistHeaderSize) / freelistRecordSize
}

func encodeFreelistPage(buf []byte, id PageID, txnID uint64, recs []freelistRecord, next PageID) {
	p := buf[commonHeaderSize:]
	binary.LittleEndian.PutUint16(p[0:2], uint16(len(recs)))
	binary.LittleEndian.PutUint64(p[2:10], uint64(next))
	off := freelistHeaderSize
	for _, r := range recs {
		binary.LittleEndian.PutUint64(p[off:off+8], r.txnID)
		binary.LittleEndian.PutUint64(p[off+8:off+16], uint64(r.pageID))
		off += freelistRecordSize
	}
	finishPage(buf, kindFreelist, id, txnID, off)
}

func decodeFreelistPage(buf []byte) (recs []freelistRecord, next PageID) {
	p := buf[commonHeaderSize:]
	n := int(binary.LittleEndian.Uint16(p[0:2]))
	next = PageID(binary.LittleEndian.Uint64(p[2:10]))
	recs = make([]freelistRecord, n)
	off := freelistHeaderSize
	for i := 0; i < n; i++ {
		recs[i] = freelistRecord{
			txnID:  binary.LittleEndian.Uint64(p[off : off+8]),
			pageID: PageID(binary.LittleEndian.Uint64(p[off+8 : off+16])),
		}
		off += freelistRecordSize
	}
	return recs, next
}

// freelistManager owns the logical (txn_id, page_id) list across commits.
// It has no lock of its own: view and commit run only while the engine's
// writer lock (Env.writerMu) is held.
type freelistManager struct {
	records []freelistRecord // master list as of the last successful commit
	pages   []PageID         // page ids currently holding the chain on disk

	log zerolog.Logger
}

func loadFreelist(pg *pager, root PageID, log zerolog.Logger) (*freelistManager, error) {
	fm := &freelistManager{log: log}
	for cur := root; cur != invalidPage; {
		buf, err := pg.read(cur, kindFreelist)
		if err != nil {
			return nil, err
		}
		recs, next := decodeFreelistPage(buf)
		fm.records = append(fm.records, recs...)
		fm.pages = append(fm.pages, cur)
		cur = next
	}
	return fm, nil
}

// writerFreelistView is the per-write-transaction lens onto the freelist:
// a drainable copy of the pages currently available for reuse, plus this
// transaction's own pending frees.
type writerFreelistView struct {
	available []PageID // txn_id < oldestReader, ascending, drained front-to-back
	consumed  []PageID // ids this txn actually took (dropped from master on commit)
	pending   []freelistRecord
}

// view builds a writer's snapshot. oldestReader is the minimum snapshot
// txn id among live readers, or the active meta's txn id if none are live.
func (fm *freelistManager) view(oldestReader uint64) *writerFreelistView {
	v := &writerFreelistView{}
	for _, r := range fm.records {
		if r.txnID < oldestReader {
			v.available = append(v.available, r.pageID)
		}
	}
	sort.Slice(v.available, func(i, j int) bool { return v.available[i] < v.available[j] })
	fm.log.Debug().
		Uint64("oldest_reader_txn", oldestReader).
		Int("promoted_to_available", len(v.available)).
		Msg("freelist reclamation")
	return v
}

// reserve pops the smallest available page id, if any.
func (v *writerFreelistView) reserve() (PageID, bool) {
	if len(v.available) == 0 {
		return 0, false
	}
	id := v.available[0]
	v.available = v.available[1:]
	v.consumed = append(v.consumed, id)
	return id, true
}

// free enqueues page id for reclamation once no reader can see txnID.
func (v *writerFreelistView) free(id PageID, txnID uint64) {
	v.pending = append(v.pending, freelistRecord{txnID: txnID, pageID: id})
}

// commit folds a writer's view back into the master list, rewrites the
// freelist's own pages (itself CoW: the chain's old pages are retired and
// fresh ones allocated), and returns the new freelist root.
//
// The freelist's own storage pages are always allocated by extending the
// file rather than drawn from the available pool. That sidesteps a
// circular dependency (the size of the new chain depends on how many old
// chain pages it must also retire, which would otherwise depend on the
// new chain's size) at the cost of not recycling freelist pages into
// freelist pages — a page freed here can still back leaves/branches once
// it ages past the oldest reader, just not another freelist page first.
func (fm *freelistManager) commit(v *writerFreelistView, newTxnID uint64, pg *pager, pageSize int) (PageID, error) {
	consumed := make(map[PageID]bool, len(v.consumed))
	for _, id := range v.consumed {
		consumed[id] = true
	}

	base := fm.records[:0:0]
	for _, r := range fm.records {
		if !consumed[r.pageID] {
			base = append(base, r)
		}
	}

	combined := append(base, v.pending...)
	for _, old := range fm.pages {
		combined = append(combined, freelistRecord{txnID: newTxnID, pageID: old})
	}

	perPage := recordsPerFreelistPage(pageSize)
	var newPages []PageID
	if len(combined) == 0 {
		fm.records = combined
		fm.pages = nil
		return invalidPage, nil
	}

	numPages := (len(combined) + perPage - 1) / perPage
	newPages = make([]PageID, numPages)
	for i := range newPages {
		newPages[i] = pg.extendFresh()
	}

	for i := 0; i < numPages; i++ {
		start := i * perPage
		end := start + perPage
		if end > len(combined) {
			end = len(combined)
		}
		next := invalidPage
		if i+1 < numPages {
			next = newPages[i+1]
		}
		buf := make([]byte, pageSize)
		encodeFreelistPage(buf, newPages[i], newTxnID, combined[start:end], next)
		if err := pg.writeDirty(newPages[i], buf); err != nil {
			return invalidPage, err
		}
	}

	fm.records = combined
	fm.pages = newPages
	return newPages[0], nil
}
