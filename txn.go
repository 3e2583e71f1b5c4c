package ldbx

import (
	"sync"

	"github.com/elenavoss/ldbx/internal/pagecache"
)

// liveReaders is the in-process multiset of snapshot txn ids held by open
// read transactions (spec §4.5). It replaces the teacher's cross-process
// lock file: this engine is single-process, so reference counting in
// memory is sufficient and a good deal cheaper.
type liveReaders struct {
	mu     sync.Mutex
	counts map[uint64]int
}

func newLiveReaders() *liveReaders {
	return &liveReaders{counts: make(map[uint64]int)}
}

func (lr *liveReaders) register(txnID uint64) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.counts[txnID]++
}

func (lr *liveReaders) release(txnID uint64) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.counts[txnID]--
	if lr.counts[txnID] <= 0 {
		delete(lr.counts, txnID)
	}
}

// oldest returns the minimum live snapshot txn id, or activeTxnID if no
// readers are currently registered. The writer uses this as T_oldest when
// deciding which freelist records are available for reuse.
func (lr *liveReaders) oldest(activeTxnID uint64) uint64 {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	oldest := activeTxnID
	for txnID := range lr.counts {
		if txnID < oldest {
			oldest = txnID
		}
	}
	return oldest
}

// savepointFrame is the state a nested "begin" snapshots so a nested
// "rollback" can restore it without touching anything the outer
// transaction already did before the nested one started.
type savepointFrame struct {
	dirty     *pagecache.PageMap
	root      PageID
	available []PageID
	consumed  int
	pending   int
}

// Reader is a read-only transaction bound to one meta snapshot. Its view
// of the tree never changes for its whole lifetime, even as a concurrent
// writer commits further transactions (spec §5: snapshot isolation).
type Reader struct {
	env      *Env
	snapTxn  uint64
	snapshot *readerSnapshot
	root     PageID
	done     bool
}

func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	if r.done {
		return nil, false, ErrAborted
	}
	if len(key) == 0 {
		return nil, false, errEmptyKey
	}
	return btreeGet(r.snapshot, r.root, key)
}

// Range returns a cursor over [start, end); a nil end means unbounded.
func (r *Reader) Range(start, end []byte) (*Cursor, error) {
	if r.done {
		return nil, ErrAborted
	}
	return newCursor(r.snapshot, r.root, start, end)
}

// Close releases the reader's snapshot. It is always safe to call exactly
// once; calling it again is a no-op rather than an error, matching the
// teacher's lenient Close semantics.
func (r *Reader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.env.readers.release(r.snapTxn)
	if r.env.metrics != nil {
		r.env.metrics.readersLive.Dec()
	}
	return r.snapshot.close()
}

// Writer is the single, exclusively-held write transaction. Every mutation
// builds a new, uncommitted working set in memory (spec §4.5); nothing
// reaches disk until the outermost Commit runs the dual-meta protocol.
type Writer struct {
	env          *Env
	txn          uint64 // the txn id this writer's eventual commit will produce
	root         PageID
	dirty        *pagecache.PageMap
	flView       *writerFreelistView
	oldestReader uint64 // snapshot txn id live readers were computed against at Begin time

	savepoints []savepointFrame
	done       bool
}

func (w *Writer) read(id PageID, want pageKind) ([]byte, error) {
	if buf, ok := w.dirty.Get(uint64(id)); ok {
		if want != 0 && pageKindOf(buf) != want {
			return nil, wrapError(KindCorrupt, "dirty page kind mismatch", nil)
		}
		return buf, nil
	}
	return w.env.pager.readDirect(id, want)
}

func (w *Writer) allocate() PageID {
	if w.env.metrics != nil {
		w.env.metrics.pagesAllocated.Inc()
	}
	if id, ok := w.flView.reserve(); ok {
		return id
	}
	return w.env.pager.extendFresh()
}

func (w *Writer) putDirty(id PageID, buf []byte) { w.dirty.Set(uint64(id), buf) }

func (w *Writer) free(id PageID) {
	w.flView.free(id, w.txn)
	if w.env.metrics != nil {
		w.env.metrics.pagesFreed.Inc()
	}
}

func (w *Writer) txnID() uint64 { return w.txn }

func (w *Writer) pageSize() int { return w.env.pager.pageSize }

func (w *Writer) checkWritable() error {
	if w.done {
		return ErrAborted
	}
	return nil
}

func (w *Writer) Get(key []byte) ([]byte, bool, error) {
	if err := w.checkWritable(); err != nil {
		return nil, false, err
	}
	if len(key) == 0 {
		return nil, false, errEmptyKey
	}
	return btreeGet(w, w.root, key)
}

func (w *Writer) Put(key, val []byte) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	if len(key) == 0 {
		return errEmptyKey
	}
	newRoot, err := btreeInsert(w, w.root, key, val)
	if err != nil {
		return err
	}
	w.root = newRoot
	return nil
}

func (w *Writer) Delete(key []byte) (bool, error) {
	if err := w.checkWritable(); err != nil {
		return false, err
	}
	if len(key) == 0 {
		return false, errEmptyKey
	}
	newRoot, existed, err := btreeDelete(w, w.root, key)
	if err != nil {
		return false, err
	}
	w.root = newRoot
	return existed, nil
}

func (w *Writer) Range(start, end []byte) (*Cursor, error) {
	if err := w.checkWritable(); err != nil {
		return nil, err
	}
	return newCursor(w, w.root, start, end)
}

// Begin opens a nested savepoint: a client calling BEGIN while already
// inside a write transaction (spec §4.5) gets a stacked rollback point
// rather than a second writer. There is still exactly one on-disk
// transaction; only the outermost Commit/Abort touches the pager.
func (w *Writer) Begin() error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	frame := savepointFrame{
		dirty:     w.dirty.Clone(),
		root:      w.root,
		available: append([]PageID(nil), w.flView.available...),
		consumed:  len(w.flView.consumed),
		pending:   len(w.flView.pending),
	}
	w.savepoints = append(w.savepoints, frame)
	return nil
}

// Commit finishes the innermost open savepoint if one exists (a pure
// in-memory merge: the shared dirty map and freelist view already reflect
// the nested work, so there is nothing left to do but drop the
// checkpoint), otherwise runs the full on-disk commit protocol.
func (w *Writer) Commit() error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	if n := len(w.savepoints); n > 0 {
		w.savepoints = w.savepoints[:n-1]
		return nil
	}
	return w.env.commitWriter(w)
}

// Abort discards the innermost open savepoint, restoring the dirty map,
// root, and freelist view to what they were when it was opened, or (at
// the outermost level) discards the entire working set — no on-disk state
// has changed, so this touches nothing but this writer's own memory.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	if n := len(w.savepoints); n > 0 {
		frame := w.savepoints[n-1]
		w.savepoints = w.savepoints[:n-1]
		w.dirty = frame.dirty
		w.root = frame.root
		w.flView.available = frame.available
		w.flView.consumed = w.flView.consumed[:frame.consumed]
		w.flView.pending = w.flView.pending[:frame.pending]
		return nil
	}
	w.done = true
	w.env.log.Debug().Uint64("txn_id", w.txn).Msg("write transaction aborted")
	w.env.releaseWriter()
	return nil
}
