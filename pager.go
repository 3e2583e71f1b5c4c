package ldbx

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/elenavoss/ldbx/internal/mmap"
	"github.com/rs/zerolog"
)

// pager owns the data file: fixed-size page reads/writes, per-page
// checksum validation, and page-id allocation. It has no opinion about
// transactions or trees — that's the job of the btree and txn manager
// built on top of it.
type pager struct {
	file      *os.File
	pageSize  int
	highWater atomic.Uint64 // PageID; next never-yet-allocated page id

	writeMu sync.Mutex // serializes pwrite calls from the single writer

	log     zerolog.Logger
	metrics *Metrics
}

func newPager(file *os.File, pageSize int, highWater PageID, log zerolog.Logger, metrics *Metrics) *pager {
	p := &pager{file: file, pageSize: pageSize, log: log, metrics: metrics}
	p.highWater.Store(uint64(highWater))
	return p
}

// reportCorruption logs a corruption event (page id, expected vs. computed
// checksum come through in err's message, built by verifyPage) and bumps
// the corruption counter, then returns err unchanged for the caller to
// propagate.
func (p *pager) reportCorruption(id PageID, err error) error {
	p.log.Warn().Uint64("page_id", uint64(id)).Err(err).Msg("page corruption detected")
	if p.metrics != nil {
		p.metrics.corruptionsTotal.Inc()
	}
	return err
}

// readDirect reads and validates a single page via pread. Used by the
// writer (which must see its own just-written, not-yet-synced pages) and
// anywhere a reader snapshot isn't in play.
func (p *pager) readDirect(id PageID, want pageKind) ([]byte, error) {
	buf := make([]byte, p.pageSize)
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return nil, wrapError(KindIO, "read page", err)
	}
	if _, err := verifyPage(buf, id, want); err != nil {
		return nil, p.reportCorruption(id, err)
	}
	return buf, nil
}

// read is an alias kept for call sites that don't care whether they're on
// the writer's or a reader's path; today its only caller is loadFreelist
// during Open, and it is simply readDirect.
func (p *pager) read(id PageID, want pageKind) ([]byte, error) {
	return p.readDirect(id, want)
}

// writeDirty writes a fully-formed page (header + checksum already
// stamped by the caller via finishPage) to its offset. Buffered by the OS
// page cache; durability requires a following sync.
func (p *pager) writeDirty(id PageID, buf []byte) error {
	if len(buf) != p.pageSize {
		return newError(KindIO, "page buffer size mismatch")
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return wrapError(KindIO, "write page", err)
	}
	return nil
}

// sync flushes all buffered writes to durable storage. The pager exposes
// only this one primitive; the commit protocol calls it at two distinct
// points (data sync, then meta sync) to get the ordering spec §4.4
// requires, even though both calls target the same underlying file.
func (p *pager) sync() error {
	if err := p.file.Sync(); err != nil {
		return wrapError(KindIO, "fsync", err)
	}
	return nil
}

// extendFresh hands out the next never-yet-used page id without touching
// the freelist. The file itself is extended lazily: WriteAt past the
// current end simply grows it.
func (p *pager) extendFresh() PageID {
	return PageID(p.highWater.Add(1) - 1)
}

// highWaterMark is the current "next fresh id" value, persisted into the
// meta page on every commit.
func (p *pager) highWaterMark() PageID {
	return PageID(p.highWater.Load())
}

// setHighWaterMark overwrites the "next fresh id" counter. Writer.Abort does
// not call it: ids an aborted writer claimed via extendFresh are never
// rewound, the writer simply never reaches commit, and the
// claimed-but-unused ids are permanently skipped. That's a deliberate
// simplification: LMDB-family engines accept
// sparse page-id gaps from aborted writers rather than reclaiming them,
// since there is at most one outstanding writer and aborts are rare.
func (p *pager) setHighWaterMark(hw PageID) {
	p.highWater.Store(uint64(hw))
}

// readerSnapshot is a read-only, fixed-size mmap view of the data file
// covering exactly the pages reachable as of one meta snapshot. Because
// CoW never mutates a page's bytes in place — it always writes a new page
// id — everything in this range stays valid for as long as the snapshot
// is held, even while a concurrent writer extends the file further out.
type readerSnapshot struct {
	region   *mmap.Region
	pageSize int

	log     zerolog.Logger
	metrics *Metrics
}

func openReaderSnapshot(file *os.File, pageSize int, highWaterMark PageID, log zerolog.Logger, metrics *Metrics) (*readerSnapshot, error) {
	length := int64(highWaterMark) * int64(pageSize)
	if length == 0 {
		return &readerSnapshot{pageSize: pageSize, log: log, metrics: metrics}, nil
	}
	region, err := mmap.New(int(file.Fd()), int(length))
	if err != nil {
		return nil, wrapError(KindIO, "mmap reader snapshot", err)
	}
	_ = region.AdviseSequential()
	return &readerSnapshot{region: region, pageSize: pageSize, log: log, metrics: metrics}, nil
}

func (s *readerSnapshot) reportCorruption(id PageID, err error) error {
	s.log.Warn().Uint64("page_id", uint64(id)).Err(err).Msg("page corruption detected")
	if s.metrics != nil {
		s.metrics.corruptionsTotal.Inc()
	}
	return err
}

func (s *readerSnapshot) read(id PageID, want pageKind) ([]byte, error) {
	if s.region == nil {
		return nil, wrapError(KindCorrupt, "read from empty snapshot", nil)
	}
	off := int(id) * s.pageSize
	if off+s.pageSize > len(s.region.Bytes()) {
		return nil, s.reportCorruption(id, wrapError(KindCorrupt, "page outside snapshot range", nil))
	}
	buf := s.region.Bytes()[off : off+s.pageSize]
	if _, err := verifyPage(buf, id, want); err != nil {
		return nil, s.reportCorruption(id, err)
	}
	return buf, nil
}

func (s *readerSnapshot) close() error {
	if s.region == nil {
		return nil
	}
	return s.region.Close()
}
