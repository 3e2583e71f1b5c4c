package ldbx

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/elenavoss/ldbx/internal/pagecache"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultPageSize = 4096

// Options configures Open. PageSize only matters at creation time — once a
// database file exists its page size is fixed, read back from the file
// header on every reopen. ReadOnly disables BeginWrite entirely, matching
// spec §4.6.
type Options struct {
	PageSize int
	ReadOnly bool

	// NoSync skips the fsync calls a commit would otherwise make, trading
	// durability for throughput. Callers that set this are expected to call
	// Sync(true) themselves at whatever cadence they can tolerate losing.
	NoSync bool

	// Logger and Metrics are optional ambient-stack hooks; nil means "use
	// a sensible default" (for Logger) or "disabled" (for Metrics).
	Logger  *zerolog.Logger
	Metrics *Metrics
}

func isValidPageSize(n int) bool {
	return n >= 512 && n <= 65536 && n&(n-1) == 0
}

// Env is the open database handle: one per process per file. It owns the
// pager, the current active-meta snapshot, the freelist, the live-reader
// registry, and the single-writer mutex.
type Env struct {
	file     *os.File
	path     string
	pager    *pager
	pageSize int
	readOnly bool
	noSync   bool
	id       uuid.UUID

	metaMu     sync.Mutex
	activeMeta metaPayload
	activeSlot PageID
	flManager  *freelistManager

	readers *liveReaders

	writerMu sync.Mutex

	log     zerolog.Logger
	metrics *Metrics
}

// Open opens path, creating and initializing it on first use.
func Open(path string, opts Options) (*Env, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if !isValidPageSize(pageSize) {
		return nil, newError(KindIO, "page size must be a power of two between 512 and 65536")
	}

	flag := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, wrapError(KindIO, "open database file", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, wrapError(KindIO, "stat database file", err)
	}

	env := &Env{
		file:     file,
		path:     path,
		readOnly: opts.ReadOnly,
		noSync:   opts.NoSync,
		id:       uuid.New(),
		readers:  newLiveReaders(),
		metrics:  opts.Metrics,
	}
	if opts.Logger != nil {
		env.log = *opts.Logger
	} else {
		env.log = defaultLogger()
	}
	env.log = env.log.With().Str("instance", env.id.String()).Str("path", path).Logger()

	if info.Size() == 0 {
		if opts.ReadOnly {
			file.Close()
			return nil, newError(KindReadOnly, "cannot create a new database read-only")
		}
		if err := initializeFile(file, pageSize); err != nil {
			file.Close()
			return nil, err
		}
		env.log.Info().Int("page_size", pageSize).Msg("initialized new database file")
	} else {
		// The header sits at headerPageID*pageSize for the size the file was
		// created with, which the caller's requested size need not match, so
		// probe every valid size for a header that records that same size.
		pageSize = 0
		hdrBuf := make([]byte, 32)
		for ps := 512; ps <= 65536 && pageSize == 0; ps *= 2 {
			if _, err := file.ReadAt(hdrBuf, int64(headerPageID)*int64(ps)); err == nil {
				if fh, err := decodeFileHeader(hdrBuf); err == nil && int(fh.pageSize) == ps {
					pageSize = ps
				}
			}
		}
		if pageSize == 0 {
			file.Close()
			return nil, newError(KindCorrupt, "file header not found")
		}
	}

	env.pageSize = pageSize

	rawA := make([]byte, pageSize)
	rawB := make([]byte, pageSize)
	if _, err := file.ReadAt(rawA, int64(metaSlotA)*int64(pageSize)); err != nil {
		file.Close()
		return nil, wrapError(KindIO, "read meta slot A", err)
	}
	if _, err := file.ReadAt(rawB, int64(metaSlotB)*int64(pageSize)); err != nil {
		file.Close()
		return nil, wrapError(KindIO, "read meta slot B", err)
	}
	active, err := pickActiveMeta(rawA, rawB)
	if err != nil {
		file.Close()
		return nil, err
	}
	activeSlot := metaSlotA
	if aMeta, aerr := readMetaSlot(rawA, metaSlotA); aerr != nil || aMeta.txnID != active.txnID {
		activeSlot = metaSlotB
	}

	env.pager = newPager(file, pageSize, active.highWaterMark, env.log, env.metrics)
	env.activeMeta = active
	env.activeSlot = activeSlot

	fm, err := loadFreelist(env.pager, active.freelistRoot, env.log)
	if err != nil {
		file.Close()
		return nil, err
	}
	env.flManager = fm

	env.log.Info().Int("page_size", pageSize).Uint64("txn_id", active.txnID).Msg("database opened")
	return env, nil
}

// initializeFile performs the first-time layout described in spec §4.4:
// file header at page 2, an empty leaf root at page 3, meta slot A with
// txn_id 1 pointing at it, meta slot B inert at txn_id 0.
func initializeFile(file *os.File, pageSize int) error {
	hdr := fileHeader{
		formatVersion: fileHeaderFormatVersion,
		pageSize:      uint32(pageSize),
		metaOffsetA:   uint64(metaSlotA) * uint64(pageSize),
		metaOffsetB:   uint64(metaSlotB) * uint64(pageSize),
	}
	hdrBuf := make([]byte, pageSize)
	copy(hdrBuf, encodeFileHeader(hdr))
	if _, err := file.WriteAt(hdrBuf, int64(headerPageID)*int64(pageSize)); err != nil {
		return wrapError(KindIO, "write file header", err)
	}

	rootBuf := make([]byte, pageSize)
	encodeLeaf(rootBuf, firstDataPID, 1, nil, invalidPage)
	if _, err := file.WriteAt(rootBuf, int64(firstDataPID)*int64(pageSize)); err != nil {
		return wrapError(KindIO, "write initial root leaf", err)
	}

	metaA := metaPayload{txnID: 1, rootPage: firstDataPID, freelistRoot: invalidPage, highWaterMark: firstDataPID + 1}
	bufA := make([]byte, pageSize)
	buildMetaPage(bufA, metaSlotA, metaA)
	if _, err := file.WriteAt(bufA, int64(metaSlotA)*int64(pageSize)); err != nil {
		return wrapError(KindIO, "write meta slot A", err)
	}
	if err := file.Sync(); err != nil {
		return wrapError(KindIO, "sync after meta slot A", err)
	}

	metaB := metaPayload{txnID: 0, rootPage: invalidPage, freelistRoot: invalidPage, highWaterMark: firstDataPID + 1}
	bufB := make([]byte, pageSize)
	buildMetaPage(bufB, metaSlotB, metaB)
	if _, err := file.WriteAt(bufB, int64(metaSlotB)*int64(pageSize)); err != nil {
		return wrapError(KindIO, "write meta slot B", err)
	}
	if err := file.Sync(); err != nil {
		return wrapError(KindIO, "sync after meta slot B", err)
	}
	return nil
}

// Close flushes and releases the file handle. It does not close any
// outstanding Reader snapshots or Writer; callers are responsible for
// closing those first.
func (env *Env) Close() error {
	if err := env.pager.sync(); err != nil {
		return err
	}
	if err := env.file.Close(); err != nil {
		return wrapError(KindIO, "close database file", err)
	}
	env.log.Info().Msg("database closed")
	return nil
}

// BeginRead opens a read transaction pinned to the current active meta
// snapshot.
func (env *Env) BeginRead() (*Reader, error) {
	env.metaMu.Lock()
	snap := env.activeMeta
	env.metaMu.Unlock()

	region, err := openReaderSnapshot(env.file, env.pageSize, snap.highWaterMark, env.log, env.metrics)
	if err != nil {
		return nil, err
	}
	env.readers.register(snap.txnID)
	if env.metrics != nil {
		env.metrics.readersOpenedTotal.Inc()
		env.metrics.readersLive.Inc()
	}
	return &Reader{env: env, snapTxn: snap.txnID, snapshot: region, root: snap.rootPage}, nil
}

// BeginWrite blocks until any other writer has committed or aborted, then
// opens a write transaction against the current active meta.
func (env *Env) BeginWrite() (*Writer, error) {
	if env.readOnly {
		return nil, ErrReadOnly
	}
	env.writerMu.Lock()

	env.metaMu.Lock()
	snap := env.activeMeta
	env.metaMu.Unlock()

	oldest := env.readers.oldest(snap.txnID)
	view := env.flManager.view(oldest)

	return &Writer{
		env:          env,
		txn:          snap.txnID + 1,
		root:         snap.rootPage,
		dirty:        &pagecache.PageMap{},
		flView:       view,
		oldestReader: oldest,
	}, nil
}

func (env *Env) releaseWriter() {
	env.writerMu.Unlock()
}

// commitWriter runs the dual-meta commit protocol (spec §4.4): fold the
// freelist first (it allocates and writes its own CoW pages), write every
// remaining dirty page, data-sync, write the inactive meta slot, meta-sync,
// then flip which slot is active.
func (env *Env) commitWriter(w *Writer) error {
	start := time.Now()
	defer func() {
		w.done = true
		env.releaseWriter()
	}()

	newFreelistRoot, err := env.flManager.commit(w.flView, w.txn, env.pager, env.pageSize)
	if err != nil {
		env.recordAbort()
		return err
	}

	var writeErr error
	w.dirty.ForEach(func(key uint64, buf []byte) {
		if writeErr != nil {
			return
		}
		writeErr = env.pager.writeDirty(PageID(key), buf)
	})
	if writeErr != nil {
		env.recordAbort()
		return writeErr
	}

	if !env.noSync {
		if err := env.pager.sync(); err != nil {
			env.recordAbort()
			return err
		}
	}

	newMeta := metaPayload{
		txnID:         w.txn,
		rootPage:      w.root,
		freelistRoot:  newFreelistRoot,
		highWaterMark: env.pager.highWaterMark(),
	}
	inactive := inactiveSlot(env.activeSlot)
	metaBuf := make([]byte, env.pageSize)
	buildMetaPage(metaBuf, inactive, newMeta)
	if err := env.pager.writeDirty(inactive, metaBuf); err != nil {
		env.recordAbort()
		return err
	}
	if !env.noSync {
		if err := env.pager.sync(); err != nil {
			env.recordAbort()
			return err
		}
	}

	env.metaMu.Lock()
	env.activeMeta = newMeta
	env.activeSlot = inactive
	env.metaMu.Unlock()

	dirtyPages := w.dirty.Len()
	env.log.Debug().
		Uint64("txn_id", w.txn).
		Int("dirty_pages", dirtyPages).
		Int("bytes_synced", dirtyPages*env.pageSize).
		Dur("elapsed", time.Since(start)).
		Msg("commit")
	if env.metrics != nil {
		env.metrics.commitsTotal.Inc()
		env.metrics.commitDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (env *Env) recordAbort() {
	if env.metrics != nil {
		env.metrics.abortsTotal.Inc()
	}
}

// Stats reports a snapshot of engine-level bookkeeping, supplementing the
// core interface with the kind of introspection LMDB exposes via
// mdb_env_stat/mdb_env_info.
type Stats struct {
	PageSize          int
	ActiveTxnID       uint64
	HighWaterMark     PageID
	RootPage          PageID
	FreelistAvailable int
	FreelistPending   int
}

func (env *Env) Stats() Stats {
	env.metaMu.Lock()
	meta := env.activeMeta
	env.metaMu.Unlock()

	oldest := env.readers.oldest(meta.txnID)
	available, pending := 0, 0
	for _, r := range env.flManager.records {
		if r.txnID < oldest {
			available++
		} else {
			pending++
		}
	}

	return Stats{
		PageSize:          env.pageSize,
		ActiveTxnID:       meta.txnID,
		HighWaterMark:     meta.highWaterMark,
		RootPage:          meta.rootPage,
		FreelistAvailable: available,
		FreelistPending:   pending,
	}
}

// Sync forces a durability fence. With NoSync unset, every commit already
// fsyncs both the data and meta writes, so Sync is a no-op unless force is
// set. With NoSync set, commits skip their fsyncs entirely and Sync is the
// only way to actually flush what's been committed to stable storage.
func (env *Env) Sync(force bool) error {
	if !force && !env.noSync {
		return nil
	}
	return env.pager.sync()
}

// CopyTo streams a consistent copy of the database file, as of the
// current active meta, to dst. It holds the writer lock for the duration
// of the copy (mirroring LMDB's mdb_env_copy, which blocks new write
// transactions while it runs) rather than attempting an incremental,
// lock-free copy.
func (env *Env) CopyTo(dst io.Writer) error {
	env.writerMu.Lock()
	defer env.writerMu.Unlock()

	env.metaMu.Lock()
	length := int64(env.activeMeta.highWaterMark) * int64(env.pageSize)
	env.metaMu.Unlock()

	section := io.NewSectionReader(env.file, 0, length)
	if _, err := io.Copy(dst, section); err != nil {
		return wrapError(KindIO, "copy database file", err)
	}
	return nil
}
