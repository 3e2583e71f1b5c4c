package ldbx

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// PageID identifies a fixed-size page within the data file. Ids 0 and 1 are
// the two meta slots, id 2 is the file header, and ids >= 3 are data pages
// (leaf, branch, or freelist) allocated on demand.
type PageID uint64

const (
	metaSlotA    PageID = 0
	metaSlotB    PageID = 1
	headerPageID PageID = 2
	firstDataPID PageID = 3
)

// pageKind tags the payload a page carries, decoded from the common header.
type pageKind uint8

const (
	kindHeader   pageKind = 1
	kindMeta     pageKind = 2
	kindLeaf     pageKind = 3
	kindBranch   pageKind = 4
	kindFreelist pageKind = 5
)

// pageKindOf peeks the kind tag without fully decoding/verifying the page.
// Tree traversal uses it to dispatch before deciding which decoder to run.
func pageKindOf(buf []byte) pageKind {
	return pageKind(buf[4])
}

func (k pageKind) String() string {
	switch k {
	case kindHeader:
		return "header"
	case kindMeta:
		return "meta"
	case kindLeaf:
		return "leaf"
	case kindBranch:
		return "branch"
	case kindFreelist:
		return "freelist"
	default:
		return "unknown"
	}
}

// commonHeaderSize is the fixed prefix every page begins with:
//
//	offset  size  field
//	0       4     magic
//	4       1     kind
//	5       3     reserved
//	8       8     page id
//	16      8     txn id
//	24      4     payload length
//	28      4     checksum (CRC32C over the whole page body, this field zeroed)
const commonHeaderSize = 32

const pageMagic uint32 = 0x4C444258 // "LDBX"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// commonHeader mirrors the on-disk layout above. It is decoded into this
// struct rather than addressed via unsafe pointer casts: payload length and
// checksum must survive byte-for-byte on big-endian hosts too, and the
// struct is small enough that the copy costs nothing worth avoiding.
type commonHeader struct {
	magic      uint32
	kind       pageKind
	pageID     PageID
	txnID      uint64
	payloadLen uint32
	checksum   uint32
}

func encodeCommonHeader(buf []byte, h commonHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	buf[4] = byte(h.kind)
	buf[5], buf[6], buf[7] = 0, 0, 0
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.pageID))
	binary.LittleEndian.PutUint64(buf[16:24], h.txnID)
	binary.LittleEndian.PutUint32(buf[24:28], h.payloadLen)
	binary.LittleEndian.PutUint32(buf[28:32], h.checksum)
}

func decodeCommonHeader(buf []byte) commonHeader {
	return commonHeader{
		magic:      binary.LittleEndian.Uint32(buf[0:4]),
		kind:       pageKind(buf[4]),
		pageID:     PageID(binary.LittleEndian.Uint64(buf[8:16])),
		txnID:      binary.LittleEndian.Uint64(buf[16:24]),
		payloadLen: binary.LittleEndian.Uint32(buf[24:28]),
		checksum:   binary.LittleEndian.Uint32(buf[28:32]),
	}
}

// finishPage stamps the common header into buf (sized to the page), zeroes
// the unused tail so padding corruption is also detectable, and computes
// the CRC32C checksum over the whole page with the checksum field zeroed.
func finishPage(buf []byte, kind pageKind, id PageID, txnID uint64, payloadLen int) {
	h := commonHeader{
		magic:      pageMagic,
		kind:       kind,
		pageID:     id,
		txnID:      txnID,
		payloadLen: uint32(payloadLen),
		checksum:   0,
	}
	encodeCommonHeader(buf, h)
	for i := commonHeaderSize + payloadLen; i < len(buf); i++ {
		buf[i] = 0
	}
	sum := crc32.Checksum(buf, crc32cTable)
	binary.LittleEndian.PutUint32(buf[28:32], sum)
}

// verifyPage validates magic and checksum, and the expected kind when the
// caller knows what it asked for (pass 0 to skip the kind check).
func verifyPage(buf []byte, id PageID, want pageKind) (commonHeader, error) {
	if len(buf) < commonHeaderSize {
		return commonHeader{}, wrapError(KindCorrupt, fmt.Sprintf("page %d: truncated", id), nil)
	}
	h := decodeCommonHeader(buf)
	wantSum := h.checksum
	tmp := make([]byte, len(buf))
	copy(tmp, buf)
	binary.LittleEndian.PutUint32(tmp[28:32], 0)
	gotSum := crc32.Checksum(tmp, crc32cTable)
	if h.magic != pageMagic {
		return h, wrapError(KindCorrupt, fmt.Sprintf("page %d: bad magic %#x", id, h.magic), nil)
	}
	if gotSum != wantSum {
		return h, wrapError(KindCorrupt, fmt.Sprintf("page %d: checksum mismatch (want %#x, got %#x)", id, wantSum, gotSum), nil)
	}
	if h.pageID != id {
		return h, wrapError(KindCorrupt, fmt.Sprintf("page %d: header claims id %d", id, h.pageID), nil)
	}
	if want != 0 && h.kind != want {
		return h, wrapError(KindCorrupt, fmt.Sprintf("page %d: expected kind %s, got %s", id, want, h.kind), nil)
	}
	return h, nil
}

// fileHeader is the static, write-once page at id 2. It records the page
// size chosen at creation time (so a reopen can't silently disagree with
// the caller about layout) and the byte offsets of the two meta slots,
// making the meta-slot-to-page-id mapping self-describing rather than
// assumed.
type fileHeader struct {
	magic          [8]byte
	formatVersion  uint32
	pageSize       uint32
	metaOffsetA    uint64
	metaOffsetB    uint64
}

const fileHeaderMagic = "LDBXFILE"
const fileHeaderFormatVersion = 1

func encodeFileHeader(h fileHeader) []byte {
	buf := make([]byte, 8+4+4+8+8)
	copy(buf[0:8], []byte(fileHeaderMagic))
	binary.LittleEndian.PutUint32(buf[8:12], h.formatVersion)
	binary.LittleEndian.PutUint32(buf[12:16], h.pageSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.metaOffsetA)
	binary.LittleEndian.PutUint64(buf[24:32], h.metaOffsetB)
	return buf
}

func decodeFileHeader(buf []byte) (fileHeader, error) {
	var h fileHeader
	if len(buf) < 32 {
		return h, wrapError(KindCorrupt, "file header: truncated", nil)
	}
	copy(h.magic[:], buf[0:8])
	if string(h.magic[:]) != fileHeaderMagic {
		return h, wrapError(KindCorrupt, "file header: bad magic", nil)
	}
	h.formatVersion = binary.LittleEndian.Uint32(buf[8:12])
	h.pageSize = binary.LittleEndian.Uint32(buf[12:16])
	h.metaOffsetA = binary.LittleEndian.Uint64(buf[16:24])
	h.metaOffsetB = binary.LittleEndian.Uint64(buf[24:32])
	return h, nil
}
