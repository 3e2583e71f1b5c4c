package ldbx

import "encoding/binary"

// metaPayload is the database-state record carried by meta slots A and B.
// Per spec, the "active" meta is whichever slot has the higher txn id
// among those whose page checksum validates; a single meta write is
// assumed atomic at the sector level, so a torn write simply fails its
// checksum and the engine falls back to the other slot.
type metaPayload struct {
	txnID         uint64
	rootPage      PageID // root of the main B+tree, invalidPage if empty
	freelistRoot  PageID // head of the freelist chain, invalidPage if empty
	highWaterMark PageID // next never-yet-allocated page id
}

const invalidPage PageID = ^PageID(0)

const metaPayloadSize = 8 + 8 + 8 + 8

func encodeMetaPayloadInto(dst []byte, m metaPayload) {
	binary.LittleEndian.PutUint64(dst[0:8], m.txnID)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(m.rootPage))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(m.freelistRoot))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(m.highWaterMark))
}

func decodeMetaPayload(buf []byte) metaPayload {
	return metaPayload{
		txnID:         binary.LittleEndian.Uint64(buf[0:8]),
		rootPage:      PageID(binary.LittleEndian.Uint64(buf[8:16])),
		freelistRoot:  PageID(binary.LittleEndian.Uint64(buf[16:24])),
		highWaterMark: PageID(binary.LittleEndian.Uint64(buf[24:32])),
	}
}

// buildMetaPage renders a full page buffer (common header + payload) for
// one of the two meta slots.
func buildMetaPage(buf []byte, slot PageID, m metaPayload) {
	encodeMetaPayloadInto(buf[commonHeaderSize:], m)
	finishPage(buf, kindMeta, slot, m.txnID, metaPayloadSize)
}

// readMetaSlot validates and decodes the raw bytes of one meta slot (the
// caller has already read them). A checksum/magic/kind failure is reported
// but not necessarily fatal to the caller (pickActiveMeta tolerates one bad
// slot).
func readMetaSlot(raw []byte, slot PageID) (metaPayload, error) {
	h, err := verifyPage(raw, slot, kindMeta)
	if err != nil {
		return metaPayload{}, err
	}
	return decodeMetaPayload(raw[commonHeaderSize : commonHeaderSize+h.payloadLen]), nil
}

// pickActiveMeta chooses the higher-txn-id, checksum-valid slot. If
// neither validates the database is unrecoverable.
func pickActiveMeta(rawA, rawB []byte) (metaPayload, error) {
	a, errA := readMetaSlot(rawA, metaSlotA)
	b, errB := readMetaSlot(rawB, metaSlotB)

	switch {
	case errA == nil && errB == nil:
		if a.txnID >= b.txnID {
			return a, nil
		}
		return b, nil
	case errA == nil:
		return a, nil
	case errB == nil:
		return b, nil
	default:
		return metaPayload{}, wrapError(KindCorrupt, "neither meta slot validates; database is unrecoverable", errA)
	}
}

// inactiveSlot returns the meta slot a writer should target next: the one
// whose on-disk txn id is NOT the currently active one. On the very first
// commit after creation, slot B (txnID 0) is inactive relative to slot A's
// initial txnID 1.
func inactiveSlot(activeTxnSlot PageID) PageID {
	if activeTxnSlot == metaSlotA {
		return metaSlotB
	}
	return metaSlotA
}
