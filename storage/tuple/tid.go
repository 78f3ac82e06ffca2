/*
Tuple identifiers and tuple lock modes.

In ppzs a row has exactly one current copy, so a tid identifies the logical row version
the scan is looking at. The history of that row lives in the undo log (see storage/undo),
and an UPDATE leaves the successor's tid in the undo record of the old version.
*/
package tuple

import (
	"encoding/binary"
	"fmt"

	"github.com/HayatoShiba/ppzs/storage/page"
)

// Tid consists of pageID and slot index
// so, with tid, the tuple can  be located
type Tid struct {
	pageID page.PageID
	slot   page.SlotIndex
}

func NewTid(pid page.PageID, slotIndex page.SlotIndex) Tid {
	return Tid{
		pageID: pid,
		slot:   slotIndex,
	}
}

var (
	// InvalidTid is the tid which points to nothing
	InvalidTid = Tid{pageID: page.InvalidPageID, slot: page.InvalidSlotIndex}
	// MovedPartitionsTid is reported as the successor when the row was moved to another partition.
	// the successor cannot be followed in the same relation.
	// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/storage/itemptr.h#L57-L63
	MovedPartitionsTid = Tid{pageID: page.InvalidPageID, slot: page.InvalidSlotIndex - 2}
)

const (
	// TidSize is the encoded size of tid (page id is 4byte, slot index is 4byte)
	TidSize = 8
)

// PageID returns page id
func (t Tid) PageID() page.PageID {
	return t.pageID
}

// SlotIndex returns slot index
func (t Tid) SlotIndex() page.SlotIndex {
	return t.slot
}

// IsValid checks whether the tid points to a row in the relation
func (t Tid) IsValid() bool {
	return t.pageID.IsValid() && t.slot != page.InvalidSlotIndex
}

// IsMovedPartitions checks whether the tid is the moved-partitions marker
func (t Tid) IsMovedPartitions() bool {
	return t == MovedPartitionsTid
}

// Less orders tids by page, then by slot
func (t Tid) Less(than Tid) bool {
	if t.pageID != than.pageID {
		return t.pageID < than.pageID
	}
	return t.slot < than.slot
}

func (t Tid) String() string {
	switch {
	case t == InvalidTid:
		return "(invalid)"
	case t.IsMovedPartitions():
		return "(moved partitions)"
	}
	return fmt.Sprintf("(%d,%d)", t.pageID, t.slot)
}

// AppendTid appends the encoded tid to b
func AppendTid(b []byte, t Tid) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(t.pageID))
	return binary.LittleEndian.AppendUint32(b, uint32(t.slot))
}

// ReadTid decodes tid from the first TidSize bytes of b
func ReadTid(b []byte) Tid {
	pageID := binary.LittleEndian.Uint32(b[0:4])
	slot := binary.LittleEndian.Uint32(b[4:8])
	return Tid{
		pageID: page.PageID(pageID),
		slot:   page.SlotIndex(slot),
	}
}
