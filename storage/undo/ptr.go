/*
Undo log

ppzs keeps one current copy per logical row. The history of the row is threaded through
the undo log: every row carries a pointer to the newest undo record describing a change to
it, and every record points to the previous record for the same row (newest first).

	row.undoPtr -> TupleLock -> Update(aborted) -> Insert -> (invalid)

Records are immutable once written. The log is truncated from the oldest end by vacuum.
Everything below the oldest undo pointer (the watermark) is gone, and a pointer below the
watermark is treated as an insert by the frozen transaction, visible to everyone, without
being dereferenced. see storage/undo/walker.go for the traversal rule.

Pointers are totally ordered by counter. The page and slot are the physical location
of the record and only used for diagnostics here.
*/
package undo

import (
	"fmt"

	"github.com/HayatoShiba/ppzs/storage/page"
)

// Ptr points to undo record
type Ptr struct {
	// Counter increases monotonically as records are appended
	Counter uint64
	// PageID is the undo page the record is stored on
	PageID page.PageID
	// Offset is the position of the record within the page
	Offset page.SlotIndex
}

// InvalidPtr is the pointer to nothing. the oldest record of a chain has this as prev.
var InvalidPtr = Ptr{}

// IsValid checks whether the pointer points to a record
func (p Ptr) IsValid() bool {
	return p.Counter != 0
}

// IsPrecedes checks whether p was appended before compared
func (p Ptr) IsPrecedes(compared Ptr) bool {
	return p.Counter < compared.Counter
}

func (p Ptr) String() string {
	return fmt.Sprintf("%d at blk %d offset %d", p.Counter, p.PageID, p.Offset)
}
