package zedstore

import (
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// NonVacuumableStatus is the classification of the last NonVacuumable check
type NonVacuumableStatus uint8

const (
	NonVacuumableLive NonVacuumableStatus = iota
	// the row was deleted by a committed transaction, but some snapshot may still see it
	NonVacuumableRecentlyDead
)

func (st NonVacuumableStatus) String() string {
	if st == NonVacuumableRecentlyDead {
		return "recently dead"
	}
	return "live"
}

// Slot is the visibility information attached to a row version
// the visibility check memoizes the insert xid/cid on it.
// this is safe because the insert of a completed transaction never changes.
type Slot struct {
	// UndoPtr is the head of the undo chain of the row
	UndoPtr undo.Ptr
	Xmin    txid.TxID
	Cmin    txid.CommandID
	Xmax    txid.TxID

	NonVacuumableStatus NonVacuumableStatus
}

// NewSlot initializes slot for the row whose undo chain starts at ptr
func NewSlot(ptr undo.Ptr) *Slot {
	return &Slot{
		UndoPtr: ptr,
		Xmin:    txid.InvalidTxID,
		Cmin:    txid.InvalidCommandID,
		Xmax:    txid.InvalidTxID,
	}
}

// setFrozen records that the chain reached a retired pointer
func (slot *Slot) setFrozen() {
	slot.Xmin = txid.FrozenTxID
	slot.Cmin = txid.InvalidCommandID
}

func (slot *Slot) setWriter(xid txid.TxID, cid txid.CommandID) {
	slot.Xmin = xid
	slot.Cmin = cid
}
