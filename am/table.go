package am

import (
	"sync"

	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/page"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/google/btree"
)

const (
	// the number of rows placed on one page. tids are allocated in order.
	rowsPerPage = 256
	btreeDegree = 32
)

// row is the current copy of a row version
type row struct {
	tid tuple.Tid
	// readers share the table lock, so the slot has its own.
	// slot.UndoPtr is the head of the undo chain.
	slotMu sync.Mutex
	slot   zedstore.Slot
	data   []byte
}

func newRow(tid tuple.Tid, ptr undo.Ptr, data []byte) *row {
	return &row{
		tid:  tid,
		slot: *zedstore.NewSlot(ptr),
		data: append([]byte(nil), data...),
	}
}

func rowLess(a, b *row) bool {
	return a.tid.Less(b.tid)
}

// undoPtr returns the head of the undo chain
func (r *row) undoPtr() undo.Ptr {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	return r.slot.UndoPtr
}

// setUndoPtr puts a new record on top of the chain. the table lock must be held exclusively.
// the memo on the slot described the previous head, so it is reset.
func (r *row) setUndoPtr(ptr undo.Ptr) {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	r.slot = *zedstore.NewSlot(ptr)
}

// snapshotSlot returns a copy of the slot with what the last lookup memoized
func (r *row) snapshotSlot() zedstore.Slot {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	return r.slot
}

func (r *row) satisfiesVisibility(scan *zedstore.Scan) (zedstore.Visibility, error) {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	return scan.SatisfiesVisibility(&r.slot)
}

func (r *row) satisfiesUpdate(scan *zedstore.Scan, mode tuple.LockMode) (zedstore.UpdateResult, error) {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	return scan.SatisfiesUpdate(r.tid, &r.slot, mode)
}

// table is in-memory table ordered by tid
type table struct {
	// writers hold the lock from the visibility check until the undo record is appended
	mu   sync.RWMutex
	rel  common.Relation
	undo *undo.MemStore
	rows *btree.BTreeG[*row]

	nextPageID page.PageID
	nextSlot   page.SlotIndex
}

func newTable(rel common.Relation, store *undo.MemStore) *table {
	return &table{
		rel:        rel,
		undo:       store,
		rows:       btree.NewG[*row](btreeDegree, rowLess),
		nextPageID: page.FirstPageID,
		nextSlot:   page.FirstSlotIndex,
	}
}

// allocateTid allocates the tid for a new row version
func (t *table) allocateTid() tuple.Tid {
	tid := tuple.NewTid(t.nextPageID, t.nextSlot)
	t.nextSlot++
	if t.nextSlot >= rowsPerPage {
		t.nextPageID++
		t.nextSlot = page.FirstSlotIndex
	}
	return tid
}

// getRow returns the row at tid
func (t *table) getRow(tid tuple.Tid) (*row, bool) {
	return t.rows.Get(&row{tid: tid})
}

// chainOnto returns prev for the new undo record on the row
// the record referenced from the row can be dropped from the chain when nobody needs it.
func chainOnto(r *row, res zedstore.UpdateResult) undo.Ptr {
	if !res.UndoRecordNeeded {
		return undo.InvalidPtr
	}
	return r.undoPtr()
}
