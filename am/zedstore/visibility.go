package zedstore

import (
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
)

// DirtyInfo is what a Dirty snapshot check found about in-progress writers
type DirtyInfo struct {
	// Xmin is the in-progress inserter. the caller has to wait for it.
	Xmin txid.TxID
	// Xmax is the in-progress deleter
	Xmax             txid.TxID
	SpeculativeToken uint32
}

// Visibility is the result of the read path visibility check
type Visibility struct {
	Visible bool
	// ObsoletingXid is the transaction whose change is the reason why the row is not visible,
	// or whose in-progress change the row is visible in spite of
	ObsoletingXid txid.TxID
	// NextTid is the successor when the row was updated
	NextTid tuple.Tid
	// RecentlyDead is set by NonVacuumable
	RecentlyDead bool
	// Dirty is set by Dirty
	Dirty DirtyInfo
}

func newVisibility() Visibility {
	return Visibility{
		ObsoletingXid: txid.InvalidTxID,
		NextTid:       tuple.InvalidTid,
	}
}

// SatisfiesVisibility checks whether the row of slot is visible to the snapshot of the scan
// the error is returned only for corruption and unsupported snapshots.
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/backend/access/heap/heapam_visibility.c#L1767
func (s *Scan) SatisfiesVisibility(slot *Slot) (Visibility, error) {
	vis := newVisibility()

	switch s.snapshot.(type) {
	case snapshot.Toast, snapshot.HistoricMVCC:
		return vis, errors.Wrapf(ErrUnsupportedSnapshot, "%s", s.snapshot.Kind())
	}

	// the row without undo record has been there before anyone can remember
	if !slot.UndoPtr.IsValid() {
		vis.Visible = true
		return vis, nil
	}

	w := s.newWalker()
	defer s.keepOldest(w)

	var err error
	switch snap := s.snapshot.(type) {
	case *snapshot.MVCC:
		err = s.satisfiesMVCC(w, snap, slot, &vis)
	case snapshot.Self:
		err = s.satisfiesSelf(w, slot, &vis)
	case snapshot.Any:
		err = s.satisfiesAny(w, slot, &vis)
	case snapshot.Dirty:
		err = s.satisfiesDirty(w, slot, &vis)
	case snapshot.NonVacuumable:
		err = s.satisfiesNonVacuumable(w, snap, slot, &vis)
	default:
		return vis, errors.Wrapf(ErrUnsupportedSnapshot, "%T", s.snapshot)
	}
	if err != nil {
		return newVisibility(), err
	}
	return vis, nil
}

// xidIsVisible checks whether the change by xid/cid is visible to the mvcc snapshot
// aborted is set when the transaction is neither in progress nor committed.
func (s *Scan) xidIsVisible(snap *snapshot.MVCC, xid txid.TxID, cid txid.CommandID) (visible, aborted bool) {
	if s.oracle.IsCurrentTxID(xid) {
		// the change by the current command is not visible yet
		return cid < snap.CurCid(), false
	}
	if snap.IsInProgress(xid) {
		return false, false
	}
	if s.oracle.DidCommit(xid) {
		return true, false
	}
	// it must have aborted or crashed
	return false, true
}

// satisfiesMVCC is like HeapTupleSatisfiesMVCC
func (s *Scan) satisfiesMVCC(w *undo.Walker, snap *snapshot.MVCC, slot *Slot, vis *Visibility) error {
	ptr := slot.UndoPtr
	for {
		step, err := w.Fetch(ptr)
		if err != nil {
			return err
		}
		if step.Retired {
			slot.setFrozen()
			vis.Visible = true
			return nil
		}

		switch rec := step.Record.(type) {
		case *undo.Insert:
			visible, aborted := s.xidIsVisible(snap, rec.Xid, rec.Cid)
			if !visible && !aborted {
				vis.ObsoletingXid = rec.Xid
			}
			slot.setWriter(rec.Xid, rec.Cid)
			vis.Visible = visible
			return nil
		case *undo.TupleLock:
			// locks don't matter for readers
			ptr = rec.Prev
		case *undo.Delete:
			visible, aborted := s.xidIsVisible(snap, rec.Xid, rec.Cid)
			if visible {
				return nil
			}
			if !aborted {
				vis.ObsoletingXid = rec.Xid
			}
			ptr = rec.Prev
		case *undo.Update:
			// updated-away row is treated the same as deleted row here
			vis.NextTid = rec.NewTid
			visible, aborted := s.xidIsVisible(snap, rec.Xid, rec.Cid)
			if visible {
				return nil
			}
			if !aborted {
				vis.ObsoletingXid = rec.Xid
			}
			ptr = rec.Prev
		default:
			return unexpectedRecord(step.Record)
		}
	}
}

// satisfiesSelf is like HeapTupleSatisfiesSelf
// the changes by the current transaction are visible including the current command.
func (s *Scan) satisfiesSelf(w *undo.Walker, slot *Slot, vis *Visibility) error {
	ptr := slot.UndoPtr
	for {
		step, err := w.Fetch(ptr)
		if err != nil {
			return err
		}
		if step.Retired {
			slot.setFrozen()
			vis.Visible = true
			return nil
		}

		var xid txid.TxID
		switch rec := step.Record.(type) {
		case *undo.Insert:
			slot.setWriter(rec.Xid, rec.Cid)
			switch {
			case s.oracle.IsCurrentTxID(rec.Xid):
				vis.Visible = true
			case s.oracle.IsInProgress(rec.Xid):
				vis.Visible = false
			default:
				vis.Visible = s.oracle.DidCommit(rec.Xid)
			}
			return nil
		case *undo.TupleLock:
			ptr = rec.Prev
			continue
		case *undo.Delete:
			xid = rec.Xid
		case *undo.Update:
			vis.NextTid = rec.NewTid
			xid = rec.Xid
		default:
			return unexpectedRecord(step.Record)
		}

		switch {
		case s.oracle.IsCurrentTxID(xid):
			// deleted by me
			vis.Visible = false
			return nil
		case s.oracle.IsInProgress(xid):
			vis.Visible = true
			return nil
		case s.oracle.DidCommit(xid):
			vis.Visible = false
			return nil
		}
		// the deleter aborted. the insert decides.
		ptr = step.Record.RecordHeader().Prev
	}
}

// satisfiesAny is like HeapTupleSatisfiesAny
// every row version which was ever inserted is visible.
func (s *Scan) satisfiesAny(w *undo.Walker, slot *Slot, vis *Visibility) error {
	step, err := w.FetchInsert(slot.UndoPtr)
	if err != nil {
		return err
	}
	if step.Retired {
		slot.setFrozen()
	} else {
		rec := step.Record.(*undo.Insert)
		slot.setWriter(rec.Xid, rec.Cid)
	}
	vis.Visible = true
	return nil
}

// satisfiesDirty is like HeapTupleSatisfiesDirty
// the in-progress writers are reported with the result so that the caller can wait for them.
func (s *Scan) satisfiesDirty(w *undo.Walker, slot *Slot, vis *Visibility) error {
	ptr := slot.UndoPtr
	for {
		step, err := w.Fetch(ptr)
		if err != nil {
			return err
		}
		if step.Retired {
			slot.setFrozen()
			vis.Visible = true
			return nil
		}

		var xid txid.TxID
		switch rec := step.Record.(type) {
		case *undo.Insert:
			vis.Dirty.SpeculativeToken = rec.SpeculativeToken
			switch {
			case s.oracle.IsCurrentTxID(rec.Xid):
				// inserted by me
				vis.Visible = true
			case s.oracle.IsInProgress(rec.Xid):
				vis.Dirty.Xmin = rec.Xid
				slot.setWriter(rec.Xid, rec.Cid)
				vis.Visible = true
			default:
				vis.Visible = s.oracle.DidCommit(rec.Xid)
			}
			return nil
		case *undo.TupleLock:
			ptr = rec.Prev
			continue
		case *undo.Delete:
			xid = rec.Xid
		case *undo.Update:
			vis.NextTid = rec.NewTid
			xid = rec.Xid
		default:
			return unexpectedRecord(step.Record)
		}

		switch {
		case s.oracle.IsCurrentTxID(xid):
			vis.Visible = false
			return nil
		case s.oracle.IsInProgress(xid):
			vis.Dirty.Xmax = xid
			slot.Xmax = xid
			vis.Visible = true
			return nil
		case s.oracle.DidCommit(xid):
			vis.Visible = false
			return nil
		}
		ptr = step.Record.RecordHeader().Prev
	}
}

// satisfiesNonVacuumable is like HeapTupleSatisfiesNonVacuumable
// visible means that some transaction may still need the row version, so vacuum must keep it.
func (s *Scan) satisfiesNonVacuumable(w *undo.Walker, snap snapshot.NonVacuumable, slot *Slot, vis *Visibility) error {
	slot.NonVacuumableStatus = NonVacuumableLive

	ptr := slot.UndoPtr
	for {
		step, err := w.Fetch(ptr)
		if err != nil {
			return err
		}
		if step.Retired {
			slot.setFrozen()
			vis.Visible = true
			return nil
		}

		var xid txid.TxID
		switch rec := step.Record.(type) {
		case *undo.Insert:
			slot.setWriter(rec.Xid, rec.Cid)
			vis.Visible = s.insertIsLive(rec.Xid)
			return nil
		case *undo.TupleLock:
			ptr = rec.Prev
			continue
		case *undo.Delete:
			xid = rec.Xid
		case *undo.Update:
			xid = rec.Xid
		default:
			return unexpectedRecord(step.Record)
		}

		if s.oracle.IsInProgress(xid) {
			// delete in progress
			vis.Visible = true
			return nil
		}
		if s.oracle.DidCommit(xid) {
			// the deleter committed, but some snapshot may be old enough to see the row
			if !s.oracle.IsGloballyRemovable(xid, snap.VisTest) {
				slot.NonVacuumableStatus = NonVacuumableRecentlyDead
				vis.RecentlyDead = true
				vis.Visible = true
				return nil
			}
			vis.Visible = false
			return nil
		}

		// the deleter aborted. the row is live only if the insert is.
		ins, err := w.FetchInsert(step.Record.RecordHeader().Prev)
		if err != nil {
			return err
		}
		if ins.Retired {
			vis.Visible = true
			return nil
		}
		vis.Visible = s.insertIsLive(ins.Record.RecordHeader().Xid)
		return nil
	}
}

// insertIsLive checks whether the inserter is in progress or committed
func (s *Scan) insertIsLive(xid txid.TxID) bool {
	if s.oracle.IsInProgress(xid) {
		return true
	}
	return s.oracle.DidCommit(xid)
}
