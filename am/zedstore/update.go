package zedstore

import (
	"fmt"

	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
)

// TMResult is the result of SatisfiesUpdate
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/access/tableam.h#L72-L107
type TMResult uint8

const (
	// the row can be updated/deleted/locked
	TMOk TMResult = iota
	// the row is not visible to the snapshot
	TMInvisible
	// the row was updated/deleted by the current command of the current transaction
	TMSelfModified
	// the row was updated by a committed transaction
	TMUpdated
	// the row was deleted by a committed transaction
	TMDeleted
	// the row is being updated/deleted/locked by an in-progress transaction
	TMBeingModified
)

func (r TMResult) String() string {
	switch r {
	case TMOk:
		return "ok"
	case TMInvisible:
		return "invisible"
	case TMSelfModified:
		return "self modified"
	case TMUpdated:
		return "updated"
	case TMDeleted:
		return "deleted"
	case TMBeingModified:
		return "being modified"
	}
	return fmt.Sprintf("TMResult(%d)", uint8(r))
}

// FailureData describes why the row could not be updated
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/access/tableam.h#L109-L130
type FailureData struct {
	// Tid is the successor for Updated, otherwise the row itself
	Tid tuple.Tid
	// Xmax is the transaction which modified or locked the row
	Xmax txid.TxID
	// Cmax is set only for SelfModified
	Cmax txid.CommandID
}

// UpdateResult is the result of SatisfiesUpdate
type UpdateResult struct {
	Result  TMResult
	Failure FailureData
	// NextTid is the successor when the row was updated
	NextTid tuple.Tid
	// ThisXactHasLock is set when the current transaction already holds some lock on the row.
	// the caller must not wait for a stronger lock then, otherwise it deadlocks.
	ThisXactHasLock bool
	// UndoRecordNeeded is false when the record referenced from the row is retired,
	// so the new undo record doesn't have to point to it
	UndoRecordNeeded bool
}

func newUpdateResult() UpdateResult {
	return UpdateResult{
		Result: TMOk,
		Failure: FailureData{
			Tid:  tuple.InvalidTid,
			Xmax: txid.InvalidTxID,
			Cmax: txid.InvalidCommandID,
		},
		NextTid:          tuple.InvalidTid,
		UndoRecordNeeded: true,
	}
}

/*
SatisfiesUpdate checks whether the row at tid can be updated, deleted or locked with mode.
this is like HeapTupleSatisfiesUpdate, but does more. when the row is locked or updated by
another transaction, it checks whether the lock mode is compatible with mode, and returns TMOk if so.
For a genuine update, pass tuple.ImpliedLockMode(keyUpdate) as mode.

The snapshot of the scan has to be mvcc snapshot.
see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/backend/access/heap/heapam_visibility.c#L457
*/
func (s *Scan) SatisfiesUpdate(tid tuple.Tid, slot *Slot, mode tuple.LockMode) (UpdateResult, error) {
	res := newUpdateResult()

	snap, ok := s.snapshot.(*snapshot.MVCC)
	if !ok {
		return res, errors.Wrapf(ErrUnsupportedSnapshot, "update with %s snapshot", s.snapshot.Kind())
	}
	if !mode.IsValid() {
		panic(fmt.Sprintf("unknown tuple lock mode %d", mode))
	}

	w := s.newWalker()
	defer s.keepOldest(w)

	ptr := slot.UndoPtr
	for {
		step, err := w.Fetch(ptr)
		if err != nil {
			return newUpdateResult(), err
		}
		if step.Retired {
			// the record referenced from the row is no longer needed by anyone.
			// a record reached through the chain is, something still points to it.
			if w.Depth() == 1 {
				res.UndoRecordNeeded = false
			}
			slot.setFrozen()
			res.Result = TMOk
			return res, nil
		}

		switch rec := step.Record.(type) {
		case *undo.Insert:
			slot.setWriter(rec.Xid, rec.Cid)
			if s.oracle.IsCurrentTxID(rec.Xid) {
				res.ThisXactHasLock = true
				if rec.Cid >= snap.CurCid() {
					// inserted after the scan started
					res.Result = TMInvisible
					return res, nil
				}
			} else if s.oracle.IsInProgress(rec.Xid) || !s.oracle.DidCommit(rec.Xid) {
				// the inserter has not committed yet, or it aborted
				res.Result = TMInvisible
				return res, nil
			}
			// visible. there might be more locks on the previous records.
			ptr = rec.Prev

		case *undo.TupleLock:
			// the insert is not checked to be visible before the lockers are looked at
			if s.oracle.IsCurrentTxID(rec.Xid) {
				res.ThisXactHasLock = true
				if rec.Mode >= mode {
					// the lock is already held. taking it again would deadlock against
					// anyone waiting for a stronger lock.
					res.Result = TMOk
					return res, nil
				}
			} else if !tuple.Compatible(rec.Mode, mode) && s.oracle.IsInProgress(rec.Xid) {
				return s.beingModified(w, tid, rec.Header, res)
			}
			ptr = rec.Prev

		case *undo.Delete:
			slot.setWriter(rec.Xid, rec.Cid)
			if s.oracle.IsCurrentTxID(rec.Xid) {
				return selfModified(tid, rec.Xid, rec.Cid, snap, res), nil
			}
			if s.oracle.IsInProgress(rec.Xid) {
				return s.beingModified(w, tid, rec.Header, res)
			}
			if !s.oracle.DidCommit(rec.Xid) {
				// the deleter aborted. there may be locks below still held.
				ptr = rec.Prev
				continue
			}
			res.Failure.Xmax = rec.Xid
			if rec.ChangedPartition {
				res.Failure.Tid = tuple.MovedPartitionsTid
				res.NextTid = tuple.InvalidTid
				res.Result = TMUpdated
				return res, nil
			}
			res.Failure.Tid = tid
			res.Result = TMDeleted
			return res, nil

		case *undo.Update:
			slot.setWriter(rec.Xid, rec.Cid)
			res.NextTid = rec.NewTid
			oldMode := tuple.ImpliedLockMode(rec.KeyUpdate)

			if s.oracle.IsCurrentTxID(rec.Xid) {
				res.ThisXactHasLock = true
				if tuple.Compatible(oldMode, mode) {
					return res, nil
				}
				return selfModified(tid, rec.Xid, rec.Cid, snap, res), nil
			}
			if s.oracle.IsInProgress(rec.Xid) {
				if tuple.Compatible(oldMode, mode) {
					return res, nil
				}
				return s.beingModified(w, tid, rec.Header, res)
			}
			if !s.oracle.DidCommit(rec.Xid) {
				ptr = rec.Prev
				continue
			}
			if tuple.Compatible(oldMode, mode) {
				return res, nil
			}
			res.Failure.Tid = rec.NewTid
			res.Failure.Xmax = rec.Xid
			res.Result = TMUpdated
			return res, nil

		default:
			return newUpdateResult(), unexpectedRecord(step.Record)
		}
	}
}

// selfModified decides the result for the row modified by the current transaction
func selfModified(tid tuple.Tid, xid txid.TxID, cid txid.CommandID, snap *snapshot.MVCC, res UpdateResult) UpdateResult {
	res.ThisXactHasLock = true
	if cid < snap.CurCid() {
		// deleted before the scan started
		res.Result = TMInvisible
		return res
	}
	res.Failure = FailureData{Tid: tid, Xmax: xid, Cmax: cid}
	res.Result = TMSelfModified
	return res
}

// beingModified reports the in-progress transaction of h as the blocker
func (s *Scan) beingModified(w *undo.Walker, tid tuple.Tid, h undo.Header, res UpdateResult) (UpdateResult, error) {
	res.Failure = FailureData{Tid: tid, Xmax: h.Xid, Cmax: txid.InvalidCommandID}
	res.Result = TMBeingModified

	// but am I holding a weaker lock already?
	if !res.ThisXactHasLock {
		holding, err := s.amIHoldingLock(w, h.Prev)
		if err != nil {
			return newUpdateResult(), err
		}
		res.ThisXactHasLock = holding
	}
	return res, nil
}

// amIHoldingLock checks whether any record from ptr was written by the current transaction
func (s *Scan) amIHoldingLock(w *undo.Walker, ptr undo.Ptr) (bool, error) {
	for {
		step, err := w.Fetch(ptr)
		if err != nil {
			return false, err
		}
		if step.Retired {
			return false, nil
		}
		h := step.Record.RecordHeader()
		if s.oracle.IsCurrentTxID(h.Xid) {
			return true, nil
		}
		ptr = h.Prev
	}
}
