package am

import (
	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction"
	"github.com/pkg/errors"
)

// Update updates the specified row with the new data
// the process to update the row is `insert the new row version` and `mark the old one updated-away`.
// the update record on the old row points to the new tid, so the readers can follow the chain
// from the old version to the newer one.
// keyUpdate tells whether key columns are changed. this decides the lock mode of the update:
// Exclusive if so, otherwise NoKeyExclusive, which doesn't conflict with KEY SHARE lockers.
// it returns the new tid when the result is TMOk.
// https://github.com/postgres/postgres/blob/8e1db29cdbbd218ab6ba53eea56624553c3bef8c/src/backend/access/heap/heapam_handler.c#L314
func (m *Manager) Update(tx *transaction.Tx, rel common.Relation, tid tuple.Tid, data []byte, keyUpdate bool) (tuple.Tid, zedstore.UpdateResult, error) {
	t, err := m.getTable(rel)
	if err != nil {
		return tuple.InvalidTid, zedstore.UpdateResult{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.getRow(tid)
	if !ok {
		return tuple.InvalidTid, zedstore.UpdateResult{}, errors.Wrapf(ErrTupleNotFound, "%s at %s", rel, tid)
	}

	scan := m.newScan(t, m.tm.Oracle(tx), tx.Snapshot())
	res, err := r.satisfiesUpdate(scan, tuple.ImpliedLockMode(keyUpdate))
	if err != nil {
		return tuple.InvalidTid, res, errors.Wrap(err, "SatisfiesUpdate failed")
	}
	if res.Result != zedstore.TMOk {
		return tuple.InvalidTid, res, nil
	}

	newTid, err := t.insertLocked(tx, data, 0)
	if err != nil {
		return tuple.InvalidTid, res, errors.Wrap(err, "insertLocked failed")
	}
	ptr, err := t.undo.Append(&undo.Update{
		Header:    undo.Header{Xid: tx.ID(), Prev: chainOnto(r, res)},
		Cid:       tx.CommandID(),
		NewTid:    newTid,
		KeyUpdate: keyUpdate,
	})
	if err != nil {
		return tuple.InvalidTid, res, errors.Wrap(err, "Append failed")
	}
	r.setUndoPtr(ptr)
	return newTid, res, nil
}
