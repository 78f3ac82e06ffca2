package am

import (
	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction"
	"github.com/pkg/errors"
)

// LockTuple locks the row with mode (SELECT ... FOR UPDATE/SHARE)
// the lock is not kept in a lock table, it is appended to the undo chain as tuple lock record.
// https://github.com/postgres/postgres/blob/8e1db29cdbbd218ab6ba53eea56624553c3bef8c/src/backend/access/heap/heapam_handler.c#L357
func (m *Manager) LockTuple(tx *transaction.Tx, rel common.Relation, tid tuple.Tid, mode tuple.LockMode) (zedstore.UpdateResult, error) {
	t, err := m.getTable(rel)
	if err != nil {
		return zedstore.UpdateResult{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.getRow(tid)
	if !ok {
		return zedstore.UpdateResult{}, errors.Wrapf(ErrTupleNotFound, "%s at %s", rel, tid)
	}

	scan := m.newScan(t, m.tm.Oracle(tx), tx.Snapshot())
	res, err := r.satisfiesUpdate(scan, mode)
	if err != nil {
		return res, errors.Wrap(err, "SatisfiesUpdate failed")
	}
	if res.Result != zedstore.TMOk {
		return res, nil
	}

	ptr, err := t.undo.Append(&undo.TupleLock{
		Header: undo.Header{Xid: tx.ID(), Prev: chainOnto(r, res)},
		Mode:   mode,
	})
	if err != nil {
		return res, errors.Wrap(err, "Append failed")
	}
	r.setUndoPtr(ptr)
	return res, nil
}
