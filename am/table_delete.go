package am

import (
	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction"
	"github.com/pkg/errors"
)

/*
the logic to delete a row (based on the assumption that the row has been already identified with tid)
- check visibility and identify whether the row can be deleted
- if it cannot be deleted, return the result
  - if the row is invisible/updated/deleted, the caller decides what to do
  - if other transaction is also modifying the row, the caller has to wait for it and retry
- if it can be deleted, append delete record on top of the undo chain

Delete deletes the row whose tid is specified in argument
the row stays until vacuum removes it, and it becomes invisible to the later snapshots.
https://github.com/postgres/postgres/blob/63c844a0a5d70cdbd6ae0470d582d39e75ad8d66/src/backend/access/heap/heapam.c#L2670
*/
func (m *Manager) Delete(tx *transaction.Tx, rel common.Relation, tid tuple.Tid) (zedstore.UpdateResult, error) {
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
	res, err := r.satisfiesUpdate(scan, tuple.LockModeExclusive)
	if err != nil {
		return res, errors.Wrap(err, "SatisfiesUpdate failed")
	}
	if res.Result != zedstore.TMOk {
		return res, nil
	}

	ptr, err := t.undo.Append(&undo.Delete{
		Header: undo.Header{Xid: tx.ID(), Prev: chainOnto(r, res)},
		Cid:    tx.CommandID(),
	})
	if err != nil {
		return res, errors.Wrap(err, "Append failed")
	}
	r.setUndoPtr(ptr)
	return res, nil
}
