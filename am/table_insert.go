package am

import (
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction"
	"github.com/pkg/errors"
)

/*
the logic to insert a row
- allocate tid for the new row
- append insert record with the current transaction id and command id
- put the row with the pointer to the insert record

Insert inserts the row and returns its tid
https://github.com/postgres/postgres/blob/8e1db29cdbbd218ab6ba53eea56624553c3bef8c/src/backend/access/heap/heapam_handler.c#L241
*/
func (m *Manager) Insert(tx *transaction.Tx, rel common.Relation, data []byte) (tuple.Tid, error) {
	return m.insert(tx, rel, data, 0)
}

// InsertSpeculative inserts the row for INSERT ... ON CONFLICT
// the token is reported by Dirty snapshot so that the conflicting inserter can be waited for.
// https://github.com/postgres/postgres/blob/8e1db29cdbbd218ab6ba53eea56624553c3bef8c/src/backend/access/heap/heapam_handler.c#L259
func (m *Manager) InsertSpeculative(tx *transaction.Tx, rel common.Relation, data []byte, token uint32) (tuple.Tid, error) {
	return m.insert(tx, rel, data, token)
}

func (m *Manager) insert(tx *transaction.Tx, rel common.Relation, data []byte, token uint32) (tuple.Tid, error) {
	t, err := m.getTable(rel)
	if err != nil {
		return tuple.InvalidTid, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	tid, err := t.insertLocked(tx, data, token)
	if err != nil {
		return tuple.InvalidTid, err
	}
	return tid, nil
}

// insertLocked puts a new row version. the table lock must be held.
func (t *table) insertLocked(tx *transaction.Tx, data []byte, token uint32) (tuple.Tid, error) {
	ptr, err := t.undo.Append(&undo.Insert{
		Header:           undo.Header{Xid: tx.ID(), Prev: undo.InvalidPtr},
		Cid:              tx.CommandID(),
		SpeculativeToken: token,
	})
	if err != nil {
		return tuple.InvalidTid, errors.Wrap(err, "Append failed")
	}
	tid := t.allocateTid()
	t.rows.ReplaceOrInsert(newRow(tid, ptr, data))
	return tid, nil
}
