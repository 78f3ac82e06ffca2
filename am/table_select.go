package am

import (
	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/transaction"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/pkg/errors"
)

// Version is a row version returned by scan
type Version struct {
	Tid  tuple.Tid
	Data []byte
	// Visibility is the result of the visibility check of the row
	Visibility zedstore.Visibility
}

// Fetch fetches the row at tid with the snapshot of the transaction
// data is nil when the row is not visible. vis tells why, and where the successor is.
// https://github.com/postgres/postgres/blob/8e1db29cdbbd218ab6ba53eea56624553c3bef8c/src/backend/access/heap/heapam_handler.c#L185
func (m *Manager) Fetch(tx *transaction.Tx, rel common.Relation, tid tuple.Tid) ([]byte, zedstore.Visibility, error) {
	t, err := m.getTable(rel)
	if err != nil {
		return nil, zedstore.Visibility{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.getRow(tid)
	if !ok {
		return nil, zedstore.Visibility{}, errors.Wrapf(ErrTupleNotFound, "%s at %s", rel, tid)
	}
	scan := m.newScan(t, m.tm.Oracle(tx), tx.Snapshot())
	vis, err := r.satisfiesVisibility(scan)
	if err != nil {
		return nil, vis, errors.Wrap(err, "SatisfiesVisibility failed")
	}
	if !vis.Visible {
		return nil, vis, nil
	}
	return append([]byte(nil), r.data...), vis, nil
}

// Scan returns the row versions visible to snap in tid order
// when snap is nil, the snapshot of the transaction is used.
// the other snapshots (Self, Any, Dirty, NonVacuumable) are also checked from the perspective of tx.
func (m *Manager) Scan(tx *transaction.Tx, rel common.Relation, snap snapshot.Snapshot) ([]Version, error) {
	t, err := m.getTable(rel)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = tx.Snapshot()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	scan := m.newScan(t, m.tm.Oracle(tx), snap)
	var versions []Version
	var serr error
	t.rows.Ascend(func(r *row) bool {
		vis, err := r.satisfiesVisibility(scan)
		if err != nil {
			serr = errors.Wrapf(err, "SatisfiesVisibility failed at %s", r.tid)
			return false
		}
		if vis.Visible {
			versions = append(versions, Version{
				Tid:        r.tid,
				Data:       append([]byte(nil), r.data...),
				Visibility: vis,
			})
		}
		return true
	})
	if serr != nil {
		return nil, serr
	}
	return versions, nil
}
