package am

import (
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/pkg/errors"
)

// VacuumStats is the outcome of vacuum
type VacuumStats struct {
	Scanned      int
	Removed      int
	RecentlyDead int
	// UndoDiscarded is the number of undo records truncated
	UndoDiscarded int
	OldestUndo    undo.Ptr
}

/*
Vacuum removes the rows nobody can see anymore, and truncates the undo log

  - classify every row with NonVacuumable snapshot built from the current removal horizon.
    the rows which are surely dead to everyone are removed.
  - truncate the undo prefix whose records were written by completed transactions
    before the horizon. a row whose chain starts below the new oldest undo pointer is
    visible to everyone without the record.

https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/backend/access/heap/vacuumlazy.c
*/
func (m *Manager) Vacuum(rel common.Relation) (VacuumStats, error) {
	var stats VacuumStats
	t, err := m.getTable(rel)
	if err != nil {
		return stats, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	vistest := m.tm.Sm.GlobalVisTest()
	oracle := m.tm.BackgroundOracle()
	scan := m.newScan(t, oracle, snapshot.NonVacuumable{VisTest: vistest})

	var dead []*row
	var serr error
	t.rows.Ascend(func(r *row) bool {
		stats.Scanned++
		vis, err := r.satisfiesVisibility(scan)
		if err != nil {
			serr = errors.Wrapf(err, "SatisfiesVisibility failed at %s", r.tid)
			return false
		}
		if !vis.Visible {
			dead = append(dead, r)
		} else if vis.RecentlyDead {
			stats.RecentlyDead++
		}
		return true
	})
	if serr != nil {
		return stats, serr
	}
	for _, r := range dead {
		t.rows.Delete(r)
	}
	stats.Removed = len(dead)

	before := t.undo.Len()
	oldest, err := t.undo.TrimWhile(func(rec undo.Record) bool {
		xid := rec.RecordHeader().Xid
		return !oracle.IsInProgress(xid) && oracle.IsGloballyRemovable(xid, vistest)
	})
	if err != nil {
		return stats, errors.Wrap(err, "TrimWhile failed")
	}
	stats.UndoDiscarded = before - t.undo.Len()
	stats.OldestUndo = oldest

	m.logger.Info("vacuum finished",
		"rel", uint32(rel),
		"horizon", vistest.Horizon().String(),
		"scanned", stats.Scanned,
		"removed", stats.Removed,
		"recently_dead", stats.RecentlyDead,
		"undo_discarded", stats.UndoDiscarded,
		"oldest_undo", oldest.String(),
	)
	return stats, nil
}

// DiscardUndo truncates the undo log of the table below upTo regardless of the transactions
// the rows whose chain starts below upTo become visible to everyone.
func (m *Manager) DiscardUndo(rel common.Relation, upTo undo.Ptr) (int, error) {
	t, err := m.getTable(rel)
	if err != nil {
		return 0, err
	}
	n := t.undo.Discard(upTo)
	m.logger.Debug("undo discarded", "rel", uint32(rel), "up_to", upTo.String(), "discarded", n)
	return n, nil
}
