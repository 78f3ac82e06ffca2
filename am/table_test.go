package am

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *transaction.Manager, common.Relation) {
	t.Helper()
	tm := transaction.DefaultManager()
	m := NewManager(tm, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return m, tm, m.CreateTable()
}

// insertCommitted inserts the rows in a committed transaction
func insertCommitted(t *testing.T, m *Manager, tm *transaction.Manager, rel common.Relation, data ...string) []tuple.Tid {
	t.Helper()
	tx := tm.Begin(transaction.DefaultIsolationLevel)
	tids := make([]tuple.Tid, 0, len(data))
	for _, d := range data {
		tid, err := m.Insert(tx, rel, []byte(d))
		require.NoError(t, err)
		tids = append(tids, tid)
	}
	require.NoError(t, tm.Commit(tx))
	return tids
}

func scanData(t *testing.T, versions []Version) []string {
	t.Helper()
	data := make([]string, 0, len(versions))
	for _, v := range versions {
		data = append(data, string(v.Data))
	}
	return data
}

func TestInsertFetch(t *testing.T) {
	m, tm, rel := newTestManager(t)

	tx1 := tm.Begin(transaction.DefaultIsolationLevel)
	tid, err := m.Insert(tx1, rel, []byte("a"))
	require.NoError(t, err)

	// the insert by the current command is not visible yet
	data, _, err := m.Fetch(tx1, rel, tid)
	require.NoError(t, err)
	assert.Nil(t, data)
	tx1.CommandCounterIncrement()
	data, _, err = m.Fetch(tx1, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	tx2 := tm.Begin(transaction.DefaultIsolationLevel)
	data, vis, err := m.Fetch(tx2, rel, tid)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, tx1.ID(), vis.ObsoletingXid)

	require.NoError(t, tm.Commit(tx1))
	tm.StartStatement(tx2)
	data, _, err = m.Fetch(tx2, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestDelete(t *testing.T) {
	m, tm, rel := newTestManager(t)
	tid := insertCommitted(t, m, tm, rel, "a")[0]

	tx1 := tm.Begin(transaction.IsolationLevelReadCommitted)
	tx2 := tm.Begin(transaction.IsolationLevelRepeatableRead)

	res, err := m.Delete(tx1, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMOk, res.Result)

	// deleting again in the same command
	res, err = m.Delete(tx1, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMSelfModified, res.Result)
	assert.Equal(t, tx1.ID(), res.Failure.Xmax)

	res, err = m.Delete(tx2, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMBeingModified, res.Result)
	assert.Equal(t, tx1.ID(), res.Failure.Xmax)
	assert.Equal(t, tid, res.Failure.Tid)

	require.NoError(t, tm.Commit(tx1))

	// repeatable read still sees the row, but cannot delete it anymore
	data, _, err := m.Fetch(tx2, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
	res, err = m.Delete(tx2, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMDeleted, res.Result)

	tx3 := tm.Begin(transaction.DefaultIsolationLevel)
	data, _, err = m.Fetch(tx3, rel, tid)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestUpdate(t *testing.T) {
	m, tm, rel := newTestManager(t)
	oldTid := insertCommitted(t, m, tm, rel, "a")[0]

	tx1 := tm.Begin(transaction.DefaultIsolationLevel)
	tx2 := tm.Begin(transaction.DefaultIsolationLevel)

	newTid, res, err := m.Update(tx1, rel, oldTid, []byte("b"), false)
	require.NoError(t, err)
	require.Equal(t, zedstore.TMOk, res.Result)
	assert.NotEqual(t, oldTid, newTid)

	tx1.CommandCounterIncrement()
	data, _, err := m.Fetch(tx1, rel, newTid)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
	data, vis, err := m.Fetch(tx1, rel, oldTid)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, newTid, vis.NextTid)

	// key share doesn't conflict with the update which doesn't change keys
	res, err = m.LockTuple(tx2, rel, oldTid, tuple.LockModeKeyShare)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMOk, res.Result)

	_, res, err = m.Update(tx2, rel, oldTid, []byte("c"), true)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMBeingModified, res.Result)
	assert.Equal(t, tx1.ID(), res.Failure.Xmax)
	assert.True(t, res.ThisXactHasLock)

	require.NoError(t, tm.Commit(tx1))

	tx3 := tm.Begin(transaction.DefaultIsolationLevel)
	_, res, err = m.Update(tx3, rel, oldTid, []byte("d"), false)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMUpdated, res.Result)
	assert.Equal(t, newTid, res.Failure.Tid)
	assert.Equal(t, newTid, res.NextTid)

	versions, err := m.Scan(tx3, rel, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, scanData(t, versions))
}

func TestLockTuple(t *testing.T) {
	m, tm, rel := newTestManager(t)
	tid := insertCommitted(t, m, tm, rel, "a")[0]

	tx1 := tm.Begin(transaction.DefaultIsolationLevel)
	tx2 := tm.Begin(transaction.DefaultIsolationLevel)
	tx3 := tm.Begin(transaction.DefaultIsolationLevel)

	res, err := m.LockTuple(tx1, rel, tid, tuple.LockModeShare)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMOk, res.Result)

	res, err = m.LockTuple(tx2, rel, tid, tuple.LockModeShare)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMOk, res.Result)

	res, err = m.LockTuple(tx3, rel, tid, tuple.LockModeExclusive)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMBeingModified, res.Result)
	assert.Equal(t, tx2.ID(), res.Failure.Xmax)
	assert.False(t, res.ThisXactHasLock)

	res, err = m.Delete(tx3, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMBeingModified, res.Result)

	// the lock already held is as strong as requested
	res, err = m.LockTuple(tx1, rel, tid, tuple.LockModeKeyShare)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMOk, res.Result)
	assert.True(t, res.ThisXactHasLock)

	require.NoError(t, tm.Abort(tx2))
	require.NoError(t, tm.Commit(tx1))

	res, err = m.LockTuple(tx3, rel, tid, tuple.LockModeExclusive)
	require.NoError(t, err)
	assert.Equal(t, zedstore.TMOk, res.Result)
}

func TestScanSnapshots(t *testing.T) {
	m, tm, rel := newTestManager(t)
	tidA := insertCommitted(t, m, tm, rel, "a")[0]

	tx1 := tm.Begin(transaction.DefaultIsolationLevel)
	_, err := m.Insert(tx1, rel, []byte("b"))
	require.NoError(t, err)
	_, err = m.InsertSpeculative(tx1, rel, []byte("c"), 42)
	require.NoError(t, err)
	res, err := m.Delete(tx1, rel, tidA)
	require.NoError(t, err)
	require.Equal(t, zedstore.TMOk, res.Result)

	tx2 := tm.Begin(transaction.DefaultIsolationLevel)

	tests := []struct {
		name     string
		tx       *transaction.Tx
		snap     snapshot.Snapshot
		expected []string
	}{
		{
			name:     "mvcc",
			tx:       tx2,
			snap:     nil,
			expected: []string{"a"},
		},
		{
			name:     "any",
			tx:       tx2,
			snap:     snapshot.Any{},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "dirty",
			tx:       tx2,
			snap:     snapshot.Dirty{},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "self from the writer",
			tx:       tx1,
			snap:     snapshot.Self{},
			expected: []string{"b", "c"},
		},
		{
			name:     "self from another transaction",
			tx:       tx2,
			snap:     snapshot.Self{},
			expected: []string{"a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versions, err := m.Scan(tt.tx, rel, tt.snap)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, scanData(t, versions))
		})
	}

	t.Run("dirty reports in-progress writers", func(t *testing.T) {
		versions, err := m.Scan(tx2, rel, snapshot.Dirty{})
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, zedstore.DirtyInfo{Xmax: tx1.ID()}, versions[0].Visibility.Dirty)
		assert.Equal(t, zedstore.DirtyInfo{Xmin: tx1.ID()}, versions[1].Visibility.Dirty)
		assert.Equal(t, zedstore.DirtyInfo{Xmin: tx1.ID(), SpeculativeToken: 42}, versions[2].Visibility.Dirty)
	})
}

func TestVacuum(t *testing.T) {
	t.Run("committed delete nobody can see is removed", func(t *testing.T) {
		m, tm, rel := newTestManager(t)
		tids := insertCommitted(t, m, tm, rel, "a", "b")
		tx := tm.Begin(transaction.DefaultIsolationLevel)
		_, err := m.Delete(tx, rel, tids[0])
		require.NoError(t, err)
		require.NoError(t, tm.Commit(tx))

		stats, err := m.Vacuum(rel)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Scanned)
		assert.Equal(t, 1, stats.Removed)
		assert.Equal(t, 0, stats.RecentlyDead)
		assert.Equal(t, 3, stats.UndoDiscarded)
		assert.Equal(t, uint64(4), stats.OldestUndo.Counter)

		reader := tm.Begin(transaction.DefaultIsolationLevel)
		versions, err := m.Scan(reader, rel, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, scanData(t, versions))
		_, _, err = m.Fetch(reader, rel, tids[0])
		assert.ErrorIs(t, err, ErrTupleNotFound)
	})
	t.Run("delete newer than the oldest snapshot is recently dead", func(t *testing.T) {
		m, tm, rel := newTestManager(t)
		tid := insertCommitted(t, m, tm, rel, "a")[0]
		long := tm.Begin(transaction.IsolationLevelRepeatableRead)
		tx := tm.Begin(transaction.DefaultIsolationLevel)
		_, err := m.Delete(tx, rel, tid)
		require.NoError(t, err)
		require.NoError(t, tm.Commit(tx))

		stats, err := m.Vacuum(rel)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Removed)
		assert.Equal(t, 1, stats.RecentlyDead)
		// only the insert is old enough
		assert.Equal(t, 1, stats.UndoDiscarded)

		data, _, err := m.Fetch(long, rel, tid)
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), data)
	})
	t.Run("aborted insert is removed", func(t *testing.T) {
		m, tm, rel := newTestManager(t)
		tx := tm.Begin(transaction.DefaultIsolationLevel)
		_, err := m.Insert(tx, rel, []byte("a"))
		require.NoError(t, err)
		require.NoError(t, tm.Abort(tx))

		stats, err := m.Vacuum(rel)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Removed)
		assert.Equal(t, 1, stats.UndoDiscarded)
	})
	t.Run("in-progress insert is kept", func(t *testing.T) {
		m, tm, rel := newTestManager(t)
		tx := tm.Begin(transaction.DefaultIsolationLevel)
		_, err := m.Insert(tx, rel, []byte("a"))
		require.NoError(t, err)

		stats, err := m.Vacuum(rel)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Removed)
		assert.Equal(t, 0, stats.UndoDiscarded)
	})
}

func TestDiscardUndo(t *testing.T) {
	m, tm, rel := newTestManager(t)
	writer := tm.Begin(transaction.DefaultIsolationLevel)
	tid, err := m.Insert(writer, rel, []byte("a"))
	require.NoError(t, err)

	reader := tm.Begin(transaction.DefaultIsolationLevel)
	data, _, err := m.Fetch(reader, rel, tid)
	require.NoError(t, err)
	assert.Nil(t, data)

	store, err := m.UndoStore(rel)
	require.NoError(t, err)
	latest := store.LatestPtr()
	n, err := m.DiscardUndo(rel, undo.Ptr{Counter: latest.Counter + 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the retired chain is visible to everyone
	data, _, err = m.Fetch(reader, rel, tid)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestErrors(t *testing.T) {
	m, tm, rel := newTestManager(t)
	tx := tm.Begin(transaction.DefaultIsolationLevel)

	_, err := m.Insert(tx, rel+1, []byte("a"))
	assert.ErrorIs(t, err, ErrTableNotFound)
	_, err = m.Vacuum(rel + 1)
	assert.ErrorIs(t, err, ErrTableNotFound)

	missing := tuple.NewTid(7, 7)
	_, err = m.Delete(tx, rel, missing)
	assert.ErrorIs(t, err, ErrTupleNotFound)
	_, _, err = m.Update(tx, rel, missing, nil, false)
	assert.ErrorIs(t, err, ErrTupleNotFound)
	_, err = m.LockTuple(tx, rel, missing, tuple.LockModeShare)
	assert.ErrorIs(t, err, ErrTupleNotFound)
	_, _, err = m.Fetch(tx, rel, missing)
	assert.ErrorIs(t, err, ErrTupleNotFound)
}

func TestRowSlotMemo(t *testing.T) {
	m, tm, rel := newTestManager(t)
	writer := tm.Begin(transaction.DefaultIsolationLevel)
	cid := writer.CommandID()
	tid, err := m.Insert(writer, rel, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, tm.Commit(writer))

	tbl, err := m.getTable(rel)
	require.NoError(t, err)
	r, ok := tbl.getRow(tid)
	require.True(t, ok)
	assert.Equal(t, txid.InvalidTxID, r.snapshotSlot().Xmin)

	// the lookup leaves the inserter on the slot of the row
	reader := tm.Begin(transaction.DefaultIsolationLevel)
	_, _, err = m.Fetch(reader, rel, tid)
	require.NoError(t, err)
	slot := r.snapshotSlot()
	assert.Equal(t, writer.ID(), slot.Xmin)
	assert.Equal(t, cid, slot.Cmin)

	// a new record on top of the chain starts a fresh slot
	res, err := m.LockTuple(reader, rel, tid, tuple.LockModeShare)
	require.NoError(t, err)
	require.Equal(t, zedstore.TMOk, res.Result)
	store, err := m.UndoStore(rel)
	require.NoError(t, err)
	slot = r.snapshotSlot()
	assert.Equal(t, store.LatestPtr(), slot.UndoPtr)
	assert.Equal(t, txid.InvalidTxID, slot.Xmin)

	versions, err := m.Scan(reader, rel, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, scanData(t, versions))
	assert.Equal(t, writer.ID(), r.snapshotSlot().Xmin)
}

func TestDiscardUndoDuringLookups(t *testing.T) {
	m, tm, rel := newTestManager(t)
	data := make([]string, 64)
	for i := range data {
		data[i] = fmt.Sprintf("row%d", i)
	}
	tids := insertCommitted(t, m, tm, rel, data...)
	// committed lockers make the chains longer than one record
	for i := 0; i < 3; i++ {
		locker := tm.Begin(transaction.DefaultIsolationLevel)
		for _, tid := range tids {
			res, err := m.LockTuple(locker, rel, tid, tuple.LockModeShare)
			require.NoError(t, err)
			require.Equal(t, zedstore.TMOk, res.Result)
		}
		require.NoError(t, tm.Commit(locker))
	}
	store, err := m.UndoStore(rel)
	require.NoError(t, err)
	latest := store.LatestPtr()

	reader := tm.Begin(transaction.DefaultIsolationLevel)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for c := uint64(1); c <= latest.Counter+1; c++ {
			_, err := m.DiscardUndo(rel, undo.Ptr{Counter: c})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			for j, tid := range tids {
				got, _, err := m.Fetch(reader, rel, tid)
				if assert.NoError(t, err) {
					assert.Equal(t, data[j], string(got))
				}
			}
			versions, err := m.Scan(reader, rel, nil)
			if assert.NoError(t, err) {
				assert.Equal(t, data, scanData(t, versions))
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, store.Len())
	versions, err := m.Scan(reader, rel, nil)
	require.NoError(t, err)
	assert.Equal(t, data, scanData(t, versions))
}
