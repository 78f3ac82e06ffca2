/*
Postgres implements snapshot isolation.
Snapshot is used for MVCC and this is deeply related with transaction isolation level.
Snapshot stores the information about the status of all transactions when the snapshot is taken.
With snapshot, transaction can determine whether the row version is visible/updatable or not.

----
About snapshot

Snapshot stores transaction ids whose status is in progress when the snapshot is taken.
With this functionality, the transaction can avoid seeing the row that hasn't been inserted when the transaction began.

----
About transaction isolation level

Postgres determines when snapshot is taken for each transaction isolation level.
  - Repeatable Read: snapshot is taken when transaction starts, and
    the same snapshot is used during transaction.
  - Read Committed: snapshot is taken when each query statement is executed.

see for more detail: https://github.com/postgres/postgres/blob/20432f8731404d2cef2a155144aca5ab3ae98e95/src/include/access/xact.h#L33-L52

---
About visibility

With snapshot, transaction can identify whether
another transaction which wrote the undo record is `in progress` or `already completed`.
But, when it is already completed, it cannot identify whether the transaction has been committed or aborted.
So clog has to be checked to determine the commit status of the transaction, then the visibility can be determined.
The visibility-related functions are defined at am/zedstore.

---
About the removal horizon

Vacuum must not remove what a running snapshot can still see. The oldest xmin among the running
transactions and their snapshots is the horizon, and the changes of transactions before it are
seen the same way by everyone. see GlobalVisTest.

the snapshot is taken with GetSnapshotData() function
https://github.com/postgres/postgres/blob/8242752f9c104030085cb167e6e1dd5bed481360/src/backend/storage/ipc/procarray.c#L2214
*/
package snapshot

import (
	"sync"

	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/emirpasic/gods/sets/treeset"
)

// Manager is snapshot manager
type Manager struct {
	mu sync.RWMutex

	// the transaction ids in progress, ordered from the oldest
	inProgressTxIDs *treeset.Set

	// the latest transaction id which has been completed
	latestCompletedTxID txid.TxID

	// the snapshots used by the transactions in progress. this is for vacuum
	inProgressTxSnapshots map[txid.TxID]*MVCC
}

// txIDComparator orders transaction ids considering wraparound
func txIDComparator(a, b interface{}) int {
	x := a.(txid.TxID)
	y := b.(txid.TxID)
	switch {
	case x == y:
		return 0
	case x.IsPrecedes(y):
		return -1
	default:
		return 1
	}
}

// NewManager initializes snapshot manager
func NewManager() *Manager {
	return &Manager{
		inProgressTxIDs:       treeset.NewWith(txIDComparator),
		latestCompletedTxID:   txid.InvalidTxID,
		inProgressTxSnapshots: make(map[txid.TxID]*MVCC),
	}
}

// AddInProgressTxID adds the transaction id to in-progress transaction ids
// this has to be called while txid.Manager's lock is held.
func (m *Manager) AddInProgressTxID(txID txid.TxID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgressTxIDs.Add(txID)
}

// CompleteTxID removes the transaction id from in-progress transaction ids
// this has to be called after the state is stored in clog.
func (m *Manager) CompleteTxID(txID txid.TxID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgressTxIDs.Remove(txID)
	if !m.latestCompletedTxID.IsValid() || txID.IsFollows(m.latestCompletedTxID) {
		m.latestCompletedTxID = txID
	}
}

// IsInProgress checks whether the transaction is in progress right now
// unlike MVCC.IsInProgress this is not the view of any snapshot.
// see https://github.com/postgres/postgres/blob/8242752f9c104030085cb167e6e1dd5bed481360/src/backend/storage/ipc/procarray.c#L1380
func (m *Manager) IsInProgress(txID txid.TxID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inProgressTxIDs.Contains(txID)
}

// nextXmaxLocked returns latest completed + 1
func (m *Manager) nextXmaxLocked() txid.TxID {
	if !m.latestCompletedTxID.IsNormal() {
		return txid.FirstTxID
	}
	xmax := m.latestCompletedTxID + 1
	if !xmax.IsNormal() {
		return txid.FirstTxID
	}
	return xmax
}

// oldestInProgressLocked returns the oldest transaction id in progress
func (m *Manager) oldestInProgressLocked() (txid.TxID, bool) {
	it := m.inProgressTxIDs.Iterator()
	if !it.First() {
		return txid.InvalidTxID, false
	}
	return it.Value().(txid.TxID), true
}

// TakeSnapshot takes snapshot
func (m *Manager) TakeSnapshot(curcid txid.CommandID) *MVCC {
	m.mu.RLock()
	defer m.mu.RUnlock()

	xmax := m.nextXmaxLocked()
	xmin := xmax
	if oldest, ok := m.oldestInProgressLocked(); ok && oldest.IsPrecedes(xmin) {
		xmin = oldest
	}
	xip := make(map[txid.TxID]struct{}, m.inProgressTxIDs.Size())
	for _, v := range m.inProgressTxIDs.Values() {
		xip[v.(txid.TxID)] = struct{}{}
	}
	return NewMVCC(xmin, xmax, xip, curcid)
}

// AddInProgressTxSnapshot registers the snapshot used by the transaction
func (m *Manager) AddInProgressTxSnapshot(txID txid.TxID, snap *MVCC) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgressTxSnapshots[txID] = snap
}

// GetInProgressTxSnapshot returns the snapshot registered by the transaction
func (m *Manager) GetInProgressTxSnapshot(txID txid.TxID) (*MVCC, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.inProgressTxSnapshots[txID]
	return snap, ok
}

// CompleteTxSnapshot unregisters the snapshot used by the transaction
func (m *Manager) CompleteTxSnapshot(txID txid.TxID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inProgressTxSnapshots, txID)
}

// GlobalVisTest returns the visibility test with the current removal horizon
func (m *Manager) GlobalVisTest() GlobalVisTest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	horizon := m.nextXmaxLocked()
	if oldest, ok := m.oldestInProgressLocked(); ok && oldest.IsPrecedes(horizon) {
		horizon = oldest
	}
	for _, snap := range m.inProgressTxSnapshots {
		if snap.xmin.IsPrecedes(horizon) {
			horizon = snap.xmin
		}
	}
	return NewGlobalVisTest(horizon)
}
