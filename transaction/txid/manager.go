/*
Transaction id manager manages transaction id.
MVCC (MultiVersion Concurrency Control) needs timestamp and transaction id is used as kind of timestamp.

This is implemented as manager because transaction id is kind of shared resource.
The latest transaction id has to be maintained and lock has to be held when allocating the transaction id.

---
About the nature of transaction id

Transaction id is defined as unsigned 32 bits and this can overflow.
Transaction id can overflow so the space of transaction id has to be treated as a kind of circle.
When two transaction ids are compared, the overflow has to be considered. see IsFollows() method.
*/
package txid

import (
	"sync"
)

type Manager struct {
	// the lock for xid is called XidGenLock in postgres.
	// this lock has to be acquired before generation of new transaction id.
	mu sync.Mutex
	// nextTxID is the transaction id which is alloted next time
	nextTxID TxID
}

// NewManager initializes transaction id manager
func NewManager() *Manager {
	return &Manager{
		nextTxID: FirstTxID,
	}
}

// AllocateNewTxID allocates next transaction id and advances it
// the lock is still held when this returns. the caller has to insert the id into
// snapshot manager's running set and then call ReleaseLock, otherwise a snapshot
// taken in between could treat the new transaction as completed.
// see https://github.com/postgres/postgres/blob/97c61f70d1b97bdfd20dcb1f2b1be42862ec88c2/src/backend/access/transam/README#L272-L284
func (tm *Manager) AllocateNewTxID() TxID {
	tm.mu.Lock()
	txID := tm.nextTxID
	tm.nextTxID = advanceTxID(tm.nextTxID)
	return txID
}

// ReleaseLock releases the lock acquired by AllocateNewTxID
func (tm *Manager) ReleaseLock() {
	tm.mu.Unlock()
}

// NextTxID returns the transaction id which will be allocated next
func (tm *Manager) NextTxID() TxID {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.nextTxID
}
