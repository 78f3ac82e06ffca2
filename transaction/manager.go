/*
ppzs adopts MVCC(Multi Version Concurrency Control) for concurrency control.
Unlike postgres heap, the row is not copied on update. Each row has one current copy,
and the old versions are reproduced from the undo log (see storage/undo).
Each undo record carries the transaction id which wrote it, and the visibility of the
row is decided by walking the undo records with the status of those transactions.

MVCC inserts undo records, but the transaction can be aborted finally.
so transaction status has to be stored, and this is called `clog` in postgres.

The benefit of MVCC is `writers don't have to block readers / readers don't have to block writers`
But writers BLOCK writers.
so when the writer A tries to update/delete the row, and other writer B has done update/delete the same row,
and the writer B has not committed yet, then the writer A gets `being modified` and has to wait
the writer B until the writer B eventually commits or aborts the transaction.
waiting is the caller's business. the visibility engine never blocks.
*/
package transaction

import (
	"github.com/HayatoShiba/ppzs/transaction/clog"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
)

type Manager struct {
	Tm *txid.Manager
	Cm *clog.Manager
	Sm *snapshot.Manager
}

func NewManager(tm *txid.Manager, cm *clog.Manager, sm *snapshot.Manager) *Manager {
	return &Manager{
		Tm: tm,
		Cm: cm,
		Sm: sm,
	}
}

// DefaultManager initializes transaction manager with fresh id/clog/snapshot managers
func DefaultManager() *Manager {
	return NewManager(txid.NewManager(), clog.NewManager(), snapshot.NewManager())
}

// Begin begins transaction
// see https://github.com/postgres/postgres/blob/20432f8731404d2cef2a155144aca5ab3ae98e95/src/backend/access/transam/xact.c#L2925
func (m *Manager) Begin(level IsolationLevel) *Tx {
	// allocate new transaction id
	txID := m.Tm.AllocateNewTxID()
	// insert the txid into in progress txids for snapshot isolation
	m.Sm.AddInProgressTxID(txID)
	// after insertion of xip, lock can be released
	m.Tm.ReleaseLock()

	snap := m.Sm.TakeSnapshot(txid.FirstCommandID)
	// store txid and snapshot for vacuum
	m.Sm.AddInProgressTxSnapshot(txID, snap)

	return NewTransaction(txID, level, snap)
}

// StartStatement is called before each statement.
// READ COMMITTED takes a new snapshot, REPEATABLE READ and above keep the first one.
func (m *Manager) StartStatement(tx *Tx) {
	if tx.level.usesSameSnapshot() {
		return
	}
	snap := m.Sm.TakeSnapshot(tx.cid)
	tx.snapshot = snap
	m.Sm.AddInProgressTxSnapshot(tx.id, snap)
}

// Commit commits transaction
func (m *Manager) Commit(tx *Tx) error {
	if tx.State().IsCompleted() {
		return errors.Errorf("transaction %s has already %s", tx.ID(), tx.State())
	}
	// store transaction state to clog
	if err := m.Cm.SetStateCommitted(tx.ID()); err != nil {
		return errors.Wrap(err, "SetStateCommitted failed")
	}
	// remove the txid from in progress txids for snapshot isolation
	m.Sm.CompleteTxID(tx.ID())
	m.Sm.CompleteTxSnapshot(tx.ID())

	tx.SetState(StateCommitted)
	return nil
}

// Abort aborts transaction
func (m *Manager) Abort(tx *Tx) error {
	if tx.State().IsCompleted() {
		return errors.Errorf("transaction %s has already %s", tx.ID(), tx.State())
	}
	// store transaction state to clog
	if err := m.Cm.SetStateAborted(tx.ID()); err != nil {
		return errors.Wrap(err, "SetStateAborted failed")
	}
	// remove the txid from in progress txids for snapshot isolation
	m.Sm.CompleteTxID(tx.ID())
	m.Sm.CompleteTxSnapshot(tx.ID())

	tx.SetState(StateAborted)
	return nil
}

// Oracle returns the transaction status oracle from the perspective of tx
func (m *Manager) Oracle(tx *Tx) *Oracle {
	return &Oracle{m: m, current: tx.ID()}
}

// BackgroundOracle returns the oracle for a process which runs no transaction, like vacuum
func (m *Manager) BackgroundOracle() *Oracle {
	return &Oracle{m: m, current: txid.InvalidTxID}
}
