package transaction

import (
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// Tx is a transaction
type Tx struct {
	id    txid.TxID
	state State
	level IsolationLevel
	// the command currently executed
	cid      txid.CommandID
	snapshot *snapshot.MVCC
}

// NewTransaction initializes transaction
func NewTransaction(id txid.TxID, level IsolationLevel, snap *snapshot.MVCC) *Tx {
	return &Tx{
		id:       id,
		state:    StateInProgress,
		level:    level,
		cid:      txid.FirstCommandID,
		snapshot: snap,
	}
}

// ID returns transaction id
func (tx *Tx) ID() txid.TxID {
	return tx.id
}

// State returns transaction state
func (tx *Tx) State() State {
	return tx.state
}

// IsolationLevel returns transaction isolation level
func (tx *Tx) IsolationLevel() IsolationLevel {
	return tx.level
}

// SetState sets transaction state
func (tx *Tx) SetState(state State) {
	tx.state = state
}

// Snapshot returns snapshot
func (tx *Tx) Snapshot() *snapshot.MVCC {
	return tx.snapshot
}

// CommandID returns the current command id
// undo records written by the current command carry this.
func (tx *Tx) CommandID() txid.CommandID {
	return tx.cid
}

// CommandCounterIncrement makes the changes of the current command visible to the following commands
// see https://github.com/postgres/postgres/blob/20432f8731404d2cef2a155144aca5ab3ae98e95/src/backend/access/transam/xact.c#L1068
func (tx *Tx) CommandCounterIncrement() {
	tx.cid++
	tx.snapshot.SetCurCid(tx.cid)
}
