package transaction

import (
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// Oracle answers the status of transactions for the visibility engine
// the order of checks matters: a transaction is removed from the running set only after
// clog is updated, so `not in progress` followed by `not committed` means aborted.
type Oracle struct {
	m       *Manager
	current txid.TxID
}

// IsCurrentTxID checks whether txID is the transaction the oracle belongs to
func (o *Oracle) IsCurrentTxID(txID txid.TxID) bool {
	return o.current.IsValid() && txID == o.current
}

// IsInProgress checks whether txID is running right now
func (o *Oracle) IsInProgress(txID txid.TxID) bool {
	return o.m.Sm.IsInProgress(txID)
}

// DidCommit checks whether txID has committed
func (o *Oracle) DidCommit(txID txid.TxID) bool {
	return o.m.Cm.IsTxCommitted(txID)
}

// IsGloballyRemovable checks whether the change of txID is seen the same way by everyone
func (o *Oracle) IsGloballyRemovable(txID txid.TxID, vistest snapshot.GlobalVisTest) bool {
	return vistest.IsRemovableXid(txID)
}
