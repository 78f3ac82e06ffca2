package zedstore

import (
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// StaticOracle answers from fixed sets of transaction ids
// the transactions neither in progress nor committed are aborted.
// this is used to evaluate a chain offline, without a running transaction manager.
type StaticOracle struct {
	Current    txid.TxID
	InProgress map[txid.TxID]struct{}
	Committed  map[txid.TxID]struct{}
}

// NewStaticOracle initializes static oracle
func NewStaticOracle(current txid.TxID, inProgress, committed []txid.TxID) *StaticOracle {
	o := &StaticOracle{
		Current:    current,
		InProgress: make(map[txid.TxID]struct{}, len(inProgress)),
		Committed:  make(map[txid.TxID]struct{}, len(committed)),
	}
	for _, xid := range inProgress {
		o.InProgress[xid] = struct{}{}
	}
	for _, xid := range committed {
		o.Committed[xid] = struct{}{}
	}
	return o
}

func (o *StaticOracle) IsCurrentTxID(txID txid.TxID) bool {
	return o.Current.IsValid() && txID == o.Current
}

func (o *StaticOracle) IsInProgress(txID txid.TxID) bool {
	// the current transaction is running too
	if o.IsCurrentTxID(txID) {
		return true
	}
	_, ok := o.InProgress[txID]
	return ok
}

func (o *StaticOracle) DidCommit(txID txid.TxID) bool {
	if txID == txid.FrozenTxID {
		return true
	}
	_, ok := o.Committed[txID]
	return ok
}

func (o *StaticOracle) IsGloballyRemovable(txID txid.TxID, vistest snapshot.GlobalVisTest) bool {
	return vistest.IsRemovableXid(txID)
}

// Snapshot returns the mvcc snapshot which sees the committed transactions as completed
// and the others, including the current one, as running
func (o *StaticOracle) Snapshot(curcid txid.CommandID) *snapshot.MVCC {
	xmin, xmax := txid.InvalidTxID, txid.FirstTxID
	xip := make(map[txid.TxID]struct{})
	for xid := range o.InProgress {
		xip[xid] = struct{}{}
	}
	if o.Current.IsValid() {
		xip[o.Current] = struct{}{}
	}
	ids := make([]txid.TxID, 0, len(xip)+len(o.Committed))
	for xid := range xip {
		ids = append(ids, xid)
	}
	for xid := range o.Committed {
		ids = append(ids, xid)
	}
	for _, xid := range ids {
		if !xid.IsNormal() {
			continue
		}
		if !xmax.IsFollows(xid) {
			xmax = xid + 1
		}
	}
	for xid := range xip {
		if !xmin.IsValid() || xid.IsPrecedes(xmin) {
			xmin = xid
		}
	}
	if !xmin.IsValid() {
		xmin = xmax
	}
	return snapshot.NewMVCC(xmin, xmax, xip, curcid)
}
