package snapshot

import (
	"fmt"

	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// Kind is the kind of snapshot
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/utils/snapshot.h#L31-L116
type Kind uint8

const (
	// ordinary snapshot for statements and transactions
	KindMVCC Kind = iota
	// only changes of the current transaction and committed ones are visible
	KindSelf
	// every version is visible
	KindAny
	// toast snapshot. not supported by the undo-based visibility engine
	KindToast
	// like self, and in-progress writers are reported to the caller
	KindDirty
	// historic snapshot for logical decoding. not supported by the undo-based visibility engine
	KindHistoricMVCC
	// decides whether any transaction might still need the version
	KindNonVacuumable
)

func (k Kind) String() string {
	switch k {
	case KindMVCC:
		return "mvcc"
	case KindSelf:
		return "self"
	case KindAny:
		return "any"
	case KindToast:
		return "toast"
	case KindDirty:
		return "dirty"
	case KindHistoricMVCC:
		return "historic-mvcc"
	case KindNonVacuumable:
		return "non-vacuumable"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Snapshot is one of *MVCC, Self, Any, Toast, Dirty, HistoricMVCC and NonVacuumable
type Snapshot interface {
	Kind() Kind
}

// MVCC is snapshot of the running transactions
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/utils/snapshot.h#L121
type MVCC struct {
	// the minimum transaction id which is in progress
	// the number below xmin is expected to be completed
	xmin txid.TxID

	// the first transaction id which had not completed when the snapshot is taken (latest completed + 1)
	// the number equal to or above xmax is expected to be invisible
	xmax txid.TxID

	// the transaction ids which must be in progress
	// allocation of new transaction id and insertion of the id to xip have to be atomic.
	// if those operations are not atomic, then the case below can happen.
	// - allocate transaction id 100
	// - allocate transaction id 101
	// - complete transaction id 101 and commit it
	// - the transaction id 101 becomes latestCompletedID. here, the transaction id 100 is not in xip, so
	// the transaction is considered `completed` afterwards. this leads to wrong behavior.
	xip map[txid.TxID]struct{}

	// changes of the current transaction by commands before curcid are visible
	// https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/utils/snapshot.h#L187
	curcid txid.CommandID
}

// NewMVCC initializes mvcc snapshot
func NewMVCC(xmin, xmax txid.TxID, xip map[txid.TxID]struct{}, curcid txid.CommandID) *MVCC {
	return &MVCC{
		xmin:   xmin,
		xmax:   xmax,
		xip:    xip,
		curcid: curcid,
	}
}

func (snap *MVCC) Kind() Kind {
	return KindMVCC
}

// Xmin returns xmin
func (snap *MVCC) Xmin() txid.TxID {
	return snap.xmin
}

// Xmax returns xmax
func (snap *MVCC) Xmax() txid.TxID {
	return snap.xmax
}

// CurCid returns the current command id
func (snap *MVCC) CurCid() txid.CommandID {
	return snap.curcid
}

// SetCurCid sets the current command id
// this is called when the command counter of the transaction is incremented.
func (snap *MVCC) SetCurCid(cid txid.CommandID) {
	snap.curcid = cid
}

// IsInProgress checks whether transaction id is in progress from perspective of this snapshot
// https://github.com/postgres/postgres/blob/8b5262fa0efdd515a05e533c2a1198e7b666f7d8/src/backend/utils/time/snapmgr.c#L2287
func (snap *MVCC) IsInProgress(txID txid.TxID) bool {
	// if txID < snap.xmin, then txID has been completed(committed/aborted)
	if txID.IsPrecedes(snap.xmin) {
		return false
	}
	// if txID >= snap.xmax, then txID has not been completed from the snapshot's perspective
	if txID.IsFollows(snap.xmax) || txID == snap.xmax {
		return true
	}
	// here, snap.xmin <= txID < snap.xmax
	_, ok := snap.xip[txID]
	return ok
}

// Self is the snapshot which sees the changes of the current transaction and committed transactions
type Self struct{}

func (Self) Kind() Kind { return KindSelf }

// Any is the snapshot which sees every version
type Any struct{}

func (Any) Kind() Kind { return KindAny }

// Toast is the toast snapshot
type Toast struct{}

func (Toast) Kind() Kind { return KindToast }

// Dirty is the snapshot which sees the changes of in-progress transactions.
// the in-progress inserter/deleter found are returned with the visibility result.
type Dirty struct{}

func (Dirty) Kind() Kind { return KindDirty }

// HistoricMVCC is the snapshot used by logical decoding
type HistoricMVCC struct{}

func (HistoricMVCC) Kind() Kind { return KindHistoricMVCC }

// NonVacuumable is the snapshot which sees every version someone might still need
type NonVacuumable struct {
	VisTest GlobalVisTest
}

func (NonVacuumable) Kind() Kind { return KindNonVacuumable }

// GlobalVisTest decides whether the changes of a transaction are visible to everyone
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/backend/storage/ipc/procarray.c#L4086
type GlobalVisTest struct {
	// transactions before horizon are completed and seen as completed by all snapshots
	horizon txid.TxID
}

// NewGlobalVisTest initializes global visibility test
func NewGlobalVisTest(horizon txid.TxID) GlobalVisTest {
	return GlobalVisTest{horizon: horizon}
}

// Horizon returns the horizon
func (v GlobalVisTest) Horizon() txid.TxID {
	return v.horizon
}

// IsRemovableXid checks whether no running or future snapshot can see txID as in progress
func (v GlobalVisTest) IsRemovableXid(txID txid.TxID) bool {
	return txID.IsPrecedes(v.horizon)
}
