package txid

import (
	"fmt"
	"math"
)

// TxID is transaction id
// this can overflow
type TxID uint32

// see https://github.com/postgres/postgres/blob/a448e49bcbe40fb72e1ed85af910dd216d45bad8/src/include/access/transam.h#L31-L35
const (
	// invalid transaction id
	InvalidTxID TxID = 0
	// transaction id frozen by vacuum. (this is visible to any other transactions.)
	// frozen transaction id must be smaller than first transaction id
	// an undo pointer below the oldest undo watermark resolves to this transaction id.
	FrozenTxID TxID = 2
	// first transaction id allocated by transaction id manager
	FirstTxID TxID = 3
)

// IsNormal checks whether the transaction is normal
func (id TxID) IsNormal() bool {
	return id >= FirstTxID
}

// IsValid checks whether the transaction id is valid
func (id TxID) IsValid() bool {
	return id != InvalidTxID
}

// IsEqual checks whether the transaction is equal to the compared
func (id TxID) IsEqual(compared TxID) bool {
	return id == compared
}

// IsFollows checks whether txID follows compared (txID >= compared)
// see https://github.com/postgres/postgres/blob/a448e49bcbe40fb72e1ed85af910dd216d45bad8/src/include/access/transam.h#L332-L356
func (id TxID) IsFollows(compared TxID) bool {
	if !id.IsNormal() || !compared.IsNormal() {
		return id >= compared
	}
	diff := id - compared
	// if the diff is bigger than 2^31,
	// then the bigger is treaded as the older one because of conversion to int32.
	return int32(diff) > 0
}

// IsPrecedes checks whether txID precedes compared (txID < compared)
func (id TxID) IsPrecedes(compared TxID) bool {
	if !id.IsNormal() || !compared.IsNormal() {
		return id < compared
	}
	return int32(id-compared) < 0
}

func (id TxID) String() string {
	switch id {
	case InvalidTxID:
		return "invalid"
	case FrozenTxID:
		return "frozen"
	}
	return fmt.Sprintf("%d", uint32(id))
}

// advanceTxID advances transaction id
// this considers wraparound of transaction id.
func advanceTxID(txID TxID) TxID {
	txID++
	if !txID.IsNormal() {
		return FirstTxID
	}
	return txID
}

// CommandID identifies a command(statement) within a transaction
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/c.h#L592
type CommandID uint32

const (
	// first command id in transaction
	FirstCommandID CommandID = 0
	// invalid command id. retired/frozen undo records have this as cmin
	InvalidCommandID CommandID = math.MaxUint32
)
