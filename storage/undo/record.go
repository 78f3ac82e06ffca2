package undo

import (
	"fmt"

	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// RecordType is the tag of undo record
type RecordType uint8

const (
	// record type 0 is never written so that a zeroed record is detected
	TypeInsert RecordType = iota + 1
	TypeDelete
	TypeUpdate
	TypeTupleLock
)

func (t RecordType) String() string {
	switch t {
	case TypeInsert:
		return "insert"
	case TypeDelete:
		return "delete"
	case TypeUpdate:
		return "update"
	case TypeTupleLock:
		return "tuple lock"
	}
	return fmt.Sprintf("RecordType(%d)", uint8(t))
}

// Record is one of *Insert, *Delete, *Update and *TupleLock
// the visibility engine borrows records for a single lookup and never modifies them.
type Record interface {
	// RecordHeader returns the fields common to all records
	RecordHeader() Header
	// Type returns the tag of the record
	Type() RecordType
}

// Header is the fields common to all undo records
type Header struct {
	// Ptr is where the record is stored. this is assigned by the store on append.
	Ptr Ptr
	// Xid is the transaction which wrote the record
	Xid txid.TxID
	// Prev is the previous record for the same row
	Prev Ptr
}

// RecordHeader returns h
func (h Header) RecordHeader() Header {
	return h
}

// Insert records that the row was inserted
type Insert struct {
	Header
	Cid txid.CommandID
	// SpeculativeToken is set for INSERT ... ON CONFLICT
	SpeculativeToken uint32
}

// Delete records that the row was deleted
type Delete struct {
	Header
	Cid txid.CommandID
	// ChangedPartition is set when the row was moved to another partition by UPDATE
	ChangedPartition bool
}

// Update records that the row was updated away to NewTid
type Update struct {
	Header
	Cid txid.CommandID
	// NewTid is the tid of the successor row version
	NewTid tuple.Tid
	// KeyUpdate is set when key columns were changed
	KeyUpdate bool
}

// TupleLock records that the row was locked
type TupleLock struct {
	Header
	Mode tuple.LockMode
}

func (*Insert) Type() RecordType    { return TypeInsert }
func (*Delete) Type() RecordType    { return TypeDelete }
func (*Update) Type() RecordType    { return TypeUpdate }
func (*TupleLock) Type() RecordType { return TypeTupleLock }
