package undo

import (
	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// TestingNewChain appends the records to a new store, oldest first, linking each record to the previous one.
// it returns the store and the pointer to the newest record.
func TestingNewChain(records ...Record) (*MemStore, Ptr, error) {
	s := NewMemStore(DefaultRecordsPerPage, nil)
	head, err := s.AppendChain(InvalidPtr, records...)
	return s, head, err
}

// TestingInsert returns insert record
func TestingInsert(xid txid.TxID, cid txid.CommandID) *Insert {
	return &Insert{Header: Header{Xid: xid}, Cid: cid}
}

// TestingDelete returns delete record
func TestingDelete(xid txid.TxID, cid txid.CommandID) *Delete {
	return &Delete{Header: Header{Xid: xid}, Cid: cid}
}
