package zedstore

import (
	"testing"

	"github.com/HayatoShiba/ppzs/storage/page"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/stretchr/testify/require"
)

const (
	me txid.TxID = 9
)

var (
	rowTid  = tuple.NewTid(page.FirstPageID, 1)
	nextTid = tuple.NewTid(page.FirstPageID+1, 4)
)

func newChain(t *testing.T, records ...undo.Record) (*undo.MemStore, undo.Ptr) {
	t.Helper()
	s, head, err := undo.TestingNewChain(records...)
	require.NoError(t, err)
	return s, head
}

func insert(xid txid.TxID, cid txid.CommandID) undo.Record {
	return undo.TestingInsert(xid, cid)
}

func del(xid txid.TxID, cid txid.CommandID) undo.Record {
	return undo.TestingDelete(xid, cid)
}

func update(xid txid.TxID, cid txid.CommandID, keyUpdate bool) undo.Record {
	return &undo.Update{Header: undo.Header{Xid: xid}, Cid: cid, NewTid: nextTid, KeyUpdate: keyUpdate}
}

func lock(xid txid.TxID, mode tuple.LockMode) undo.Record {
	return &undo.TupleLock{Header: undo.Header{Xid: xid}, Mode: mode}
}

// failingStore fails the test when any record is fetched
type failingStore struct {
	t      *testing.T
	oldest undo.Ptr
}

func (s *failingStore) FetchRecord(ptr undo.Ptr) (undo.Record, error) {
	s.t.Fatalf("record %s must not be fetched", ptr)
	return nil, nil
}

func (s *failingStore) OldestUndoPtr(forceRefresh bool) undo.Ptr {
	return s.oldest
}

// lostStore never finds a record and never advances the watermark
type lostStore struct {
	oldest undo.Ptr
}

func (s *lostStore) FetchRecord(ptr undo.Ptr) (undo.Record, error) {
	return nil, undo.ErrRecordNotFound
}

func (s *lostStore) OldestUndoPtr(forceRefresh bool) undo.Ptr {
	return s.oldest
}

// untruncatedStore reports the invalid pointer as the watermark
type untruncatedStore struct {
	*undo.MemStore
}

func (s *untruncatedStore) OldestUndoPtr(forceRefresh bool) undo.Ptr {
	return undo.InvalidPtr
}
