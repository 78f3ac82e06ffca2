package undo

import (
	"testing"

	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	s := NewMemStore(4, nil)
	assert.Equal(t, InvalidPtr, s.LatestPtr())
	assert.Equal(t, uint64(1), s.OldestUndoPtr(false).Counter)

	first, err := s.Append(TestingInsert(10, 0))
	require.NoError(t, err)
	assert.Equal(t, Ptr{Counter: 1, PageID: 0, Offset: 1}, first)

	var last Ptr
	for i := 0; i < 4; i++ {
		last, err = s.Append(&TupleLock{Header: Header{Xid: 10, Prev: first}})
		require.NoError(t, err)
	}
	assert.Equal(t, Ptr{Counter: 5, PageID: 1, Offset: 1}, last)
	assert.Equal(t, last, s.LatestPtr())
	assert.Equal(t, 5, s.Len())

	rec, err := s.FetchRecord(first)
	require.NoError(t, err)
	assert.Equal(t, txid.TxID(10), rec.RecordHeader().Xid)
	assert.Equal(t, first, rec.RecordHeader().Ptr)
}

func TestAppendFuturePrev(t *testing.T) {
	s := NewMemStore(DefaultRecordsPerPage, nil)
	_, err := s.Append(&Delete{Header: Header{Xid: 10, Prev: Ptr{Counter: 1}}})
	assert.True(t, errors.Is(err, ErrChainCorrupted))
}

func TestFetchRecordNotFound(t *testing.T) {
	s := NewMemStore(DefaultRecordsPerPage, nil)
	_, err := s.FetchRecord(Ptr{Counter: 3})
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestDiscard(t *testing.T) {
	s, head, err := TestingNewChain(
		TestingInsert(10, 0),
		TestingDelete(11, 0),
		TestingDelete(12, 0),
	)
	require.NoError(t, err)

	t.Run("discard below", func(t *testing.T) {
		n := s.Discard(Ptr{Counter: 3})
		assert.Equal(t, 2, n)
		assert.Equal(t, uint64(3), s.OldestUndoPtr(true).Counter)
		_, err := s.FetchRecord(Ptr{Counter: 1})
		assert.True(t, errors.Is(err, ErrRecordNotFound))
		_, err = s.FetchRecord(head)
		assert.NoError(t, err)
	})
	t.Run("watermark never moves backwards", func(t *testing.T) {
		n := s.Discard(Ptr{Counter: 2})
		assert.Equal(t, 0, n)
		assert.Equal(t, uint64(3), s.OldestUndoPtr(false).Counter)
	})
	t.Run("watermark never passes the next record", func(t *testing.T) {
		n := s.Discard(Ptr{Counter: 100})
		assert.Equal(t, 1, n)
		assert.Equal(t, uint64(4), s.OldestUndoPtr(false).Counter)
		assert.Equal(t, 0, s.Len())
	})
}

func TestTrimWhile(t *testing.T) {
	s, _, err := TestingNewChain(
		TestingInsert(10, 0),
		TestingDelete(11, 0),
		TestingDelete(12, 0),
		TestingDelete(11, 1),
	)
	require.NoError(t, err)

	oldest, err := s.TrimWhile(func(rec Record) bool {
		return rec.RecordHeader().Xid != 12
	})
	require.NoError(t, err)
	// records after the first kept one stay even if removable
	assert.Equal(t, uint64(3), oldest.Counter)
	assert.Equal(t, 2, s.Len())

	oldest, err = s.TrimWhile(func(Record) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, uint64(5), oldest.Counter)
	assert.Equal(t, 0, s.Len())
}

func TestAppendChain(t *testing.T) {
	s := NewMemStore(DefaultRecordsPerPage, nil)
	other, err := s.Append(TestingInsert(3, 0))
	require.NoError(t, err)

	head, err := s.AppendChain(InvalidPtr, TestingInsert(4, 0), &TupleLock{Header: Header{Xid: 5}}, TestingDelete(6, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), head.Counter)

	// newest first, and the chain doesn't reach the other row
	var xids []txid.TxID
	for ptr := head; ptr.IsValid(); {
		rec, err := s.FetchRecord(ptr)
		require.NoError(t, err)
		xids = append(xids, rec.RecordHeader().Xid)
		require.NotEqual(t, other, rec.RecordHeader().Prev)
		ptr = rec.RecordHeader().Prev
	}
	assert.Equal(t, []txid.TxID{6, 5, 4}, xids)
}
