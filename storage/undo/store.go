package undo

import (
	"log/slog"
	"sync"

	"github.com/HayatoShiba/ppzs/storage/page"
	"github.com/google/btree"
	"github.com/pkg/errors"
)

// Store is the undo log of one relation, as seen by the visibility engine
type Store interface {
	// FetchRecord returns the record at ptr, or ErrRecordNotFound.
	// the returned record is a copy owned by the caller for the duration of one lookup.
	FetchRecord(ptr Ptr) (Record, error)
	// OldestUndoPtr returns the oldest undo pointer. records below this have been discarded.
	// when forceRefresh is set, a store caching the watermark has to read the current one.
	OldestUndoPtr(forceRefresh bool) Ptr
}

const (
	// DefaultRecordsPerPage is the number of records placed on one synthetic undo page
	DefaultRecordsPerPage = 64
	// the first counter allocated. counter 0 is InvalidPtr.
	firstCounter uint64 = 1
	btreeDegree         = 32
)

// item is encoded record stored in the btree, ordered by counter
type item struct {
	counter uint64
	data    []byte
}

func itemLess(a, b item) bool {
	return a.counter < b.counter
}

// MemStore is in-memory undo log
// records are kept encoded, so every fetch decodes a fresh copy.
// MemStore always knows the current watermark, so forceRefresh has no effect.
type MemStore struct {
	mu             sync.RWMutex
	records        *btree.BTreeG[item]
	nextCounter    uint64
	oldest         Ptr
	recordsPerPage int
	logger         *slog.Logger
}

// NewMemStore initializes undo log
func NewMemStore(recordsPerPage int, logger *slog.Logger) *MemStore {
	if recordsPerPage <= 0 {
		recordsPerPage = DefaultRecordsPerPage
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &MemStore{
		records:        btree.NewG[item](btreeDegree, itemLess),
		nextCounter:    firstCounter,
		recordsPerPage: recordsPerPage,
		logger:         logger,
	}
	s.oldest = s.ptrFor(firstCounter)
	return s
}

// ptrFor calculates the location of the record from counter
func (s *MemStore) ptrFor(counter uint64) Ptr {
	perPage := uint64(s.recordsPerPage)
	return Ptr{
		Counter: counter,
		PageID:  page.PageID(counter / perPage),
		Offset:  page.SlotIndex(counter % perPage),
	}
}

// Append appends the record and returns where it is stored
// rec.Prev must point to an existing record or be InvalidPtr.
func (s *MemStore) Append(rec Record) (Ptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := rec.RecordHeader().Prev
	if prev.Counter >= s.nextCounter {
		return InvalidPtr, errors.Wrapf(ErrChainCorrupted, "prev %s is not appended yet", prev)
	}

	ptr := s.ptrFor(s.nextCounter)
	data, err := MarshalRecord(rec, ptr)
	if err != nil {
		return InvalidPtr, errors.Wrap(err, "MarshalRecord failed")
	}
	s.records.ReplaceOrInsert(item{counter: ptr.Counter, data: data})
	s.nextCounter++
	return ptr, nil
}

// FetchRecord returns the record at ptr
func (s *MemStore) FetchRecord(ptr Ptr) (Record, error) {
	s.mu.RLock()
	it, ok := s.records.Get(item{counter: ptr.Counter})
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "undo record %s", ptr)
	}
	rec, err := UnmarshalRecord(it.data)
	if err != nil {
		return nil, errors.Wrapf(err, "undo record %s", ptr)
	}
	return rec, nil
}

// OldestUndoPtr returns the oldest undo pointer
func (s *MemStore) OldestUndoPtr(forceRefresh bool) Ptr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oldest
}

// LatestPtr returns the pointer of the newest record, or InvalidPtr if nothing has been appended
func (s *MemStore) LatestPtr() Ptr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nextCounter == firstCounter {
		return InvalidPtr
	}
	return s.ptrFor(s.nextCounter - 1)
}

// Len returns the number of records not discarded yet
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Len()
}

// Discard discards all records below upTo and advances the oldest undo pointer to upTo
// the watermark never moves backwards and never passes the next record to be appended.
// it returns the number of records discarded.
func (s *MemStore) Discard(upTo Ptr) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discardLocked(upTo.Counter)
}

func (s *MemStore) discardLocked(counter uint64) int {
	if counter > s.nextCounter {
		counter = s.nextCounter
	}
	if counter <= s.oldest.Counter {
		return 0
	}
	n := 0
	for {
		first, ok := s.records.Min()
		if !ok || first.counter >= counter {
			break
		}
		s.records.DeleteMin()
		n++
	}
	s.oldest = s.ptrFor(counter)
	s.logger.Debug("undo log truncated", "oldest", s.oldest.String(), "discarded", n)
	return n
}

// TrimWhile discards the longest prefix of records for which removable returns true
// and returns the new oldest undo pointer
func (s *MemStore) TrimWhile(removable func(Record) bool) (Ptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upTo := s.nextCounter
	var derr error
	s.records.Ascend(func(it item) bool {
		rec, err := UnmarshalRecord(it.data)
		if err != nil {
			derr = errors.Wrapf(err, "undo record %d", it.counter)
			return false
		}
		if !removable(rec) {
			upTo = it.counter
			return false
		}
		return true
	})
	if derr != nil {
		return s.oldest, derr
	}
	s.discardLocked(upTo)
	return s.oldest, nil
}

// AppendChain appends the records of one row on top of head, oldest first, linking each record
// to the previous one. it returns the new head.
func (s *MemStore) AppendChain(head Ptr, records ...Record) (Ptr, error) {
	for _, rec := range records {
		switch r := rec.(type) {
		case *Insert:
			r.Prev = head
		case *Delete:
			r.Prev = head
		case *Update:
			r.Prev = head
		case *TupleLock:
			r.Prev = head
		}
		ptr, err := s.Append(rec)
		if err != nil {
			return InvalidPtr, errors.Wrap(err, "Append failed")
		}
		head = ptr
	}
	return head, nil
}
