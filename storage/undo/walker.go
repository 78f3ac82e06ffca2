package undo

import (
	"log/slog"

	"github.com/pkg/errors"
)

// Step is the result of fetching one pointer of a chain
// either Retired is set, or Record is the record at the pointer.
type Step struct {
	// Retired is set when the pointer is below the oldest undo pointer.
	// the record is treated as an insert by the frozen transaction.
	Retired bool
	Record  Record
}

/*
Walker fetches the records of one undo chain, newest first.

A walker is created per lookup with the oldest undo pointer the caller knows.
That watermark can be stale: vacuum can truncate the log at any time. So when a record
is not found, the walker refreshes the watermark from the store once. If the pointer
is below the refreshed watermark it has been retired concurrently, otherwise the record
should exist and this is corruption.

The chain is walked iteratively, and prev of a record must be older than the record.
That is the guard against a corrupted chain looping forever. An optional max depth
can be set on top of that.
*/
type Walker struct {
	store    Store
	oldest   Ptr
	maxDepth int
	depth    int
	last     Ptr
	logger   *slog.Logger
}

// NewWalker initializes walker
func NewWalker(store Store, oldest Ptr) *Walker {
	return &Walker{
		store:  store,
		oldest: oldest,
		logger: slog.Default(),
	}
}

// SetMaxDepth limits the number of pointers fetched. 0 means unlimited.
func (w *Walker) SetMaxDepth(n int) {
	w.maxDepth = n
}

// SetLogger sets logger
func (w *Walker) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Oldest returns the oldest undo pointer known to the walker, possibly refreshed
func (w *Walker) Oldest() Ptr {
	return w.oldest
}

// Depth returns how many pointers have been fetched
func (w *Walker) Depth() int {
	return w.depth
}

// IsRetired checks whether ptr is below the watermark without fetching it
func (w *Walker) IsRetired(ptr Ptr) bool {
	return ptr.Counter < w.oldest.Counter
}

// Fetch fetches the record at ptr
func (w *Walker) Fetch(ptr Ptr) (Step, error) {
	w.depth++
	if w.maxDepth > 0 && w.depth > w.maxDepth {
		return Step{}, errors.Wrapf(ErrChainTooLong, "undo record %s at depth %d", ptr, w.depth)
	}
	if w.depth > 1 && ptr.Counter >= w.last.Counter {
		w.logger.Error("undo chain does not go backwards", "ptr", ptr.String(), "referenced_from", w.last.String())
		return Step{}, errors.Wrapf(ErrChainCorrupted, "undo record %s is referenced from %s", ptr, w.last)
	}
	w.last = ptr

	// prev of the first insert of a row is invalid, whatever the watermark is
	if !ptr.IsValid() || w.IsRetired(ptr) {
		return Step{Retired: true}, nil
	}

	rec, err := w.store.FetchRecord(ptr)
	if err == nil {
		return Step{Record: rec}, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return Step{}, errors.Wrap(err, "FetchRecord failed")
	}

	// the log may have been truncated after the caller read the watermark
	w.oldest = w.store.OldestUndoPtr(true)
	w.logger.Debug("oldest undo pointer refreshed", "ptr", ptr.String(), "oldest", w.oldest.String())
	if !w.IsRetired(ptr) {
		w.logger.Error("could not find undo record", "counter", ptr.Counter, "blk", ptr.PageID, "offset", ptr.Offset)
		return Step{}, errors.Wrapf(ErrRecordMissing, "%s", ptr)
	}
	return Step{Retired: true}, nil
}

// FetchInsert follows the chain from ptr until an insert record or a retired pointer
// all other records on the way are skipped.
func (w *Walker) FetchInsert(ptr Ptr) (Step, error) {
	for {
		step, err := w.Fetch(ptr)
		if err != nil {
			return Step{}, err
		}
		if step.Retired {
			return step, nil
		}
		if _, ok := step.Record.(*Insert); ok {
			return step, nil
		}
		ptr = step.Record.RecordHeader().Prev
	}
}
