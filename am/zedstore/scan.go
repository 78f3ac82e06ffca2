/*
Package zedstore decides the visibility of row versions by walking their undo chains.

A row has exactly one current copy. What happened to it is recorded in the undo log as
a chain of records, newest first: insert, delete, update, and tuple lock. To decide whether
a snapshot can see the row, the chain is walked from the row's undo pointer and the status of
the transaction which wrote each record is checked, one record at a time.
The walk terminates either at an insert record or at a retired pointer.
A retired pointer is below the oldest undo pointer, and it is treated as an insert by
the frozen transaction, which is visible to everyone.

The read path is Scan.SatisfiesVisibility, the write path (update, delete, select for update)
is Scan.SatisfiesUpdate. Neither blocks: waiting for a conflicting transaction is the caller's business.

This is like heapam_visibility.c of postgres
see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/backend/access/heap/heapam_visibility.c
*/
package zedstore

import (
	"log/slog"

	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
)

// ErrUnsupportedSnapshot is returned for snapshot kinds this engine does not implement
var ErrUnsupportedSnapshot = errors.New("snapshot kind not implemented in zedstore")

// StatusOracle answers the status of transactions
type StatusOracle interface {
	// IsCurrentTxID checks whether txID is the transaction of the caller
	IsCurrentTxID(txID txid.TxID) bool
	// IsInProgress checks whether txID is running right now
	IsInProgress(txID txid.TxID) bool
	// DidCommit checks whether txID has committed
	DidCommit(txID txid.TxID) bool
	// IsGloballyRemovable checks whether the change of txID is old enough to be irrelevant to everyone
	IsGloballyRemovable(txID txid.TxID, vistest snapshot.GlobalVisTest) bool
}

// Scan holds what the visibility check of one table scan needs
// a scan is used by one goroutine at a time.
type Scan struct {
	store    undo.Store
	oracle   StatusOracle
	snapshot snapshot.Snapshot

	// the oldest undo pointer known to this scan. this can be stale, and it is
	// refreshed when a record is not found.
	recentOldestUndo undo.Ptr

	maxDepth int
	logger   *slog.Logger
}

// Option configures scan
type Option func(*Scan)

// WithOldestUndo sets the oldest undo pointer the caller read
// by default the store is asked once when the scan is created.
func WithOldestUndo(ptr undo.Ptr) Option {
	return func(s *Scan) {
		s.recentOldestUndo = ptr
	}
}

// WithMaxDepth limits the length of the chains walked. 0 means unlimited.
func WithMaxDepth(n int) Option {
	return func(s *Scan) {
		s.maxDepth = n
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scan) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScan initializes scan
func NewScan(store undo.Store, oracle StatusOracle, snap snapshot.Snapshot, opts ...Option) *Scan {
	s := &Scan{
		store:    store,
		oracle:   oracle,
		snapshot: snap,
		logger:   slog.Default(),
	}
	s.recentOldestUndo = undo.InvalidPtr
	for _, opt := range opts {
		opt(s)
	}
	if !s.recentOldestUndo.IsValid() {
		s.recentOldestUndo = store.OldestUndoPtr(false)
	}
	return s
}

// Snapshot returns the snapshot of the scan
func (s *Scan) Snapshot() snapshot.Snapshot {
	return s.snapshot
}

// RecentOldestUndo returns the oldest undo pointer known to the scan
func (s *Scan) RecentOldestUndo() undo.Ptr {
	return s.recentOldestUndo
}

// newWalker initializes the walker for one lookup
func (s *Scan) newWalker() *undo.Walker {
	w := undo.NewWalker(s.store, s.recentOldestUndo)
	w.SetMaxDepth(s.maxDepth)
	w.SetLogger(s.logger)
	return w
}

// keepOldest keeps the watermark the walker may have refreshed for the following lookups
func (s *Scan) keepOldest(w *undo.Walker) {
	if s.recentOldestUndo.IsPrecedes(w.Oldest()) {
		s.recentOldestUndo = w.Oldest()
	}
}

// unexpectedRecord is returned when the store hands out a record of no known type
func unexpectedRecord(rec undo.Record) error {
	return errors.Wrapf(undo.ErrUnknownRecordType, "%T at %s", rec, rec.RecordHeader().Ptr)
}
