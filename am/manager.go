/*
Access method
ppzs supports a zedstore-like table access method. (index is not supported)

Each row has one current copy and a pointer to the newest record of its undo chain.
An insert, delete, update or lock of a row appends an undo record on top of the chain,
and the visibility of the row is decided by walking the chain (see am/zedstore).
Delete, update and lock first ask zedstore.Scan.SatisfiesUpdate whether the row can be modified,
and a new undo record is written only when the answer is TMOk. the other results are returned
as they are, and waiting for the blocking transaction is the caller's business.

table access methods are defined below
https://github.com/postgres/postgres/blob/8e1db29cdbbd218ab6ba53eea56624553c3bef8c/src/backend/access/heap/heapam_handler.c#L2532-L2589
*/
package am

import (
	"log/slog"
	"sync"

	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/common"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/pkg/errors"
)

var (
	// ErrTableNotFound is returned when the relation has not been created
	ErrTableNotFound = errors.New("table not found")
	// ErrTupleNotFound is returned when no row exists at the tid
	ErrTupleNotFound = errors.New("tuple not found")
)

type Manager struct {
	tm *transaction.Manager

	mu      sync.RWMutex
	tables  map[common.Relation]*table
	nextRel common.Relation

	recordsPerPage int
	maxChainDepth  int
	logger         *slog.Logger
}

// Option configures access manager
type Option func(*Manager)

// WithRecordsPerPage sets the number of undo records per synthetic undo page
func WithRecordsPerPage(n int) Option {
	return func(m *Manager) {
		m.recordsPerPage = n
	}
}

// WithMaxChainDepth limits the undo chains walked by visibility checks. 0 means unlimited.
func WithMaxChainDepth(n int) Option {
	return func(m *Manager) {
		m.maxChainDepth = n
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager initializes access manager
func NewManager(tm *transaction.Manager, opts ...Option) *Manager {
	m := &Manager{
		tm:             tm,
		tables:         make(map[common.Relation]*table),
		nextRel:        common.FirstRelation,
		recordsPerPage: undo.DefaultRecordsPerPage,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateTable creates a new empty table
func (m *Manager) CreateTable() common.Relation {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel := m.nextRel
	m.nextRel++
	logger := m.logger.With("rel", uint32(rel))
	m.tables[rel] = newTable(rel, undo.NewMemStore(m.recordsPerPage, logger))
	logger.Debug("table created")
	return rel
}

// getTable returns the table of rel
func (m *Manager) getTable(rel common.Relation) (*table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[rel]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "%s", rel)
	}
	return t, nil
}

// UndoStore returns the undo log of the table
func (m *Manager) UndoStore(rel common.Relation) (*undo.MemStore, error) {
	t, err := m.getTable(rel)
	if err != nil {
		return nil, err
	}
	return t.undo, nil
}

// newScan initializes the visibility check of the table from the perspective of oracle
func (m *Manager) newScan(t *table, oracle zedstore.StatusOracle, snap snapshot.Snapshot) *zedstore.Scan {
	return zedstore.NewScan(t.undo, oracle, snap,
		zedstore.WithMaxDepth(m.maxChainDepth),
		zedstore.WithLogger(m.logger),
	)
}
