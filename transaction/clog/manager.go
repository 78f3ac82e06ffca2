/*
Clog manager manages commit log.

Clog stores the status of every transaction: in progress, committed or aborted.
The visibility of a row cannot be determined without clog, because the snapshot only
tells whether the writer was still running when the snapshot is taken. Once the writer
has completed, clog tells whether it committed.

In ppzs clog is kept in memory only. Durability is not the business of the visibility engine.
Pages are allocated lazily when the first status in the page is written.

see https://github.com/postgres/postgres/blob/75f49221c22286104f032827359783aa5f4e6646/src/backend/access/transam/clog.c#L3
*/
package clog

import (
	"sync"

	"github.com/HayatoShiba/ppzs/storage/page"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
)

// Manager is clog manager
type Manager struct {
	mu    sync.RWMutex
	pages map[page.PageID]*statusPage
}

// NewManager initializes clog manager
func NewManager() *Manager {
	return &Manager{
		pages: make(map[page.PageID]*statusPage),
	}
}

func (m *Manager) getState(txID txid.TxID) state {
	loc := locate(txID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[loc.pageID]
	if !ok {
		return stateInProgress
	}
	return p.get(loc)
}

func (m *Manager) setState(txID txid.TxID, st state) error {
	if !txID.IsNormal() {
		return errors.Errorf("cannot set state of special transaction id %s", txID)
	}
	loc := locate(txID)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[loc.pageID]
	if !ok {
		p = &statusPage{}
		m.pages[loc.pageID] = p
	}
	if cur := p.get(loc); cur != stateInProgress && cur != st {
		return errors.Errorf("transaction %s has already completed", txID)
	}
	p.set(loc, st)
	return nil
}

// SetStateCommitted records the transaction has been committed
func (m *Manager) SetStateCommitted(txID txid.TxID) error {
	return m.setState(txID, stateCommitted)
}

// SetStateAborted records the transaction has been aborted
func (m *Manager) SetStateAborted(txID txid.TxID) error {
	return m.setState(txID, stateAborted)
}

// IsTxCommitted checks whether the transaction has been committed
// the frozen transaction is always committed.
func (m *Manager) IsTxCommitted(txID txid.TxID) bool {
	if !txID.IsNormal() {
		return txID == txid.FrozenTxID
	}
	return m.getState(txID) == stateCommitted
}

// IsTxAborted checks whether the transaction has been aborted
func (m *Manager) IsTxAborted(txID txid.TxID) bool {
	if !txID.IsNormal() {
		return false
	}
	return m.getState(txID) == stateAborted
}
