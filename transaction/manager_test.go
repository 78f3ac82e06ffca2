package transaction

import (
	"testing"

	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginCommit(t *testing.T) {
	m := DefaultManager()
	tx := m.Begin(DefaultIsolationLevel)
	assert.Equal(t, txid.FirstTxID, tx.ID())
	assert.Equal(t, StateInProgress, tx.State())
	assert.True(t, m.Sm.IsInProgress(tx.ID()))
	// the transaction sees itself as running
	assert.True(t, tx.Snapshot().IsInProgress(tx.ID()))

	require.NoError(t, m.Commit(tx))
	assert.Equal(t, StateCommitted, tx.State())
	assert.False(t, m.Sm.IsInProgress(tx.ID()))
	assert.True(t, m.Cm.IsTxCommitted(tx.ID()))
	_, ok := m.Sm.GetInProgressTxSnapshot(tx.ID())
	assert.False(t, ok)

	// completed transaction cannot be completed again
	assert.Error(t, m.Commit(tx))
	assert.Error(t, m.Abort(tx))
}

func TestBeginAbort(t *testing.T) {
	m := DefaultManager()
	tx := m.Begin(DefaultIsolationLevel)
	require.NoError(t, m.Abort(tx))
	assert.Equal(t, StateAborted, tx.State())
	assert.False(t, m.Sm.IsInProgress(tx.ID()))
	assert.True(t, m.Cm.IsTxAborted(tx.ID()))
	assert.False(t, m.Cm.IsTxCommitted(tx.ID()))
}

func TestStartStatement(t *testing.T) {
	tests := []struct {
		name     string
		level    IsolationLevel
		expected bool
	}{
		{
			name:     "read committed sees the transaction committed after it began",
			level:    IsolationLevelReadCommitted,
			expected: false,
		},
		{
			name:     "repeatable read keeps the first snapshot",
			level:    IsolationLevelRepeatableRead,
			expected: true,
		},
		{
			name:     "serializable keeps the first snapshot",
			level:    IsolationLevelSerializable,
			expected: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultManager()
			other := m.Begin(DefaultIsolationLevel)
			tx := m.Begin(tt.level)
			require.NoError(t, m.Commit(other))

			m.StartStatement(tx)
			assert.Equal(t, tt.expected, tx.Snapshot().IsInProgress(other.ID()))
		})
	}
}

func TestCommandCounterIncrement(t *testing.T) {
	m := DefaultManager()
	tx := m.Begin(DefaultIsolationLevel)
	assert.Equal(t, txid.FirstCommandID, tx.CommandID())
	assert.Equal(t, txid.FirstCommandID, tx.Snapshot().CurCid())

	tx.CommandCounterIncrement()
	assert.Equal(t, txid.CommandID(1), tx.CommandID())
	assert.Equal(t, txid.CommandID(1), tx.Snapshot().CurCid())

	// read committed takes the new snapshot with the current command id
	m.StartStatement(tx)
	assert.Equal(t, txid.CommandID(1), tx.Snapshot().CurCid())
}

func TestOracle(t *testing.T) {
	m := DefaultManager()
	committed := m.Begin(DefaultIsolationLevel)
	aborted := m.Begin(DefaultIsolationLevel)
	running := m.Begin(DefaultIsolationLevel)
	tx := m.Begin(DefaultIsolationLevel)
	require.NoError(t, m.Commit(committed))
	require.NoError(t, m.Abort(aborted))
	// the snapshots taken before the commit still see committed as running
	assert.Equal(t, committed.ID(), m.Sm.GlobalVisTest().Horizon())
	m.StartStatement(running)
	m.StartStatement(tx)

	o := m.Oracle(tx)
	assert.True(t, o.IsCurrentTxID(tx.ID()))
	assert.False(t, o.IsCurrentTxID(running.ID()))
	assert.True(t, o.IsInProgress(running.ID()))
	assert.True(t, o.IsInProgress(tx.ID()))
	assert.False(t, o.IsInProgress(committed.ID()))
	assert.True(t, o.DidCommit(committed.ID()))
	assert.False(t, o.DidCommit(aborted.ID()))
	assert.True(t, o.DidCommit(txid.FrozenTxID))

	vistest := m.Sm.GlobalVisTest()
	// running transaction holds the horizon
	assert.Equal(t, running.ID(), vistest.Horizon())
	assert.True(t, o.IsGloballyRemovable(committed.ID(), vistest))
	assert.False(t, o.IsGloballyRemovable(running.ID(), vistest))

	bg := m.BackgroundOracle()
	assert.False(t, bg.IsCurrentTxID(tx.ID()))
	assert.False(t, bg.IsCurrentTxID(txid.InvalidTxID))
	assert.True(t, bg.IsGloballyRemovable(committed.ID(), snapshot.NewGlobalVisTest(running.ID())))
}
