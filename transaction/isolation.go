package transaction

// IsolationLevel is transaction isolation level
type IsolationLevel uint

const (
	IsolationLevelReadUncommitted IsolationLevel = iota
	IsolationLevelReadCommitted
	IsolationLevelRepeatableRead
	IsolationLevelSerializable

	// default isolation level is READ COMMITTED
	DefaultIsolationLevel = IsolationLevelReadCommitted
)

// usesSameSnapshot returns whether the isolation level uses the same snapshot during a transaction
func (level IsolationLevel) usesSameSnapshot() bool {
	return level >= IsolationLevelRepeatableRead
}
