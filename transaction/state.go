package transaction

import "fmt"

// State is the lifecycle state of a transaction as the transaction manager sees it.
// the commit log keeps the durable half of it, see clog.Manager
type State uint8

const (
	StateInProgress State = iota
	StateCommitted
	StateAborted
)

// IsCompleted reports whether the transaction can no longer write undo records
func (s State) IsCompleted() bool {
	return s == StateCommitted || s == StateAborted
}

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in progress"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}
