package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	tests := []struct {
		state     State
		completed bool
		str       string
	}{
		{state: StateInProgress, completed: false, str: "in progress"},
		{state: StateCommitted, completed: true, str: "committed"},
		{state: StateAborted, completed: true, str: "aborted"},
		{state: State(7), completed: false, str: "State(7)"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.completed, tt.state.IsCompleted())
			assert.Equal(t, tt.str, tt.state.String())
		})
	}
}
