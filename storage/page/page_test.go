package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageIDIsValid(t *testing.T) {
	tests := []struct {
		name     string
		id       PageID
		expected bool
	}{
		{name: "first page", id: FirstPageID, expected: true},
		{name: "max page", id: MaxPageID, expected: true},
		{name: "invalid page", id: InvalidPageID, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.id.IsValid())
		})
	}
}
