package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriority(t *testing.T) {
	assert.True(t, IsValidPriority("High"))
	assert.True(t, IsValidPriority("2"))
	assert.False(t, IsValidPriority("urgent"))

	assert.Equal(t, 1, PriorityToInt("low"))
	assert.Equal(t, 2, PriorityToInt("med"))
	assert.Equal(t, 3, PriorityToInt("3"))
	assert.Equal(t, 2, PriorityToInt("whatever"))

	for _, p := range []int{1, 2, 3} {
		assert.Equal(t, p, PriorityToInt(PriorityLabel(p)))
	}
}
