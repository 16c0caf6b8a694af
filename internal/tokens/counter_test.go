package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic(t *testing.T) {
	h := Heuristic{}
	assert.Equal(t, 0, h.Count(""))
	assert.Equal(t, 1, h.Count("abc"))
	assert.Equal(t, 1, h.Count("abcd"))
	assert.Equal(t, 2, h.Count("abcde"))
}

func TestNew_CountsTokens(t *testing.T) {
	c := New("gpt-4o-mini")

	assert.Equal(t, 0, c.Count(""))
	short := c.Count("hello")
	long := c.Count("hello world, this sentence has quite a few more tokens in it")
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}
