package adapter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsContextLength(t *testing.T) {
	assert.True(t, IsContextLength(fmt.Errorf("embed: %w", ErrContextLength)))
	assert.True(t, IsContextLength(errors.New("This model's maximum context length is 8192 tokens")))
	assert.False(t, IsContextLength(errors.New("rate limited")))
	assert.False(t, IsContextLength(nil))
}

func TestTransientStatus(t *testing.T) {
	assert.True(t, TransientStatus(429))
	assert.True(t, TransientStatus(503))
	assert.False(t, TransientStatus(400))
}

func TestBackoff(t *testing.T) {
	assert.Zero(t, Backoff(time.Second, 0))
	assert.Zero(t, Backoff(0, 3))

	for attempt := 1; attempt <= 3; attempt++ {
		want := time.Second * time.Duration(1<<attempt)
		got := Backoff(time.Second, attempt)
		assert.GreaterOrEqual(t, got, want-want/4)
		assert.Less(t, got, want+want/4)
	}

	assert.LessOrEqual(t, Backoff(time.Second, 40), 30*time.Second+30*time.Second/4)
}
