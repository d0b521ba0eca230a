package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowsTowardsMax(t *testing.T) {
	t.Parallel()

	b := NewBackoff(100*time.Millisecond, 1*time.Second, 2.0)

	var last time.Duration
	for i := 0; i < 10; i++ {
		last = b.Next()
	}

	// Jitter is +/-20%, so the ceiling is max plus its jitter band.
	assert.LessOrEqual(t, last, 1200*time.Millisecond)
	assert.GreaterOrEqual(t, last, 100*time.Millisecond)
	assert.Equal(t, 10, b.Attempts())
}

func TestBackoff_ResetRestoresMinimum(t *testing.T) {
	t.Parallel()

	b := NewBackoff(100*time.Millisecond, 10*time.Second, 2.0)
	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()

	first := b.Next()
	assert.LessOrEqual(t, first, 120*time.Millisecond)
	assert.Equal(t, 1, b.Attempts())
}

func TestBackoff_NeverBelowMinimum(t *testing.T) {
	t.Parallel()

	b := NewBackoff(500*time.Millisecond, 5*time.Second, 1.5)
	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, b.Next(), 500*time.Millisecond)
	}
}
