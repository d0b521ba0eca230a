package validate

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool(4, 16)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(10), ran.Load())
}

func TestWorkerPool_SaturationFailsFast(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	p := NewWorkerPool(1, 1)
	defer func() {
		close(block)
		p.Close()
	}()

	started := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// Queue slot fills, the next submission is rejected immediately.
	require.NoError(t, p.Submit(func() { <-block }))
	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
}

func TestWorkerPool_CloseDrainsInFlightWork(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool(2, 8)

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit(func() { ran.Add(1) }))
	}
	p.Close()

	assert.Equal(t, int32(8), ran.Load())
}
