package validate

import (
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrPoolSaturated is returned when both the workers and the queue are
// busy. Callers fail fast instead of queueing unboundedly.
var ErrPoolSaturated = errors.New("validation worker pool saturated")

// Executor runs tasks with bounded concurrency. The gate receives one
// explicitly, so tests can inject a synchronous implementation.
type Executor interface {
	Submit(task func()) error
}

// WorkerPool is a fixed-size worker pool with a bounded submission queue.
type WorkerPool struct {
	tasks chan func()
	group *errgroup.Group
}

// NewWorkerPool starts workers goroutines draining a queue of queueSize
// pending tasks.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &WorkerPool{
		tasks: make(chan func(), queueSize),
		group: new(errgroup.Group),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for task := range p.tasks {
				task()
			}
			return nil
		})
	}
	return p
}

// Submit enqueues a task, or fails immediately with ErrPoolSaturated.
func (p *WorkerPool) Submit(task func()) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Close stops accepting tasks and waits for in-flight work to drain.
func (p *WorkerPool) Close() {
	close(p.tasks)
	_ = p.group.Wait()
}
