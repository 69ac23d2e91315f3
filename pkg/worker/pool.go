package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Pool owns a fixed set of workers which all drain the same task
// queue. The WaitGroup is automatically controlled by the Pool; consumers
// who need to block until all workers have exited should use Wait.
type Pool struct {
	label   string
	workers []*worker
	wg      sync.WaitGroup
	started bool
}

// NewPool creates a pool of 'size' workers, all consuming from the
// provided queue. The pool takes no ownership of the queue; closing it
// is the producer's job and is one of the two ways to stop the workers
// (the other being context cancellation at Start).
func NewPool(label string, size int, queue <-chan Task) *Pool {
	workers := make([]*worker, 0, size)
	for i := 0; i < size; i++ {
		workers = append(workers, newWorker(fmt.Sprintf("%s-%d", label, i), queue))
	}

	return &Pool{label: label, workers: workers}
}

// Start spawns a goroutine for each worker in the pool. Start does
// NOT block; use Wait to block until all workers have finished.
func (pool *Pool) Start(ctx context.Context) error {
	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}

	pool.started = true
	for _, wk := range pool.workers {
		pool.wg.Add(1)
		go func(w *worker) {
			defer pool.wg.Done()
			w.run(ctx)
		}(wk)
	}

	return nil
}

// Wait blocks until every worker goroutine spawned by Start has returned.
func (pool *Pool) Wait() {
	pool.wg.Wait()
}

// Size returns the number of workers owned by this pool.
func (pool *Pool) Size() int {
	return len(pool.workers)
}
