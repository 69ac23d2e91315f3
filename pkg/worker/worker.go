package worker

import (
	"context"

	"github.com/volo-project/volo/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type WorkerStatus int

const (
	Idle WorkerStatus = iota
	Working
	Finished
)

// Task is a single unit of work pulled off a pool's queue by one
// of its workers. The task owns its own error handling; a task that
// needs to report a result should do so over a channel it closes over.
type Task func()

type worker struct {
	label         string
	queue         <-chan Task
	currentStatus WorkerStatus
}

func newWorker(label string, queue <-chan Task) *worker {
	return &worker{
		label:         label,
		queue:         queue,
		currentStatus: Idle,
	}
}

// run drains the queue until it is closed or the provided context is
// cancelled. Tasks already started are run to completion; cancellation
// only stops the worker from picking up further tasks.
func (worker *worker) run(ctx context.Context) {
	workerLogger.Emit(logger.NEW, "Starting worker %v\n", worker.label)

	for {
		select {
		case task, ok := <-worker.queue:
			if !ok {
				worker.currentStatus = Finished
				workerLogger.Emit(logger.STOP, "Worker %v stopping, queue closed\n", worker.label)
				return
			}

			worker.currentStatus = Working
			task()
			worker.currentStatus = Idle
		case <-ctx.Done():
			worker.currentStatus = Finished
			workerLogger.Emit(logger.STOP, "Worker %v stopping, context cancelled\n", worker.label)
			return
		}
	}
}

// Status returns the current status of this worker
func (worker *worker) Status() WorkerStatus {
	return worker.currentStatus
}
