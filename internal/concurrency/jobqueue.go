// File: internal/concurrency/jobqueue.go
// Package concurrency - bounded FIFO worker pool.
// License: Apache-2.0

package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/nisseweb/nisse/api"
)

type queueState int

const (
	stateOpen queueState = iota
	stateDraining
	stateStopped
)

// JobQueue drains a FIFO of work items on a fixed pool of workers. Work
// submitted by a single caller runs in submission order; between callers the
// order is unspecified. A panicking work item is logged and does not take
// its worker down.
type JobQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	work    *queue.Queue
	state   queueState
	workers sync.WaitGroup

	executed atomic.Int64
	logger   *zap.Logger
}

// NewJobQueue starts workerCount workers draining the queue.
func NewJobQueue(workerCount int, logger *zap.Logger) *JobQueue {
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &JobQueue{
		work:   queue.New(),
		logger: logger.Named("JobQueue"),
	}
	q.cond = sync.NewCond(&q.mu)

	q.workers.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go q.processWork(i)
	}
	return q
}

// Submit enqueues work and wakes one idle worker.
func (q *JobQueue) Submit(work func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != stateOpen {
		return api.ErrQueueClosed
	}
	q.work.Add(work)
	q.cond.Signal()
	return nil
}

// Shutdown moves the queue through Draining to Stopped: workers finish their
// current job, queued-but-unstarted work is discarded, and Shutdown returns
// once every worker has exited.
func (q *JobQueue) Shutdown() {
	q.mu.Lock()
	if q.state != stateOpen {
		q.mu.Unlock()
		return
	}
	q.state = stateDraining
	q.cond.Broadcast()
	q.mu.Unlock()

	q.workers.Wait()

	q.mu.Lock()
	discarded := q.work.Length()
	q.work = queue.New()
	q.state = stateStopped
	q.mu.Unlock()

	if discarded > 0 {
		q.logger.Info("discarded queued work", zap.Int("count", discarded))
	}
}

// Executed returns the number of completed work items.
func (q *JobQueue) Executed() int64 {
	return q.executed.Load()
}

func (q *JobQueue) getNextJob() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.work.Length() == 0 && q.state == stateOpen {
		q.cond.Wait()
	}
	if q.state != stateOpen {
		return nil, false
	}
	return q.work.Remove().(func()), true
}

func (q *JobQueue) processWork(id int) {
	defer q.workers.Done()
	for {
		work, ok := q.getNextJob()
		if !ok {
			return
		}
		q.runJob(work, id)
	}
}

func (q *JobQueue) runJob(work func(), id int) {
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Warn("work panic",
				zap.Int("worker", id),
				zap.Any("panic", rec))
		}
		q.executed.Add(1)
	}()
	work()
}
