package services

import (
	"context"
	"sync"
	"time"
)

const (
	queueBuffer     = 16
	writeJobTimeout = 10 * time.Second
)

type writeJob struct {
	op string
	fn func(ctx context.Context) error
}

// writeQueue applies one run's store writes in issue order on a single
// goroutine. Failures go to onError and never stop the queue.
type writeQueue struct {
	jobs    chan writeJob
	done    chan struct{}
	pending sync.WaitGroup
	onError func(op string, err error)

	mu     sync.Mutex
	closed bool
}

func newWriteQueue(onError func(op string, err error)) *writeQueue {
	q := &writeQueue{
		jobs:    make(chan writeJob, queueBuffer),
		done:    make(chan struct{}),
		onError: onError,
	}
	go q.process()
	return q
}

func (q *writeQueue) process() {
	defer close(q.done)
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeJobTimeout)
		if err := job.fn(ctx); err != nil && q.onError != nil {
			q.onError(job.op, err)
		}
		cancel()
		q.pending.Done()
	}
}

// Enqueue schedules fn. It reports false once the queue is closed.
func (q *writeQueue) Enqueue(op string, fn func(ctx context.Context) error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending.Add(1)
	q.jobs <- writeJob{op: op, fn: fn}
	return true
}

// Flush blocks until every job enqueued so far has run.
func (q *writeQueue) Flush() {
	q.pending.Wait()
}

// Close drains the queue and stops the worker.
func (q *writeQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}
