// Package inmemory is the default queue.Queue: asynchronous, in-process
// delivery. Enqueue hands the job to a buffered channel and returns; a
// bounded pool of worker goroutines per queue name runs the handler.
// Suited to single-process deployments.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/yourorg/csv-ingest/internal/queue"
)

type namedQueue struct {
	jobs chan queue.Job
	done chan struct{}
}

type Queue struct {
	mu        sync.Mutex
	queues    map[string]*namedQueue
	wg        sync.WaitGroup
	closed    bool
}

func New() *Queue {
	return &Queue{queues: make(map[string]*namedQueue)}
}

func (q *Queue) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	nq, ok := q.queues[job.Queue]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("inmemory queue: no subscriber for queue %q", job.Queue)
	}
	select {
	case nq.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts one worker goroutine pulling from queueName's channel,
// wrapping handler in the shared retry policy. SubscribeWithConcurrency
// starts concurrency such workers.
func (q *Queue) Subscribe(queueName string, handler queue.Handler) error {
	return q.SubscribeWithConcurrency(queueName, handler, 1)
}

func (q *Queue) SubscribeWithConcurrency(queueName string, handler queue.Handler, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("inmemory queue: closed")
	}
	nq, ok := q.queues[queueName]
	if !ok {
		nq = &namedQueue{jobs: make(chan queue.Job, 256), done: make(chan struct{})}
		q.queues[queueName] = nq
	}
	q.mu.Unlock()

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case job, ok := <-nq.jobs:
					if !ok {
						return
					}
					_ = queue.RunWithRetry(context.Background(), func(ctx context.Context) error {
						return handler(ctx, job)
					})
				case <-nq.done:
					return
				}
			}
		}()
	}
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for _, nq := range q.queues {
		close(nq.done)
		close(nq.jobs)
	}
	q.wg.Wait()
	return nil
}

var _ queue.Queue = (*Queue)(nil)
