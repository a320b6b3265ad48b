// Package worker dispatches jobs onto a queue and runs them through the
// kind-appropriate stage sequence on a pool of workers. Completion is
// observable only through the job store, never through the dispatch call.
package worker

import (
	"context"

	"montage/internal/jobs"
)

// Task is one queued unit of work.
type Task struct {
	JobID   string       `json:"job_id"`
	Request jobs.Request `json:"request"`
}

// Queue decouples job submission from execution. Implementations must
// deliver each task to exactly one consumer.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Consume returns a channel the worker pool reads tasks from. The
	// channel closes when the queue shuts down.
	Consume(ctx context.Context) (<-chan Task, error)
	Close() error
}

type memoryQueue struct {
	tasks chan Task
}

// NewMemoryQueue returns an in-process queue with the given buffer size.
func NewMemoryQueue(size int) Queue {
	if size <= 0 {
		size = 64
	}
	return &memoryQueue{tasks: make(chan Task, size)}
}

func (q *memoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Consume(context.Context) (<-chan Task, error) {
	return q.tasks, nil
}

func (q *memoryQueue) Close() error {
	close(q.tasks)
	return nil
}
