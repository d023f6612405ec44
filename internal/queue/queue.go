// Package queue provides the thread-safe FIFO hand-off between the
// controller and its workers.
package queue

import (
	"errors"
	"sync"

	"github.com/seantiz/compute/internal/model"
)

// ErrQueueClosed is returned by Push once the queue has been closed, and by
// Pop once the queue has been closed and drained.
var ErrQueueClosed = errors.New("queue closed")

const defaultQueueCap = 16

// Queue is a FIFO of tasks. A capacity of zero or less makes it unbounded;
// otherwise Push blocks while the queue holds capacity tasks.
// It is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	tasks    []model.Task
	capacity int
	closed   bool
}

// New creates an empty queue.
func New(capacity int) *Queue {
	initial := defaultQueueCap
	if capacity > 0 && capacity < initial {
		initial = capacity
	}
	q := &Queue{
		tasks:    make([]model.Task, 0, initial),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends t to the tail of the queue, blocking while the queue is full.
func (q *Queue) Push(t model.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.capacity > 0 && len(q.tasks) >= q.capacity {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, t)
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the task at the head of the queue. It blocks until
// a task is available or the queue is closed and empty, in which case it
// returns ErrQueueClosed.
func (q *Queue) Pop() (model.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.tasks) == 0 {
		return model.Task{}, ErrQueueClosed
	}

	t := q.tasks[0]
	// Drop the reference held by the backing array.
	q.tasks[0] = model.Task{}
	q.tasks = q.tasks[1:]
	if len(q.tasks) == 0 {
		q.tasks = q.tasks[:0:0]
	}
	q.notFull.Signal()
	return t, nil
}

// Close stops further pushes. Tasks already queued are still delivered.
// Closing a closed queue is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

// Abort closes the queue and discards every pending task, returning them in
// FIFO order. Workers blocked in Pop return ErrQueueClosed.
func (q *Queue) Abort() []model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.tasks
	q.tasks = nil
	q.closeLocked()
	return pending
}

func (q *Queue) closeLocked() {
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether Close or Abort has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
