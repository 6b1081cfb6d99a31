package engine

import "sync"

// taskQueue is a thread-safe FIFO for execution tasks.
//
// Unbounded so cascading transform chains can enqueue freely without
// blocking a bus handler. Producers are bus subscriptions and the retry
// path; the dispatcher loop is the only consumer. The buffered signal
// channel coalesces wakeups, so one drain pass may serve many enqueues.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []*Task
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]*Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task. Safe from any goroutine; returns false after Close.
func (q *taskQueue) Enqueue(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front task without blocking.
func (q *taskQueue) TryDequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil // release for GC
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Wait returns the wakeup channel for select-based consumers.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further enqueues and wakes blocked waiters.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
