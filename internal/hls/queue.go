package hls

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// task is one queued segment download. seq is its position in the order
// segments were discovered.
type task struct {
	seq uint64
	uri string
}

// taskQueue is a FIFO of pending downloads drained by at most workers
// concurrent goroutines. Pausing stops new downloads from starting while
// pushes continue to accumulate.
type taskQueue struct {
	mu       sync.Mutex
	pending  []task
	capacity int // 0 = unbounded
	paused   bool
	closed   bool
	workers  int
	wake     chan struct{}
}

func newTaskQueue(workers, capacity int) *taskQueue {
	if workers < 1 {
		workers = 1
	}
	return &taskQueue{
		workers:  workers,
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// push appends t. When the queue is full the oldest pending task is evicted
// and returned; when the queue is closed t itself is returned.
func (q *taskQueue) push(t task) (dropped *task) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return &t
	}
	if q.capacity > 0 && len(q.pending) >= q.capacity {
		oldest := q.pending[0]
		q.pending = q.pending[1:]
		dropped = &oldest
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	q.signal()
	return dropped
}

func (q *taskQueue) pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

func (q *taskQueue) resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.signal()
}

func (q *taskQueue) isPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// close rejects further pushes. Pending tasks still drain unless the queue
// is paused, in which case they are discarded and returned.
func (q *taskQueue) close() (discarded []task) {
	q.mu.Lock()
	q.closed = true
	if q.paused {
		discarded = q.pending
		q.pending = nil
	}
	q.mu.Unlock()

	q.signal()
	return discarded
}

// flush removes and returns every pending task.
func (q *taskQueue) flush() []task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *taskQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next blocks until a task may start, the queue is closed and empty, or ctx ends.
func (q *taskQueue) next(ctx context.Context) (task, bool) {
	for {
		q.mu.Lock()
		if !q.paused && len(q.pending) > 0 {
			t := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return t, true
		}
		if q.closed && len(q.pending) == 0 {
			q.mu.Unlock()
			return task{}, false
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return task{}, false
		}
	}
}

// run dispatches tasks to work until the queue is closed and drained, then
// waits for in-flight work to finish.
func (q *taskQueue) run(ctx context.Context, work func(context.Context, task)) {
	var g errgroup.Group
	g.SetLimit(q.workers)

	for {
		t, ok := q.next(ctx)
		if !ok {
			break
		}
		g.Go(func() error {
			work(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
}
