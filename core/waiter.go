package core

import (
	"context"
	"sync"
)

// waitState tags the payload slot of a waiter. Exactly one party writes it,
// and that write happens before the waiter is woken.
type waitState uint8

const (
	waitPending waitState = iota
	waitValue
	waitNoValue
	waitClosed
	waitCancelled
)

// Suspension reasons reported to Metrics.
const (
	suspendPut   = "channel_put"
	suspendGet   = "channel_get"
	suspendJoin  = "join"
	suspendSleep = "sleep"
	suspendYield = "yield"
)

// waiter parks one blocked caller. Inside a Task it carries the Task to
// reschedule; elsewhere it carries a channel the caller blocks on.
type waiter[T any] struct {
	prev, next *waiter[T]
	queued     bool

	task  *Task
	ready chan struct{}

	state waitState
	value T
}

// newWaiter must only be called after checkCaller(ctx), with mu held. If
// ctx belongs to a Task but the caller is another goroutine, it unlocks mu
// and panics.
func newWaiter[T any](ctx context.Context, mu sync.Locker) *waiter[T] {
	if t := CurrentTask(ctx); t != nil {
		t.checkGoroutine(mu)
		return &waiter[T]{task: t}
	}
	return &waiter[T]{ready: make(chan struct{})}
}

// checkCaller panics if ctx belongs to a Task that is not running. It runs
// before any lock is taken; newWaiter finishes the check once the caller is
// known to suspend.
func checkCaller(ctx context.Context) {
	if t := CurrentTask(ctx); t != nil {
		t.checkRunning()
	}
}

// wake resumes the parked caller. The payload must already be written.
func (w *waiter[T]) wake() {
	if w.task != nil {
		w.task.exec.schedule(w.task)
		return
	}
	close(w.ready)
}

// waitQueue is an intrusive FIFO of waiters. Removal of an arbitrary waiter
// is O(1) so that cancellation can unlink it.
type waitQueue[T any] struct {
	head, tail *waiter[T]
	size       int
}

func (q *waitQueue[T]) push(w *waiter[T]) {
	w.prev = q.tail
	w.next = nil
	if q.tail == nil {
		q.head = w
	} else {
		q.tail.next = w
	}
	q.tail = w
	w.queued = true
	q.size++
}

func (q *waitQueue[T]) pop() *waiter[T] {
	w := q.head
	if w == nil {
		return nil
	}
	q.unlink(w)
	return w
}

// remove unlinks w if it is still queued and reports whether it was.
func (q *waitQueue[T]) remove(w *waiter[T]) bool {
	if !w.queued {
		return false
	}
	q.unlink(w)
	return true
}

func (q *waitQueue[T]) unlink(w *waiter[T]) {
	if w.prev == nil {
		q.head = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		q.tail = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.prev, w.next = nil, nil
	w.queued = false
	q.size--
}

// consume splices other onto the end of q and empties other.
func (q *waitQueue[T]) consume(other *waitQueue[T]) {
	if other.head == nil {
		return
	}
	if q.tail == nil {
		q.head = other.head
	} else {
		q.tail.next = other.head
		other.head.prev = q.tail
	}
	q.tail = other.tail
	q.size += other.size
	*other = waitQueue[T]{}
}

func (q *waitQueue[T]) empty() bool { return q.head == nil }

func (q *waitQueue[T]) len() int { return q.size }

// wakeAll tags every waiter with state and wakes them, rescheduling the
// Tasks among them as one Batch. q must no longer be reachable by others.
func (q *waitQueue[T]) wakeAll(state waitState) {
	var batch Batch
	for w := q.pop(); w != nil; w = q.pop() {
		var zero T
		w.value = zero
		w.state = state
		if w.task != nil {
			batch.Push(w.task)
			continue
		}
		close(w.ready)
	}
	batch.Schedule()
}

// park blocks the caller until w is woken. mu must be held and w must be
// linked into a queue guarded by mu; park releases mu. If ctx is cancelled
// first, unlink (called with mu held) removes w and it is tagged
// waitCancelled; if a waker already dequeued w, its result wins.
func park[T any](ctx context.Context, mu *sync.Mutex, w *waiter[T], reason string, unlink func() bool) {
	if t := w.task; t != nil {
		t.exec.cfg.Metrics.RecordTaskSuspended(reason)
		var stop func() bool
		if ctx.Done() != nil {
			stop = context.AfterFunc(ctx, func() {
				mu.Lock()
				if !unlink() {
					mu.Unlock()
					return
				}
				w.state = waitCancelled
				mu.Unlock()
				w.wake()
			})
		}
		t.suspend(mu)
		if stop != nil {
			stop()
		}
		return
	}

	mu.Unlock()
	select {
	case <-w.ready:
	case <-ctx.Done():
		mu.Lock()
		if unlink() {
			w.state = waitCancelled
			mu.Unlock()
			return
		}
		mu.Unlock()
		<-w.ready
	}
}
