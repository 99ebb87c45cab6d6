package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// sleeper is a Task parked until a deadline.
type sleeper struct {
	deadline time.Time
	w        *waiter[struct{}]
	index    int // for heap interface; -1 once popped or removed
}

// sleeperHeap implements heap.Interface
type sleeperHeap []*sleeper

func (h sleeperHeap) Len() int           { return len(h) }
func (h sleeperHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h sleeperHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *sleeperHeap) Push(x any) {
	n := len(*h)
	item := x.(*sleeper)
	item.index = n
	*h = append(*h, item)
}

func (h *sleeperHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *sleeperHeap) Peek() *sleeper {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// delayManager wakes sleeping Tasks when their deadlines pass. One timer
// goroutine serves the whole Executor; expired sleepers are rescheduled as
// a single Batch.
type delayManager struct {
	pq     sleeperHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newDelayManager() *delayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &delayManager{
		pq:     make(sleeperHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// pushLocked adds s; dm.mu must be held.
func (dm *delayManager) pushLocked(s *sleeper) {
	heap.Push(&dm.pq, s)

	if s.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

// removeLocked takes s out of the heap if it is still there; dm.mu must be
// held.
func (dm *delayManager) removeLocked(s *sleeper) bool {
	if s.index < 0 {
		return false
	}
	heap.Remove(&dm.pq, s.index)
	return true
}

func (dm *delayManager) loop() {
	defer close(dm.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun, pending := dm.calculateNextRun()
		if !pending {
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.processExpired()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun returns how long until the earliest deadline, and false
// when nobody is sleeping.
func (dm *delayManager) calculateNextRun() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}
	return max(time.Until(item.deadline), 0), true
}

// processExpired pops every expired sleeper under the lock and wakes them
// after releasing it.
func (dm *delayManager) processExpired() {
	dm.mu.Lock()

	now := time.Now()
	var expired waitQueue[struct{}]
	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.deadline.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired.push(item.w)
	}

	dm.mu.Unlock()

	expired.wakeAll(waitNoValue)
}

func (dm *delayManager) Len() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}

func (dm *delayManager) Stop() {
	dm.cancel()
	<-dm.done
}

// Sleep suspends the calling Task for at least d. Outside a Task it blocks
// the calling goroutine. It returns ctx.Err() if ctx is cancelled first.
// A non-positive d yields instead. A Task context must only be used on the
// Task's own goroutine (see CurrentTask).
func Sleep(ctx context.Context, d time.Duration) error {
	t := CurrentTask(ctx)
	if t == nil {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		Yield(ctx)
		return nil
	}

	t.checkRunning()
	t.checkGoroutine(nil)
	dm := t.exec.delays
	s := &sleeper{deadline: time.Now().Add(d), w: &waiter[struct{}]{task: t}}
	dm.mu.Lock()
	dm.pushLocked(s)
	park(ctx, &dm.mu, s.w, suspendSleep, func() bool { return dm.removeLocked(s) })
	if s.w.state == waitCancelled {
		return ctx.Err()
	}
	return nil
}
