package core

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

type yieldKind uint8

const (
	// yieldSuspend: the Task parked on a wait queue; the Worker releases
	// the event's lock.
	yieldSuspend yieldKind = iota
	// yieldRequeue: the Task goes to the back of the run queue.
	yieldRequeue
	// yieldDone: the Task's function returned.
	yieldDone
)

// yieldEvent is what a Task hands back to its Worker when it stops running.
type yieldEvent struct {
	kind   yieldKind
	unlock sync.Locker
}

// Worker owns a run queue and runs one Task at a time.
type Worker struct {
	_    cacheLinePad
	mu   sync.Mutex
	runq TaskList
	_    cacheLinePad

	node  *Node
	id    int // executor-wide
	local int // within node
	yield chan yieldEvent

	queued   atomic.Int64
	executed atomic.Uint64
	stolen   atomic.Uint64
}

func newWorker(node *Node, local int) *Worker {
	return &Worker{
		node:  node,
		local: local,
		yield: make(chan yieldEvent),
	}
}

// ID returns the executor-wide index of the Worker.
func (w *Worker) ID() int { return w.id }

// Node returns the Node the Worker belongs to.
func (w *Worker) Node() *Node { return w.node }

// start is the body of a parallel Worker goroutine.
func (w *Worker) start(ready *sync.WaitGroup) {
	exec := w.node.exec
	if exec.cfg.PinThreads {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := exec.cfg.Topology.Bind(w.node.id); err != nil {
			exec.cfg.Logger.Warn("worker bind failed", F("worker", w.id), F("node", w.node.id), F("error", err))
		}
	}
	ready.Done()
	w.loop()
}

// loop runs Tasks until the Executor stops.
func (w *Worker) loop() {
	exec := w.node.exec
	for {
		t, ok := exec.findWork(w)
		if !ok {
			return
		}
		w.run(t)
	}
}

// run hands control to t and handles whatever t yields back with.
func (w *Worker) run(t *Task) {
	exec := w.node.exec
	t.owner = w
	t.home = w
	t.state.Store(int32(TaskRunning))
	t.yielding.Store(false)
	if !t.started {
		t.started = true
		t.startedAt = time.Now()
		go t.main()
	} else {
		t.resume <- struct{}{}
	}

	ev := <-w.yield
	w.executed.Add(1)

	switch ev.kind {
	case yieldSuspend:
		exec.suspended.Add(1)
		ev.unlock.Unlock()
	case yieldRequeue:
		exec.suspended.Add(1)
		t.state.Store(int32(TaskRunnable))
		w.push(t)
	case yieldDone:
		exec.finish(w, t)
	}
}

func (w *Worker) push(t *Task) {
	var b TaskList
	b.Push(t)
	w.pushBatch(&b)
}

// pushBatch appends b to the run queue and empties b.
func (w *Worker) pushBatch(b *TaskList) {
	w.mu.Lock()
	w.runq.Consume(b)
	depth := w.runq.Len()
	w.queued.Store(int64(depth))
	w.mu.Unlock()
	w.node.exec.cfg.Metrics.RecordQueueDepth(w.node.id, w.id, depth)
}

func (w *Worker) pop() *Task {
	if w.queued.Load() == 0 {
		return nil
	}
	w.mu.Lock()
	t := w.runq.Pop()
	w.queued.Store(int64(w.runq.Len()))
	w.mu.Unlock()
	return t
}

// stealFrom moves the older half (rounded up) of victim's run queue onto
// w's and returns the first stolen Task, or nil if victim had none.
func (w *Worker) stealFrom(victim *Worker) *Task {
	if victim == w || victim.queued.Load() == 0 {
		return nil
	}
	victim.mu.Lock()
	n := victim.runq.Len()
	grabbed := victim.runq.takeFront(n - n/2)
	victim.queued.Store(int64(victim.runq.Len()))
	victim.mu.Unlock()

	count := grabbed.Len()
	t := grabbed.Pop()
	if t == nil {
		return nil
	}
	if !grabbed.Empty() {
		w.pushBatch(&grabbed)
	}
	w.stolen.Add(uint64(count))
	w.node.exec.cfg.Metrics.RecordSteal(w.node.id, victim.node.id, count)
	return t
}

func (w *Worker) stats() WorkerStats {
	return WorkerStats{
		ID:       w.id,
		Node:     w.node.id,
		Queued:   int(w.queued.Load()),
		Executed: w.executed.Load(),
		Stolen:   w.stolen.Load(),
	}
}
