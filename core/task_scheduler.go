package core

import "math/rand/v2"

// schedule makes t runnable.
func (e *Executor) schedule(t *Task) {
	var b Batch
	b.Push(t)
	e.scheduleBatch(&b)
}

// scheduleBatch queues every Task of b on one Worker under a single lock
// acquisition and empties b. The Worker is the home of the first Task, so
// resumed Tasks return to where they last ran; Tasks with no home yet are
// spread round-robin.
func (e *Executor) scheduleBatch(b *Batch) {
	n := b.Len()
	if n == 0 {
		return
	}
	target := b.head.home
	if target == nil {
		target = e.nextWorker()
	}
	for t := range b.All() {
		t.state.Store(int32(TaskRunnable))
	}
	target.pushBatch(b)
	e.notify(n)
}

func (e *Executor) nextWorker() *Worker {
	i := e.rr.Add(1) - 1
	return e.workers[i%uint64(len(e.workers))]
}

// notify wakes up to n idle Workers.
func (e *Executor) notify(n int) {
	for range min(n, len(e.workers)) {
		select {
		case e.signal <- struct{}{}:
		default:
			// Signal channel full, but the tasks are already queued
			return
		}
	}
}

// findWork (Called by Worker) returns the next Task for w, parking w while
// there is none. It reports false once the Executor has stopped.
func (e *Executor) findWork(w *Worker) (*Task, bool) {
	for {
		if t := w.pop(); t != nil {
			return t, true
		}
		if t := e.steal(w); t != nil {
			return t, true
		}

		select {
		case <-e.signal:
			continue
		case <-e.stop:
			return nil, false
		}
	}
}

// steal tries the Workers of w's own Node first, then the other Nodes in
// index order after it, starting each Node at a random Worker.
func (e *Executor) steal(w *Worker) *Task {
	if len(e.workers) == 1 {
		return nil
	}
	for i := range len(e.nodes) {
		node := e.nodes[(w.node.id+i)%len(e.nodes)]
		victims := node.workers
		start := rand.IntN(len(victims))
		for j := range len(victims) {
			if t := w.stealFrom(victims[(start+j)%len(victims)]); t != nil {
				return t
			}
		}
	}
	return nil
}
