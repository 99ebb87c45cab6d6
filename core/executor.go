package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ExecutorState is the lifecycle state of an Executor.
type ExecutorState int32

const (
	ExecutorIdle ExecutorState = iota
	ExecutorStarting
	ExecutorRunning
	ExecutorStopping
	ExecutorStopped
)

func (s ExecutorState) String() string {
	switch s {
	case ExecutorIdle:
		return "idle"
	case ExecutorStarting:
		return "starting"
	case ExecutorRunning:
		return "running"
	case ExecutorStopping:
		return "stopping"
	case ExecutorStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Executor runs Tasks on Workers grouped into NUMA Nodes. An Executor runs
// once: Run starts the Workers, spawns the entry Task and returns when no
// Task is left.
type Executor struct {
	cfg   Config
	state atomic.Int32
	mode  Mode

	// mu guards nodes against Stats while Run publishes and frees them.
	mu      sync.RWMutex
	nodes   []*Node
	workers []*Worker

	signal   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	live   atomic.Int64
	nextID atomic.Uint64
	rr     atomic.Uint64

	spawned   atomic.Uint64
	completed atomic.Uint64
	suspended atomic.Uint64

	delays  *delayManager
	history *taskHistory
}

// NewExecutor creates an Executor with DefaultConfig.
func NewExecutor() *Executor {
	return NewExecutorWithConfig(nil)
}

// NewExecutorWithConfig creates an Executor. Unset fields of cfg take their
// defaults.
func NewExecutorWithConfig(cfg *Config) *Executor {
	e := &Executor{cfg: cfg.withDefaults()}
	e.history = newTaskHistory(e.cfg.HistorySize)
	return e
}

// State returns the lifecycle state.
func (e *Executor) State() ExecutorState {
	return ExecutorState(e.state.Load())
}

// Run starts the Workers, runs entry as the first Task and blocks until
// every Task has finished. It returns the entry Task's error, a
// *PanicError if it panicked, or a *NodeAllocError if the Nodes could not
// be set up.
func (e *Executor) Run(ctx context.Context, entry TaskFunc) error {
	if !e.state.CompareAndSwap(int32(ExecutorIdle), int32(ExecutorStarting)) {
		return ErrExecutorStarted
	}
	defer e.state.Store(int32(ExecutorStopped))

	e.mode = e.cfg.resolveMode()
	if e.mode == ModeSequential {
		return e.runSequential(ctx, entry)
	}
	return e.runParallel(ctx, entry)
}

// runSequential runs a single Worker on the calling goroutine.
func (e *Executor) runSequential(ctx context.Context, entry TaskFunc) error {
	var node Node
	if err := node.init(e, 0, 1); err != nil {
		return &NodeAllocError{Node: 0, Err: err}
	}
	defer e.teardown()
	return e.runWithNodes(ctx, []*Node{&node}, entry, true)
}

func (e *Executor) runParallel(ctx context.Context, entry TaskFunc) error {
	count, err := e.cfg.Topology.NodeCount()
	if err != nil {
		e.cfg.Logger.Warn("numa topology unavailable, using one node", F("error", err))
		count = 1
	}
	count = clampNodes(count, e.cfg.MaxNodes)

	workers := e.cfg.WorkersPerNode
	if workers <= 0 {
		workers = max(runtime.GOMAXPROCS(0)/count, 1)
	}

	nodes := make([]*Node, 0, count)
	for i := range count {
		n, err := allocNode(e, i, workers)
		if err != nil {
			for j := len(nodes) - 1; j >= 0; j-- {
				nodes[j].free()
			}
			return &NodeAllocError{Node: i, Err: err}
		}
		nodes = append(nodes, n)
	}
	defer e.teardown()
	return e.runWithNodes(ctx, nodes, entry, false)
}

// runWithNodes runs entry on the given Nodes. With inline set the only
// Worker runs on the calling goroutine; otherwise every Worker gets its own
// goroutine and all of them are ready before entry is spawned.
func (e *Executor) runWithNodes(ctx context.Context, nodes []*Node, entry TaskFunc, inline bool) error {
	var workers []*Worker
	for _, n := range nodes {
		for _, w := range n.workers {
			w.id = len(workers)
			workers = append(workers, w)
		}
	}

	e.mu.Lock()
	e.nodes = nodes
	e.workers = workers
	e.mu.Unlock()
	e.signal = make(chan struct{}, len(workers)*2)
	e.stop = make(chan struct{})
	e.delays = newDelayManager()
	defer e.delays.Stop()

	e.state.Store(int32(ExecutorRunning))
	started := time.Now()
	e.cfg.Logger.Info("executor started",
		F("mode", e.mode.String()),
		F("nodes", len(nodes)),
		F("workers", len(workers)),
	)

	var entryTask *Task
	if inline {
		entryTask = e.spawn(ctx, workers[0], "main", entry)
		workers[0].loop()
	} else {
		var ready sync.WaitGroup
		ready.Add(len(workers))
		var g errgroup.Group
		for _, w := range workers {
			g.Go(func() error {
				w.start(&ready)
				return nil
			})
		}
		ready.Wait()
		entryTask = e.spawn(ctx, workers[0], "main", entry)
		_ = g.Wait()
	}

	e.state.Store(int32(ExecutorStopping))
	e.cfg.Logger.Info("executor stopped",
		F("spawned", e.spawned.Load()),
		F("completed", e.completed.Load()),
		F("elapsed", time.Since(started)),
	)
	return entryTask.err
}

// teardown frees the Nodes in reverse allocation order.
func (e *Executor) teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.nodes) - 1; i >= 0; i-- {
		e.nodes[i].free()
	}
}

// spawn creates a Task and queues it on from, or round-robin when from is
// nil.
func (e *Executor) spawn(ctx context.Context, from *Worker, name string, fn TaskFunc) *Task {
	t := &Task{
		id:        TaskID(e.nextID.Add(1)),
		name:      name,
		fn:        fn,
		exec:      e,
		home:      from,
		resume:    make(chan struct{}, 1),
		boundNode: -1,
		spawnedAt: time.Now(),
	}
	if t.name == "" {
		t.name = fmt.Sprintf("task-%d", t.id)
	}
	t.ctx = context.WithValue(ctx, taskKey, t)
	e.live.Add(1)
	e.spawned.Add(1)
	e.schedule(t)
	return t
}

// finish runs on the Worker that saw t return. The Executor stops when the
// last live Task finishes.
func (e *Executor) finish(w *Worker, t *Task) {
	t.finishedAt = time.Now()
	t.state.Store(int32(TaskDone))
	elapsed := t.finishedAt.Sub(t.startedAt)

	e.cfg.Metrics.RecordTaskDuration(t.name, elapsed)
	if t.panicked {
		if pe, ok := t.err.(*PanicError); ok {
			e.cfg.Metrics.RecordTaskPanic(t.name, pe.Value)
			e.cfg.PanicHandler.HandlePanic(t.ctx, t.name, w.id, pe.Value, pe.Stack)
		}
	} else if t.err != nil {
		e.cfg.Logger.Debug("task failed", F("task", t.name), F("error", t.err))
	}

	e.history.record(TaskExecutionRecord{
		TaskID:      t.id,
		Name:        t.name,
		Node:        w.node.id,
		Worker:      w.id,
		SpawnedAt:   t.spawnedAt,
		StartedAt:   t.startedAt,
		FinishedAt:  t.finishedAt,
		Duration:    elapsed,
		Suspensions: t.suspensions,
		Err:         t.err,
		Panicked:    t.panicked,
	})

	t.markFinished()
	e.completed.Add(1)
	if e.live.Add(-1) == 0 {
		e.stopOnce.Do(func() { close(e.stop) })
	}
}

// Stats returns a snapshot of the Executor's counters and queues.
func (e *Executor) Stats() ExecutorStats {
	s := ExecutorStats{
		State:     e.State(),
		Mode:      e.cfg.Mode,
		Spawned:   e.spawned.Load(),
		Completed: e.completed.Load(),
		Live:      e.live.Load(),
		Suspended: e.suspended.Load(),
	}
	if s.State >= ExecutorRunning {
		s.Mode = e.mode
	}
	e.mu.RLock()
	for _, n := range e.nodes {
		s.Nodes = append(s.Nodes, n.stats())
	}
	e.mu.RUnlock()
	if s.State == ExecutorRunning {
		s.Sleeping = e.delays.Len()
	}
	return s
}

// RecentTasks returns up to limit finished Tasks, newest first. A limit of
// zero or less returns the whole history.
func (e *Executor) RecentTasks(limit int) []TaskExecutionRecord {
	return e.history.recent(limit, nil)
}

// RecentTasksOnNode is RecentTasks restricted to Tasks that finished on the
// given Node.
func (e *Executor) RecentTasksOnNode(node, limit int) []TaskExecutionRecord {
	return e.history.recent(limit, func(r *TaskExecutionRecord) bool { return r.Node == node })
}

// LastTask returns the most recently finished Task.
func (e *Executor) LastTask() (TaskExecutionRecord, bool) {
	return e.history.last()
}

// Run runs entry on a new Executor configured by cfg and returns its result.
func Run[T any](ctx context.Context, cfg *Config, entry func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := NewExecutorWithConfig(cfg).Run(ctx, func(ctx context.Context) error {
		v, err := entry(ctx)
		result = v
		return err
	})
	return result, err
}
