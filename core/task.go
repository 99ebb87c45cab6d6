package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc is the body of a Task.
type TaskFunc func(ctx context.Context) error

// TaskID identifies a Task within its Executor.
type TaskID uint64

// TaskState describes where a Task is in its lifecycle.
type TaskState int32

const (
	// TaskRunnable: queued on a Worker's run queue.
	TaskRunnable TaskState = iota

	// TaskRunning: a Worker has handed control to the Task.
	TaskRunning

	// TaskSuspended: parked on a wait queue, waiting to be rescheduled.
	TaskSuspended

	// TaskDone: the function has returned (or panicked).
	TaskDone
)

func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Task is a unit of resumable work. Its continuation is a parked goroutine
// that only runs while a Worker has handed it control, so at most one Task
// runs per Worker at any moment.
type Task struct {
	// next links the Task into whichever TaskList currently holds it.
	next *Task

	id   TaskID
	name string
	fn   TaskFunc
	ctx  context.Context
	exec *Executor

	// owner is the Worker running the Task; written by that Worker before
	// handing over control. home is where the Task is requeued on resume.
	owner   *Worker
	home    *Worker
	started bool
	resume  chan struct{}

	// gid is the id of the goroutine running fn. yielding is set while the
	// Task hands control back to its Worker.
	gid      atomic.Uint64
	yielding atomic.Bool

	state       atomic.Int32
	suspensions int
	boundNode   int

	spawnedAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	err        error
	panicked   bool

	mu       sync.Mutex
	finished bool
	joiners  waitQueue[struct{}]
}

type taskKeyType struct{}

var taskKey taskKeyType

// CurrentTask returns the Task that ctx belongs to, or nil when ctx was not
// handed to a TaskFunc by an Executor.
//
// A Task's context may only suspend on the Task's own goroutine. Passing it
// to Channel.Put, Channel.Get, Task.Wait, Sleep or Yield from any other
// goroutine, including one the Task started, panics whenever the call would
// suspend. Such goroutines should use their own context.
func CurrentTask(ctx context.Context) *Task {
	if ctx == nil {
		return nil
	}
	if t, ok := ctx.Value(taskKey).(*Task); ok {
		return t
	}
	return nil
}

// ID returns the Task's identifier.
func (t *Task) ID() TaskID { return t.id }

// Name returns the Task's display name.
func (t *Task) Name() string { return t.name }

// State returns the Task's current lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Done reports whether the Task has finished.
func (t *Task) Done() bool { return t.State() == TaskDone }

// Spawn creates a Task running fn on the executor that owns ctx. The new
// Task's context derives from ctx, so cancelling ctx cancels the Task's
// blocking operations too.
func Spawn(ctx context.Context, name string, fn TaskFunc) (*Task, error) {
	parent := CurrentTask(ctx)
	if parent == nil {
		return nil, ErrNoExecutor
	}
	return parent.exec.spawn(ctx, parent.owner, name, fn), nil
}

// Wait suspends until t finishes and returns its result. Called from
// outside any Task it blocks the calling goroutine instead. A Task context
// must only be passed from the Task's own goroutine (see CurrentTask).
func (t *Task) Wait(ctx context.Context) error {
	if CurrentTask(ctx) == t {
		return ErrJoinSelf
	}
	checkCaller(ctx)
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return t.err
	}
	w := newWaiter[struct{}](ctx, &t.mu)
	t.joiners.push(w)
	park(ctx, &t.mu, w, suspendJoin, func() bool { return t.joiners.remove(w) })
	if w.state == waitCancelled {
		return ctx.Err()
	}
	return t.err
}

// Yield moves the running Task to the back of its Worker's run queue,
// letting other runnable Tasks go first. It is a no-op outside a Task.
func Yield(ctx context.Context) {
	t := CurrentTask(ctx)
	if t == nil {
		return
	}
	t.checkRunning()
	t.checkGoroutine(nil)
	t.exec.cfg.Metrics.RecordTaskSuspended(suspendYield)
	t.yieldTo(yieldEvent{kind: yieldRequeue})
}

// suspend parks the running Task. The caller holds mu and has already
// linked the Task's waiter into a queue guarded by mu; the Worker releases
// mu once the Task has yielded, so nobody can resume the Task before it is
// fully parked.
func (t *Task) suspend(mu sync.Locker) {
	t.yieldTo(yieldEvent{kind: yieldSuspend, unlock: mu})
}

func (t *Task) yieldTo(ev yieldEvent) {
	if !t.yielding.CompareAndSwap(false, true) {
		panic("core: task suspended from two goroutines at once")
	}
	w := t.owner
	t.suspensions++
	if ev.kind == yieldSuspend {
		t.state.Store(int32(TaskSuspended))
	}
	w.yield <- ev
	<-t.resume
	t.bind()
}

func (t *Task) checkRunning() {
	if t.State() != TaskRunning {
		panic(msgForeignCaller)
	}
}

const msgForeignCaller = "core: blocking call on a task context from outside that task"

// checkGoroutine panics unless the caller is the goroutine running t. It
// releases held first, so a caller that already took a lock does not leave
// it locked. Only paths about to suspend pay for the check.
func (t *Task) checkGoroutine(held sync.Locker) {
	if goroutineID() == t.gid.Load() {
		return
	}
	if held != nil {
		held.Unlock()
	}
	panic(msgForeignCaller)
}

// main is the body of the Task's goroutine.
func (t *Task) main() {
	defer func() {
		if r := recover(); r != nil {
			t.err = &PanicError{Value: r, Stack: debug.Stack()}
			t.panicked = true
		}
		if t.exec.cfg.PinThreads {
			runtime.UnlockOSThread()
		}
		t.owner.yield <- yieldEvent{kind: yieldDone}
	}()
	if t.exec.cfg.PinThreads {
		runtime.LockOSThread()
	}
	t.gid.Store(goroutineID())
	t.bind()
	t.err = t.fn(t.ctx)
}

// bind pins the Task's thread to the Node of the Worker now running it.
func (t *Task) bind() {
	if !t.exec.cfg.PinThreads {
		return
	}
	node := t.owner.node.id
	if node == t.boundNode {
		return
	}
	if err := t.exec.cfg.Topology.Bind(node); err != nil {
		t.exec.cfg.Logger.Debug("task bind failed", F("task", t.name), F("node", node), F("error", err))
		return
	}
	t.boundNode = node
}

// markFinished publishes the result and wakes every joiner as one batch.
func (t *Task) markFinished() {
	t.mu.Lock()
	t.finished = true
	drained := t.joiners
	t.joiners = waitQueue[struct{}]{}
	t.mu.Unlock()
	drained.wakeAll(waitNoValue)
}
