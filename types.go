package numaexec

import (
	"context"
	"time"

	"github.com/Swind/go-numa-executor/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the numaexec package for most use cases.

// Task is a cooperative unit of work.
type Task = core.Task

// TaskFunc is the body of a Task.
type TaskFunc = core.TaskFunc

// TaskID identifies a Task within its Executor.
type TaskID = core.TaskID

// TaskList is an intrusive FIFO list of Tasks.
type TaskList = core.TaskList

// Batch is a TaskList made runnable in one step.
type Batch = core.Batch

// Channel is a bounded FIFO channel between Tasks.
type Channel[T any] = core.Channel[T]

// Executor runs Tasks on Workers grouped by NUMA node.
type Executor = core.Executor

// Config configures an Executor.
type Config = core.Config

// Mode selects sequential or parallel execution.
type Mode = core.Mode

// Topology reports NUMA nodes and binds threads to them.
type Topology = core.Topology

// Reactor is the per-Node I/O readiness object.
type Reactor = core.Reactor

// ExecutorStats is a point-in-time view of an Executor.
type ExecutorStats = core.ExecutorStats

// Mode constants
const (
	ModeAuto       = core.ModeAuto
	ModeSequential = core.ModeSequential
	ModeParallel   = core.ModeParallel
)

// MaxNodes is the upper bound on Nodes per Executor.
const MaxNodes = core.MaxNodes

// Errors
var (
	ErrClosed          = core.ErrClosed
	ErrNoExecutor      = core.ErrNoExecutor
	ErrExecutorStarted = core.ErrExecutorStarted
	ErrJoinSelf        = core.ErrJoinSelf
)

// NodeAllocError and PanicError are returned by Run.
type (
	NodeAllocError = core.NodeAllocError
	PanicError     = core.PanicError
)

// NewExecutor creates an Executor with the host defaults.
func NewExecutor() *Executor {
	return core.NewExecutor()
}

// NewExecutorWithConfig creates an Executor; nil fields of cfg take defaults.
func NewExecutorWithConfig(cfg *Config) *Executor {
	return core.NewExecutorWithConfig(cfg)
}

// MakeChannel creates a Channel with its own buffer of the given capacity.
func MakeChannel[T any](capacity int) *Channel[T] {
	return core.MakeChannel[T](capacity)
}

// NewChannel creates a Channel over a caller-provided buffer.
func NewChannel[T any](buf []T) *Channel[T] {
	return core.NewChannel(buf)
}

// Spawn starts fn as a new Task on the Executor running ctx's Task.
func Spawn(ctx context.Context, name string, fn TaskFunc) (*Task, error) {
	return core.Spawn(ctx, name, fn)
}

// Yield lets other runnable Tasks go first.
func Yield(ctx context.Context) {
	core.Yield(ctx)
}

// Sleep suspends the calling Task for at least d.
func Sleep(ctx context.Context, d time.Duration) error {
	return core.Sleep(ctx, d)
}

// CurrentTask returns the Task that owns ctx, or nil. A Task's context may
// only suspend on the Task's own goroutine; see core.CurrentTask.
var CurrentTask = core.CurrentTask
