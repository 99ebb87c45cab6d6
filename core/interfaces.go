package core

import (
	"context"
	"runtime"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// The panic is still reported as the Task's result (a *PanicError); the
// handler exists for logging and alerting.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called on the Worker that was running the task.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - taskName: The name of the task
	// - workerID: The executor-wide index of the worker
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, taskName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, taskName string, workerID int, panicInfo any, stackTrace []byte) {
	if h.Logger == nil {
		return
	}
	h.Logger.Error("task panicked",
		F("task", taskName),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting executor metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from Worker and Task goroutines while scheduling is in
// progress; they must be non-blocking and fast.
type Metrics interface {
	// RecordTaskDuration records the wall time from a task's first run to
	// its completion, including time spent suspended.
	RecordTaskDuration(taskName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked.
	RecordTaskPanic(taskName string, panicInfo any)

	// RecordTaskSuspended records that a task gave up its Worker.
	// reason is one of "channel_put", "channel_get", "join", "sleep", "yield".
	RecordTaskSuspended(reason string)

	// RecordSteal records that a worker on node thief took count tasks from
	// a worker on node victim.
	RecordSteal(thief, victim int, count int)

	// RecordQueueDepth records the run queue depth of a worker.
	RecordQueueDepth(node, worker int, depth int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(taskName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(taskName string, panicInfo any)              {}
func (m *NilMetrics) RecordTaskSuspended(reason string)                           {}
func (m *NilMetrics) RecordSteal(thief, victim int, count int)                    {}
func (m *NilMetrics) RecordQueueDepth(node, worker int, depth int)                {}

// =============================================================================
// Config: Configuration for Executor
// =============================================================================

// Mode selects how an Executor runs its Workers.
type Mode int

const (
	// ModeAuto runs sequentially when GOMAXPROCS is 1 and in parallel otherwise.
	ModeAuto Mode = iota

	// ModeSequential runs one Node with one Worker on the calling goroutine.
	ModeSequential

	// ModeParallel runs one Node per NUMA node reported by the Topology.
	ModeParallel
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeSequential:
		return "sequential"
	case ModeParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// MaxNodes is the upper bound on the number of Nodes an Executor creates.
const MaxNodes = 64

// Config holds configuration options for Executor.
// All handlers are optional; if not provided, default implementations will be used.
type Config struct {
	// Mode selects sequential or parallel execution. Defaults to ModeAuto.
	Mode Mode

	// MaxNodes caps the node count reported by Topology. Values outside
	// [1, MaxNodes] mean MaxNodes.
	MaxNodes int

	// WorkersPerNode is the number of Workers on each Node in parallel mode.
	// Zero spreads GOMAXPROCS evenly over the nodes, with at least one each.
	WorkersPerNode int

	// PinThreads locks Worker and Task goroutines to OS threads and binds
	// those threads to their Node's CPUs through Topology.
	PinThreads bool

	// HistorySize is the number of finished tasks kept for RecentTasks.
	// Zero means the default; a negative size disables the history.
	HistorySize int

	// Topology reports NUMA nodes and binds threads. Defaults to the host
	// topology.
	Topology Topology

	// Reactors opens the I/O reactor of each Node. Defaults to
	// DefaultReactorFactory.
	Reactors ReactorFactory

	// Logger receives executor lifecycle and diagnostic messages. Defaults
	// to NoOpLogger.
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record executor metrics. Defaults to NilMetrics.
	Metrics Metrics
}

// DefaultConfig returns a config with default handlers.
func DefaultConfig() *Config {
	logger := NewNoOpLogger()
	return &Config{
		Mode:         ModeAuto,
		MaxNodes:     MaxNodes,
		HistorySize:  defaultHistorySize,
		Topology:     HostTopology(),
		Reactors:     DefaultReactorFactory,
		Logger:       logger,
		PanicHandler: &DefaultPanicHandler{Logger: logger},
		Metrics:      &NilMetrics{},
	}
}

// withDefaults returns a copy of cfg with every unset field defaulted.
func (cfg *Config) withDefaults() Config {
	out := *DefaultConfig()
	if cfg == nil {
		return out
	}
	out.Mode = cfg.Mode
	out.PinThreads = cfg.PinThreads
	out.WorkersPerNode = max(cfg.WorkersPerNode, 0)
	if cfg.HistorySize != 0 {
		out.HistorySize = max(cfg.HistorySize, 0)
	}
	if cfg.MaxNodes >= 1 && cfg.MaxNodes <= MaxNodes {
		out.MaxNodes = cfg.MaxNodes
	}
	if cfg.Topology != nil {
		out.Topology = cfg.Topology
	}
	if cfg.Reactors != nil {
		out.Reactors = cfg.Reactors
	}
	if cfg.Logger != nil {
		out.Logger = cfg.Logger
		out.PanicHandler = &DefaultPanicHandler{Logger: cfg.Logger}
	}
	if cfg.PanicHandler != nil {
		out.PanicHandler = cfg.PanicHandler
	}
	if cfg.Metrics != nil {
		out.Metrics = cfg.Metrics
	}
	return out
}

// resolveMode maps ModeAuto onto a concrete mode.
func (cfg *Config) resolveMode() Mode {
	if cfg.Mode != ModeAuto {
		return cfg.Mode
	}
	if runtime.GOMAXPROCS(0) == 1 {
		return ModeSequential
	}
	return ModeParallel
}
