package core

import "time"

// TaskExecutionRecord captures a completed task.
type TaskExecutionRecord struct {
	TaskID      TaskID
	Name        string
	Node        int
	Worker      int
	SpawnedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	Suspensions int
	Err         error
	Panicked    bool
}

// ExecutorStats represents runtime observability state for an Executor.
type ExecutorStats struct {
	State     ExecutorState
	Mode      Mode
	Nodes     []NodeStats
	Spawned   uint64
	Completed uint64
	Live      int64
	Suspended uint64
	Sleeping  int
}

// NodeStats represents the state of one Node.
type NodeStats struct {
	ID      int
	Reactor string
	Workers []WorkerStats
}

// WorkerStats represents the state of one Worker.
type WorkerStats struct {
	ID       int
	Node     int
	Queued   int
	Executed uint64
	Stolen   uint64
}

// Queued sums the run queue depths of every Worker.
func (s ExecutorStats) Queued() int {
	n := 0
	for _, node := range s.Nodes {
		for _, w := range node.Workers {
			n += w.Queued
		}
	}
	return n
}

// Workers returns the total number of Workers.
func (s ExecutorStats) Workers() int {
	n := 0
	for _, node := range s.Nodes {
		n += len(node.Workers)
	}
	return n
}
