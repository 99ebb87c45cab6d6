package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReactors opens noop reactors and remembers the order of opens
// and closes. failAt makes the factory fail for that node.
type recordingReactors struct {
	mu     sync.Mutex
	failAt int
	opened []int
	closed []int
}

var errReactorBoom = errors.New("reactor boom")

func (r *recordingReactors) open(node int) (Reactor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node == r.failAt {
		return nil, errReactorBoom
	}
	r.opened = append(r.opened, node)
	return &closeRecorder{Reactor: NewNoopReactor(), node: node, owner: r}, nil
}

type closeRecorder struct {
	Reactor
	node  int
	owner *recordingReactors
}

func (c *closeRecorder) Close() error {
	c.owner.mu.Lock()
	c.owner.closed = append(c.owner.closed, c.node)
	c.owner.mu.Unlock()
	return c.Reactor.Close()
}

type recordingPanicHandler struct {
	mu     sync.Mutex
	tasks  []string
	values []any
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, taskName string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, taskName)
	h.values = append(h.values, panicInfo)
}

// TestExecutor_ReturnsEntryError verifies Run's result
// Given: Sequential and parallel executors
// When: The entry task returns an error
// Then: Run returns that error
func TestExecutor_ReturnsEntryError(t *testing.T) {
	want := errors.New("entry failed")
	for _, mode := range []Mode{ModeSequential, ModeParallel} {
		t.Run(mode.String(), func(t *testing.T) {
			e := NewExecutorWithConfig(testConfig(mode))
			err := runWithin(t, e, 5*time.Second, func(ctx context.Context) error {
				return want
			})
			assert.ErrorIs(t, err, want)
			assert.Equal(t, ExecutorStopped, e.State())
		})
	}
}

// TestExecutor_RunOnce verifies that an executor cannot be reused
// Given: An executor that has already run
// When: Run is called again
// Then: It returns ErrExecutorStarted without running the entry task
func TestExecutor_RunOnce(t *testing.T) {
	// Arrange
	e := NewExecutorWithConfig(testConfig(ModeSequential))
	require.NoError(t, runWithin(t, e, 5*time.Second, func(ctx context.Context) error { return nil }))

	// Act
	ran := false
	err := e.Run(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})

	// Assert
	assert.ErrorIs(t, err, ErrExecutorStarted)
	assert.False(t, ran)
}

// TestExecutor_NodeAllocFailureFreesEarlierNodes covers a partial startup failure
// Given: A four-node topology whose reactor factory fails for the third node
// When: A parallel executor runs
// Then: Run returns a *NodeAllocError for node 2 and nodes 1 and 0 are freed in that order
func TestExecutor_NodeAllocFailureFreesEarlierNodes(t *testing.T) {
	// Arrange
	reactors := &recordingReactors{failAt: 2}
	cfg := testConfig(ModeParallel)
	cfg.Topology = NewStaticTopology(4)
	cfg.Reactors = reactors.open
	e := NewExecutorWithConfig(cfg)
	ran := false

	// Act
	err := e.Run(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})

	// Assert
	var allocErr *NodeAllocError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, 2, allocErr.Node)
	assert.ErrorIs(t, err, errReactorBoom)
	assert.False(t, ran)
	assert.Equal(t, []int{0, 1}, reactors.opened)
	assert.Equal(t, []int{1, 0}, reactors.closed)
}

// TestExecutor_FreesAllNodesAfterRun verifies teardown on the success path
// Given: A three-node parallel executor
// When: Run completes
// Then: Every reactor is closed in reverse allocation order
func TestExecutor_FreesAllNodesAfterRun(t *testing.T) {
	// Arrange
	reactors := &recordingReactors{failAt: -1}
	cfg := testConfig(ModeParallel)
	cfg.Topology = NewStaticTopology(3)
	cfg.WorkersPerNode = 1
	cfg.Reactors = reactors.open

	// Act
	err := runWithin(t, NewExecutorWithConfig(cfg), 5*time.Second, func(ctx context.Context) error { return nil })

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, reactors.opened)
	assert.Equal(t, []int{2, 1, 0}, reactors.closed)
}

// TestExecutor_ClampsNodeCount verifies the node limit
// Given: Topologies reporting 100 nodes and 0 nodes, and a config limit of 3
// When: Parallel executors run
// Then: 64, 1 and 3 nodes are created respectively
func TestExecutor_ClampsNodeCount(t *testing.T) {
	tests := []struct {
		name     string
		reported int
		limit    int
		want     int
	}{
		{name: "above max", reported: 100, want: MaxNodes},
		{name: "zero", reported: 0, want: 1},
		{name: "config limit", reported: 8, limit: 3, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reactors := &recordingReactors{failAt: -1}
			cfg := testConfig(ModeParallel)
			cfg.Topology = NewStaticTopology(tt.reported)
			cfg.WorkersPerNode = 1
			cfg.MaxNodes = tt.limit
			cfg.Reactors = reactors.open
			e := NewExecutorWithConfig(cfg)

			var nodes int
			err := runWithin(t, e, 10*time.Second, func(ctx context.Context) error {
				nodes = len(e.Stats().Nodes)
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, tt.want, nodes)
			assert.Len(t, reactors.opened, tt.want)
		})
	}
}

// TestExecutor_PanicBecomesResult verifies panic recovery
// Given: An entry task that panics
// When: Run completes
// Then: Run returns a *PanicError carrying the value and the panic handler saw it
func TestExecutor_PanicBecomesResult(t *testing.T) {
	// Arrange
	handler := &recordingPanicHandler{}
	cfg := testConfig(ModeParallel)
	cfg.PanicHandler = handler
	cause := errors.New("cause")

	// Act
	err := runWithin(t, NewExecutorWithConfig(cfg), 5*time.Second, func(ctx context.Context) error {
		panic(cause)
	})

	// Assert
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, cause, pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"main"}, handler.tasks)
}

// TestExecutor_SpawnAndWait verifies join semantics across workers
// Given: A parallel executor
// When: The entry task spawns 200 tasks that each return their index or an error, and waits on all
// Then: Every Wait returns its task's result and the executor counts all tasks
func TestExecutor_SpawnAndWait(t *testing.T) {
	const n = 200
	e := NewExecutorWithConfig(testConfig(ModeParallel))
	var sum atomic.Int64
	var failures int

	err := runWithin(t, e, 10*time.Second, func(ctx context.Context) error {
		tasks := make([]*Task, n)
		for i := range n {
			tasks[i], _ = Spawn(ctx, "", func(ctx context.Context) error {
				sum.Add(int64(i))
				if i%10 == 0 {
					return errors.New("tenth")
				}
				Yield(ctx)
				return nil
			})
		}
		for _, task := range tasks {
			if task.Wait(ctx) != nil {
				failures++
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(n*(n-1)/2), sum.Load())
	assert.Equal(t, n/10, failures)
	stats := e.Stats()
	assert.Equal(t, uint64(n+1), stats.Spawned)
	assert.Equal(t, uint64(n+1), stats.Completed)
	assert.Equal(t, int64(0), stats.Live)
}

// TestExecutor_RunWaitsForDetachedTasks verifies termination on the live count
// Given: An entry task that spawns a child and returns without waiting
// When: Run returns
// Then: The child has finished too
func TestExecutor_RunWaitsForDetachedTasks(t *testing.T) {
	var childDone atomic.Bool

	err := runParallel(t, func(ctx context.Context) error {
		_, err := Spawn(ctx, "child", func(ctx context.Context) error {
			if err := Sleep(ctx, 20*time.Millisecond); err != nil {
				return err
			}
			childDone.Store(true)
			return nil
		})
		return err
	})

	require.NoError(t, err)
	assert.True(t, childDone.Load())
}

// TestExecutor_WaitOnFinishedTask verifies the join fast path
// Given: A child task that has already finished with an error
// When: Wait is called twice
// Then: Both calls return the child's error immediately
func TestExecutor_WaitOnFinishedTask(t *testing.T) {
	want := errors.New("child")
	var first, second error

	err := runSequential(t, func(ctx context.Context) error {
		child, _ := Spawn(ctx, "child", func(ctx context.Context) error { return want })
		Yield(ctx)
		first = child.Wait(ctx)
		second = child.Wait(ctx)
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, first, want)
	assert.ErrorIs(t, second, want)
}

// TestExecutor_WaitSelf verifies that a task cannot join itself
func TestExecutor_WaitSelf(t *testing.T) {
	err := runSequential(t, func(ctx context.Context) error {
		return CurrentTask(ctx).Wait(ctx)
	})
	assert.ErrorIs(t, err, ErrJoinSelf)
}

// TestExecutor_WaitFromOutside verifies joining a task from a plain goroutine
// Given: A goroutine outside the executor holding a task handle
// When: It calls Wait while the task sleeps
// Then: Wait blocks until the task finishes and returns its error
func TestExecutor_WaitFromOutside(t *testing.T) {
	want := errors.New("done sleeping")
	handles := make(chan *Task, 1)
	outside := make(chan error, 1)
	go func() {
		outside <- (<-handles).Wait(context.Background())
	}()

	err := runParallel(t, func(ctx context.Context) error {
		child, _ := Spawn(ctx, "sleeper", func(ctx context.Context) error {
			_ = Sleep(ctx, 30*time.Millisecond)
			return want
		})
		handles <- child
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, <-outside, want)
}

// TestSpawn_OutsideTask verifies Spawn requires a task context
func TestSpawn_OutsideTask(t *testing.T) {
	task, err := Spawn(context.Background(), "orphan", func(ctx context.Context) error { return nil })
	assert.Nil(t, task)
	assert.ErrorIs(t, err, ErrNoExecutor)
}

// TestYield_Interleaves verifies cooperative round-robin on one worker
// Given: Two tasks that each record a step and yield three times
// When: They run on a sequential executor
// Then: Their steps alternate
func TestYield_Interleaves(t *testing.T) {
	var steps []string

	err := runSequential(t, func(ctx context.Context) error {
		step := func(name string) TaskFunc {
			return func(ctx context.Context) error {
				for range 3 {
					steps = append(steps, name)
					Yield(ctx)
				}
				return nil
			}
		}
		a, _ := Spawn(ctx, "a", step("a"))
		b, _ := Spawn(ctx, "b", step("b"))
		if err := a.Wait(ctx); err != nil {
			return err
		}
		return b.Wait(ctx)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, steps)
}

// TestSleep_ResumesAfterDeadline verifies Sleep inside a task
// Given: A task sleeping for 30ms
// When: It resumes
// Then: At least 30ms have elapsed and the task recorded a suspension
func TestSleep_ResumesAfterDeadline(t *testing.T) {
	const d = 30 * time.Millisecond
	e := NewExecutorWithConfig(testConfig(ModeSequential))
	var elapsed time.Duration

	err := runWithin(t, e, 5*time.Second, func(ctx context.Context) error {
		start := time.Now()
		err := Sleep(ctx, d)
		elapsed = time.Since(start)
		return err
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, d)
	last, ok := e.LastTask()
	require.True(t, ok)
	assert.Equal(t, "main", last.Name)
	assert.Equal(t, 1, last.Suspensions)
}

// TestSleep_Cancelled verifies that a cancelled sleep returns early
// Given: A task sleeping for an hour under a 20ms timeout
// When: The timeout expires
// Then: Sleep returns context.DeadlineExceeded and no sleeper remains queued
func TestSleep_Cancelled(t *testing.T) {
	e := NewExecutorWithConfig(testConfig(ModeParallel))
	var sleeping int

	err := runWithin(t, e, 5*time.Second, func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := Sleep(tctx, time.Hour)
		sleeping = e.Stats().Sleeping
		return err
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sleeping)
}

// TestSleep_OutsideTask verifies the plain-goroutine fallback
func TestSleep_OutsideTask(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

// TestExecutor_PinThreadsBindsWorkersAndTasks verifies thread binding
// Given: A parallel executor with PinThreads and a topology that records Bind calls
// When: Tasks run
// Then: Every worker and the entry task bound their threads to a valid node
func TestExecutor_PinThreadsBindsWorkersAndTasks(t *testing.T) {
	// Arrange
	var mu sync.Mutex
	bound := map[int]int{}
	topo := NewStaticTopology(2)
	topo.BindFunc = func(node int) error {
		mu.Lock()
		bound[node]++
		mu.Unlock()
		return nil
	}
	cfg := testConfig(ModeParallel)
	cfg.Topology = topo
	cfg.PinThreads = true

	// Act
	err := runWithin(t, NewExecutorWithConfig(cfg), 5*time.Second, func(ctx context.Context) error {
		return nil
	})

	// Assert
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	total := 0
	for node, n := range bound {
		assert.Contains(t, []int{0, 1}, node)
		total += n
	}
	// four workers plus the entry task
	assert.GreaterOrEqual(t, total, 5)
}

// TestExecutor_StealsAcrossWorkers verifies that queued work spreads out
// Given: A parallel executor with four workers
// When: The entry task spawns many sleeping tasks from one worker
// Then: Tasks ran on more than one worker
func TestExecutor_StealsAcrossWorkers(t *testing.T) {
	const n = 64
	cfg := testConfig(ModeParallel)
	cfg.HistorySize = n + 1
	e := NewExecutorWithConfig(cfg)

	err := runWithin(t, e, 10*time.Second, func(ctx context.Context) error {
		tasks := make([]*Task, n)
		for i := range n {
			tasks[i], _ = Spawn(ctx, "", func(ctx context.Context) error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}
		for _, task := range tasks {
			if err := task.Wait(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, err)
	workers := map[int]bool{}
	for _, rec := range e.RecentTasks(0) {
		workers[rec.Worker] = true
	}
	assert.Greater(t, len(workers), 1)
	var stolen uint64
	for _, node := range e.Stats().Nodes {
		for _, w := range node.Workers {
			stolen += w.Stolen
		}
	}
	assert.Positive(t, stolen)
}

// TestExecutor_StatsWhileRunning verifies the live snapshot
// Given: A running parallel executor
// When: The entry task reads Stats
// Then: The snapshot reports the running state, parallel mode and all workers
func TestExecutor_StatsWhileRunning(t *testing.T) {
	e := NewExecutorWithConfig(testConfig(ModeParallel))
	var stats ExecutorStats

	err := runWithin(t, e, 5*time.Second, func(ctx context.Context) error {
		stats = e.Stats()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, ExecutorRunning, stats.State)
	assert.Equal(t, ModeParallel, stats.Mode)
	assert.Equal(t, 4, stats.Workers())
	assert.Equal(t, int64(1), stats.Live)
	require.Len(t, stats.Nodes, 2)
	assert.Equal(t, "noop", stats.Nodes[0].Reactor)
}

// TestExecutor_CancelledRunContext verifies that Run's context reaches tasks
// Given: A context cancelled before Run
// When: The entry task blocks on an empty channel
// Then: The Get returns context.Canceled and Run returns it
func TestExecutor_CancelledRunContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExecutorWithConfig(testConfig(ModeSequential))

	err := e.Run(ctx, func(ctx context.Context) error {
		_, err := MakeChannel[int](0).Get(ctx)
		return err
	})

	assert.ErrorIs(t, err, context.Canceled)
}

// TestRun_Generic verifies the typed entry helper
func TestRun_Generic(t *testing.T) {
	got, err := Run(context.Background(), testConfig(ModeParallel), func(ctx context.Context) (string, error) {
		ch := MakeChannel[string](1)
		child, _ := Spawn(ctx, "", func(ctx context.Context) error {
			return ch.Put(ctx, "hello")
		})
		v, err := ch.Get(ctx)
		if err != nil {
			return "", err
		}
		return v, child.Wait(ctx)
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}
