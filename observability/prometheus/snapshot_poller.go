package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Swind/go-numa-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExecutorSnapshotProvider provides current executor stats snapshots.
type ExecutorSnapshotProvider interface {
	Stats() core.ExecutorStats
}

// SnapshotPoller periodically exports executor Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	executorsMu sync.RWMutex
	executors   map[string]ExecutorSnapshotProvider

	spawned   *prom.GaugeVec
	completed *prom.GaugeVec
	live      *prom.GaugeVec
	suspended *prom.GaugeVec
	sleeping  *prom.GaugeVec
	running   *prom.GaugeVec

	workerQueued   *prom.GaugeVec
	workerExecuted *prom.GaugeVec
	workerStolen   *prom.GaugeVec

	stateMu sync.Mutex
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "numaexec"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:  interval,
		executors: make(map[string]ExecutorSnapshotProvider),

		spawned:   gauge("executor_spawned", "Tasks spawned since the executor started.", "executor"),
		completed: gauge("executor_completed", "Tasks completed since the executor started.", "executor"),
		live:      gauge("executor_live_tasks", "Tasks spawned and not yet finished.", "executor"),
		suspended: gauge("executor_suspended", "Suspensions since the executor started.", "executor"),
		sleeping:  gauge("executor_sleeping_tasks", "Tasks parked in Sleep.", "executor"),
		running:   gauge("executor_running", "Executor running state (1=running, 0=not running).", "executor", "mode"),

		workerQueued:   gauge("worker_queued", "Runnable tasks queued on a worker.", "executor", "node", "worker"),
		workerExecuted: gauge("worker_executed", "Task runs performed by a worker.", "executor", "node", "worker"),
		workerStolen:   gauge("worker_stolen", "Tasks a worker stole from others.", "executor", "node", "worker"),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.spawned, &p.completed, &p.live, &p.suspended, &p.sleeping, &p.running,
		&p.workerQueued, &p.workerExecuted, &p.workerStolen,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}
	return p, nil
}

// AddExecutor adds or replaces an executor snapshot provider by name.
func (p *SnapshotPoller) AddExecutor(name string, provider ExecutorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "executor")
	p.executorsMu.Lock()
	p.executors[name] = provider
	p.executorsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.active {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling and takes a final snapshot; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.active {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	cancel()
	<-done

	p.stateMu.Lock()
	p.active = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()

	p.collectOnce()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.executorsMu.RLock()
	defer p.executorsMu.RUnlock()

	for name, provider := range p.executors {
		stats := provider.Stats()
		p.spawned.WithLabelValues(name).Set(float64(stats.Spawned))
		p.completed.WithLabelValues(name).Set(float64(stats.Completed))
		p.live.WithLabelValues(name).Set(float64(stats.Live))
		p.suspended.WithLabelValues(name).Set(float64(stats.Suspended))
		p.sleeping.WithLabelValues(name).Set(float64(stats.Sleeping))
		if stats.State == core.ExecutorRunning {
			p.running.WithLabelValues(name, stats.Mode.String()).Set(1)
		} else {
			p.running.WithLabelValues(name, stats.Mode.String()).Set(0)
		}

		for _, node := range stats.Nodes {
			nodeLabel := strconv.Itoa(node.ID)
			for _, w := range node.Workers {
				workerLabel := strconv.Itoa(w.ID)
				p.workerQueued.WithLabelValues(name, nodeLabel, workerLabel).Set(float64(w.Queued))
				p.workerExecuted.WithLabelValues(name, nodeLabel, workerLabel).Set(float64(w.Executed))
				p.workerStolen.WithLabelValues(name, nodeLabel, workerLabel).Set(float64(w.Stolen))
			}
		}
	}
}
