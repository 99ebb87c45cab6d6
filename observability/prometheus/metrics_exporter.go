package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Swind/go-numa-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskSuspendedTotal  *prom.CounterVec
	stealTotal          *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "numaexec"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task lifetime from first run to completion in seconds.",
		Buckets:   buckets,
	}, []string{"task"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"task"})
	suspendedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_suspended_total",
		Help:      "Total number of task suspensions by reason.",
	}, []string{"reason"})
	stealVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "steal_total",
		Help:      "Total number of tasks stolen between workers.",
	}, []string{"thief_node", "victim_node"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "run_queue_depth",
		Help:      "Current run queue depth per worker.",
	}, []string{"node", "worker"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if suspendedVec, err = registerCollector(reg, suspendedVec); err != nil {
		return nil, err
	}
	if stealVec, err = registerCollector(reg, stealVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskSuspendedTotal:  suspendedVec,
		stealTotal:          stealVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordTaskDuration records task lifetime.
func (m *MetricsExporter) RecordTaskDuration(taskName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(taskLabel(taskName)).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(taskName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(taskLabel(taskName)).Inc()
}

// RecordTaskSuspended records a task giving up its worker.
func (m *MetricsExporter) RecordTaskSuspended(reason string) {
	if m == nil {
		return
	}
	m.taskSuspendedTotal.WithLabelValues(normalizeLabel(reason, "unknown")).Inc()
}

// RecordSteal records tasks moved from a worker on victim to one on thief.
func (m *MetricsExporter) RecordSteal(thief, victim int, count int) {
	if m == nil {
		return
	}
	m.stealTotal.WithLabelValues(strconv.Itoa(thief), strconv.Itoa(victim)).Add(float64(count))
}

// RecordQueueDepth records a worker's run queue depth.
func (m *MetricsExporter) RecordQueueDepth(node, worker int, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(strconv.Itoa(node), strconv.Itoa(worker)).Set(float64(depth))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// taskLabel folds generated names ("task-17") into one series so that
// label cardinality stays bounded.
func taskLabel(name string) string {
	if rest, ok := strings.CutPrefix(name, "task-"); ok {
		if _, err := strconv.ParseUint(rest, 10, 64); err == nil {
			return "anonymous"
		}
	}
	return normalizeLabel(name, "anonymous")
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
