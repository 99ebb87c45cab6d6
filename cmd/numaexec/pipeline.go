package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-numa-executor/core"
	obs "github.com/Swind/go-numa-executor/observability/prometheus"
)

var pipelineFlags struct {
	mode      string
	producers int64
	consumers int64
	items     int64
	capacity  int64
	listen    string
	linger    time.Duration
}

func init() {
	f := pipelineCmd.Flags()
	f.StringVar(&pipelineFlags.mode, "mode", "", "executor mode (auto|sequential|parallel)")
	f.Int64Var(&pipelineFlags.producers, "producers", 0, "number of producer tasks")
	f.Int64Var(&pipelineFlags.consumers, "consumers", 0, "number of consumer tasks")
	f.Int64Var(&pipelineFlags.items, "items", 0, "items sent by each producer")
	f.Int64Var(&pipelineFlags.capacity, "capacity", -1, "channel capacity (0 = rendezvous)")
	f.StringVar(&pipelineFlags.listen, "metrics-listen", "", "serve Prometheus metrics on this address, e.g. :2112")
	f.DurationVar(&pipelineFlags.linger, "linger", 0, "keep the metrics endpoint up this long after the run")
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run a producer/consumer workload over a channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupColor(cmd); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyPipelineFlags(cmd, &cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runPipeline(ctx, cmd.OutOrStdout(), cfg)
	},
}

func applyPipelineFlags(cmd *cobra.Command, cfg *fileConfig) {
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Executor.Mode = pipelineFlags.mode
	}
	if f.Changed("producers") {
		cfg.Pipeline.Producers = pipelineFlags.producers
	}
	if f.Changed("consumers") {
		cfg.Pipeline.Consumers = pipelineFlags.consumers
	}
	if f.Changed("items") {
		cfg.Pipeline.Items = pipelineFlags.items
	}
	if f.Changed("capacity") {
		cfg.Pipeline.Capacity = pipelineFlags.capacity
	}
	if f.Changed("metrics-listen") {
		cfg.Metrics.Listen = pipelineFlags.listen
	}
}

type pipelineResult struct {
	sent     int
	received int
	sum      int
	elapsed  time.Duration
	stats    core.ExecutorStats
}

// runPipeline runs the workload and, when configured, a metrics endpoint
// next to it. The endpoint shuts down once the workload has finished.
func runPipeline(ctx context.Context, out io.Writer, cfg fileConfig) error {
	load, err := cfg.Pipeline.workload()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)
	execCfg, err := cfg.coreConfig(logger)
	if err != nil {
		return err
	}

	var (
		reg    *prom.Registry
		poller *obs.SnapshotPoller
	)
	if cfg.Metrics.Listen != "" {
		reg = prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return err
		}
		execCfg.Metrics = exporter
		if poller, err = obs.NewSnapshotPoller(cfg.Metrics.Namespace, reg, time.Second); err != nil {
			return err
		}
	}

	exec := core.NewExecutorWithConfig(execCfg)
	if poller != nil {
		poller.AddExecutor("pipeline", exec)
		poller.Start(ctx)
		defer poller.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	finished := make(chan struct{})

	if reg != nil {
		ln, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		logger.Info("serving metrics", core.F("addr", ln.Addr().String()))
		server := &http.Server{
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-finished:
				if pipelineFlags.linger > 0 {
					select {
					case <-time.After(pipelineFlags.linger):
					case <-gctx.Done():
					}
				}
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	var result pipelineResult
	g.Go(func() error {
		defer close(finished)
		start := time.Now()
		r, err := pipeline(gctx, exec, load)
		r.elapsed = time.Since(start)
		r.stats = exec.Stats()
		result = r
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	renderPipeline(out, load, result)
	return nil
}

// endOfStream tells one consumer that every producer has finished. Items
// are never negative.
const endOfStream = -1

// pipeline runs producers and consumers over one Channel. Once the
// producers are joined, one endOfStream per consumer follows the items and
// the Channel is closed after the consumers return.
func pipeline(ctx context.Context, exec *core.Executor, load workload) (pipelineResult, error) {
	var r pipelineResult
	sums := make([]int, load.consumers)
	counts := make([]int, load.consumers)

	err := exec.Run(ctx, func(ctx context.Context) error {
		ch := core.MakeChannel[int](load.capacity)

		consumers := make([]*core.Task, 0, load.consumers)
		for c := range load.consumers {
			task, err := core.Spawn(ctx, fmt.Sprintf("consumer-%d", c), func(ctx context.Context) error {
				for {
					v, err := ch.Get(ctx)
					if errors.Is(err, core.ErrClosed) {
						return nil
					}
					if err != nil {
						return err
					}
					if v == endOfStream {
						return nil
					}
					sums[c] += v
					counts[c]++
				}
			})
			if err != nil {
				return err
			}
			consumers = append(consumers, task)
		}

		producers := make([]*core.Task, 0, load.producers)
		for p := range load.producers {
			task, err := core.Spawn(ctx, fmt.Sprintf("producer-%d", p), func(ctx context.Context) error {
				for i := range load.items {
					if err := ch.Put(ctx, i); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			producers = append(producers, task)
		}

		var errs []error
		for _, task := range producers {
			errs = append(errs, task.Wait(ctx))
		}
		// The markers queue behind every item, so each consumer stops only
		// once the buffer ahead of its marker is drained.
		for range consumers {
			if err := ch.Put(ctx, endOfStream); err != nil {
				errs = append(errs, err)
				ch.Close()
				break
			}
		}
		for _, task := range consumers {
			errs = append(errs, task.Wait(ctx))
		}
		ch.Close()
		return errors.Join(errs...)
	})

	r.sent = load.producers * load.items
	for c := range load.consumers {
		r.sum += sums[c]
		r.received += counts[c]
	}
	return r, err
}

func renderPipeline(w io.Writer, load workload, r pipelineResult) {
	title := color.New(color.FgCyan, color.Bold)
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	title.Fprintln(w, "pipeline")
	fmt.Fprintf(w, "  mode %s, nodes %d, workers %d, capacity %d\n",
		r.stats.Mode, len(r.stats.Nodes), r.stats.Workers(), load.capacity)
	fmt.Fprintf(w, "  producers %d x %d items, consumers %d\n", load.producers, load.items, load.consumers)

	status := ok.Sprint("ok")
	if r.received != r.sent {
		status = bad.Sprintf("lost %d", r.sent-r.received)
	}
	fmt.Fprintf(w, "  sent %d, received %d (%s) in %v\n", r.sent, r.received, status, r.elapsed.Round(time.Microsecond))
	if r.elapsed > 0 {
		fmt.Fprintf(w, "  throughput %.0f items/s\n", float64(r.received)/r.elapsed.Seconds())
	}
	fmt.Fprintf(w, "  tasks %d, suspensions %d\n", r.stats.Completed, r.stats.Suspended)
	for _, node := range r.stats.Nodes {
		for _, wk := range node.Workers {
			fmt.Fprintf(w, "    node %d worker %d  executed %-8d stolen %d\n", node.ID, wk.ID, wk.Executed, wk.Stolen)
		}
	}
}
