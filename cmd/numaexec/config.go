package main

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"github.com/Swind/go-numa-executor/core"
)

// fileConfig mirrors numaexec.toml.
type fileConfig struct {
	Executor executorConfig `toml:"executor"`
	Log      logConfig      `toml:"log"`
	Metrics  metricsConfig  `toml:"metrics"`
	Pipeline pipelineConfig `toml:"pipeline"`
}

type executorConfig struct {
	Mode           string `toml:"mode"`
	MaxNodes       int64  `toml:"max_nodes"`
	WorkersPerNode int64  `toml:"workers_per_node"`
	PinThreads     bool   `toml:"pin_threads"`
	HistorySize    int64  `toml:"history_size"`
}

type logConfig struct {
	Level string `toml:"level"`
}

type metricsConfig struct {
	Listen    string `toml:"listen"`
	Namespace string `toml:"namespace"`
}

type pipelineConfig struct {
	Producers int64 `toml:"producers"`
	Consumers int64 `toml:"consumers"`
	Items     int64 `toml:"items"`
	Capacity  int64 `toml:"capacity"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Executor: executorConfig{Mode: "auto", HistorySize: 100},
		Log:      logConfig{Level: "info"},
		Metrics:  metricsConfig{Namespace: "numaexec"},
		Pipeline: pipelineConfig{Producers: 4, Consumers: 4, Items: 10000, Capacity: 64},
	}
}

// loadFileConfig reads path over the defaults. An empty path returns the
// defaults unchanged.
func loadFileConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fileConfig{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("executor", "mode") {
		if _, err := parseMode(cfg.Executor.Mode); err != nil {
			return fileConfig{}, fmt.Errorf("%s: [executor].mode: %w", path, err)
		}
	}
	return cfg, nil
}

func parseMode(s string) (core.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return core.ModeAuto, nil
	case "sequential", "seq":
		return core.ModeSequential, nil
	case "parallel":
		return core.ModeParallel, nil
	default:
		return core.ModeAuto, fmt.Errorf("unsupported mode %q (must be auto, sequential or parallel)", s)
	}
}

// coreConfig builds the executor Config. TOML integers are 64-bit, so they
// are narrowed with a range check.
func (c fileConfig) coreConfig(logger core.Logger) (*core.Config, error) {
	mode, err := parseMode(c.Executor.Mode)
	if err != nil {
		return nil, err
	}
	maxNodes, err := safecast.Conv[int](c.Executor.MaxNodes)
	if err != nil {
		return nil, fmt.Errorf("[executor].max_nodes: %w", err)
	}
	workers, err := safecast.Conv[int](c.Executor.WorkersPerNode)
	if err != nil {
		return nil, fmt.Errorf("[executor].workers_per_node: %w", err)
	}
	history, err := safecast.Conv[int](c.Executor.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("[executor].history_size: %w", err)
	}

	cfg := core.DefaultConfig()
	cfg.Mode = mode
	cfg.MaxNodes = maxNodes
	cfg.WorkersPerNode = workers
	cfg.PinThreads = c.Executor.PinThreads
	cfg.HistorySize = history
	cfg.Logger = logger
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
	return cfg, nil
}

// workload is the validated pipeline section.
type workload struct {
	producers int
	consumers int
	items     int
	capacity  int
}

func (c pipelineConfig) workload() (workload, error) {
	var w workload
	var err error
	if w.producers, err = positive("producers", c.Producers); err != nil {
		return workload{}, err
	}
	if w.consumers, err = positive("consumers", c.Consumers); err != nil {
		return workload{}, err
	}
	if w.items, err = positive("items", c.Items); err != nil {
		return workload{}, err
	}
	if c.Capacity < 0 {
		return workload{}, fmt.Errorf("[pipeline].capacity must not be negative, got %d", c.Capacity)
	}
	if w.capacity, err = safecast.Conv[int](c.Capacity); err != nil {
		return workload{}, fmt.Errorf("[pipeline].capacity: %w", err)
	}
	return w, nil
}

func positive(name string, v int64) (int, error) {
	if v <= 0 {
		return 0, fmt.Errorf("[pipeline].%s must be positive, got %d", name, v)
	}
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0, fmt.Errorf("[pipeline].%s: %w", name, err)
	}
	return n, nil
}
