package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-numa-executor/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "numaexec.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoadFileConfig_OverridesDefaults verifies TOML decoding over defaults
// Given: A file that sets the executor section and part of the pipeline section
// When: The file is loaded
// Then: Set keys override and unset keys keep their defaults
func TestLoadFileConfig_OverridesDefaults(t *testing.T) {
	// Arrange
	path := writeConfig(t, `
[executor]
mode = "parallel"
max_nodes = 2
workers_per_node = 3
pin_threads = true

[pipeline]
items = 50
`)

	// Act
	cfg, err := loadFileConfig(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "parallel", cfg.Executor.Mode)
	assert.Equal(t, int64(2), cfg.Executor.MaxNodes)
	assert.True(t, cfg.Executor.PinThreads)
	assert.Equal(t, int64(50), cfg.Pipeline.Items)
	assert.Equal(t, int64(4), cfg.Pipeline.Producers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileConfig_EmptyPathIsDefault(t *testing.T) {
	cfg, err := loadFileConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultFileConfig(), cfg)
}

func TestLoadFileConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "syntax", body: "[executor\n", want: "failed to parse TOML"},
		{name: "unknown key", body: "[executor]\nthreads = 4\n", want: "unknown keys: executor.threads"},
		{name: "bad mode", body: "[executor]\nmode = \"turbo\"\n", want: "[executor].mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFileConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestCoreConfig_MapsFields verifies the executor Config built from a file config
func TestCoreConfig_MapsFields(t *testing.T) {
	// Arrange
	cfg := defaultFileConfig()
	cfg.Executor = executorConfig{Mode: "sequential", MaxNodes: 4, WorkersPerNode: 2, HistorySize: -1}
	logger := core.NewNoOpLogger()

	// Act
	got, err := cfg.coreConfig(logger)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, core.ModeSequential, got.Mode)
	assert.Equal(t, 4, got.MaxNodes)
	assert.Equal(t, 2, got.WorkersPerNode)
	assert.Equal(t, -1, got.HistorySize)
	assert.Same(t, logger, got.Logger)
}

func TestCoreConfig_RejectsOverflow(t *testing.T) {
	if math.MaxInt == math.MaxInt64 {
		t.Skip("int is 64-bit; every TOML integer fits")
	}
	cfg := defaultFileConfig()
	cfg.Executor.WorkersPerNode = math.MaxInt64
	_, err := cfg.coreConfig(core.NewNoOpLogger())
	assert.Error(t, err)
}

func TestWorkload_Validation(t *testing.T) {
	w, err := pipelineConfig{Producers: 2, Consumers: 1, Items: 10, Capacity: 0}.workload()
	require.NoError(t, err)
	assert.Equal(t, workload{producers: 2, consumers: 1, items: 10, capacity: 0}, w)

	_, err = pipelineConfig{Producers: 0, Consumers: 1, Items: 10}.workload()
	assert.ErrorContains(t, err, "producers must be positive")

	_, err = pipelineConfig{Producers: 1, Consumers: 1, Items: 10, Capacity: -1}.workload()
	assert.ErrorContains(t, err, "capacity must not be negative")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]core.Mode{
		"":           core.ModeAuto,
		"AUTO":       core.ModeAuto,
		"seq":        core.ModeSequential,
		"sequential": core.ModeSequential,
		" parallel ": core.ModeParallel,
	} {
		got, err := parseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseMode("numa")
	assert.Error(t, err)
}
