package numaexec

import (
	"context"
	"sync"

	"github.com/Swind/go-numa-executor/core"
)

// =============================================================================
// Global Default Config
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.Mutex
)

// SetDefaultConfig sets the Config used by Run and RunValue. A nil cfg
// restores the host defaults. Executors already running are unaffected.
func SetDefaultConfig(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg == nil {
		globalConfig = nil
		return
	}
	c := *cfg
	globalConfig = &c
}

// DefaultConfig returns a copy of the Config used by Run and RunValue.
func DefaultConfig() *Config {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalConfig == nil {
		return core.DefaultConfig()
	}
	c := *globalConfig
	return &c
}

// Run runs entry on a new Executor built from DefaultConfig and waits for
// every Task it spawns.
func Run(ctx context.Context, entry TaskFunc) error {
	return NewExecutorWithConfig(DefaultConfig()).Run(ctx, entry)
}

// RunWithConfig runs entry on a new Executor built from cfg.
func RunWithConfig(ctx context.Context, cfg *Config, entry TaskFunc) error {
	return NewExecutorWithConfig(cfg).Run(ctx, entry)
}

// RunValue runs entry like Run and returns the value it produced.
func RunValue[T any](ctx context.Context, entry func(ctx context.Context) (T, error)) (T, error) {
	return core.Run(ctx, DefaultConfig(), entry)
}
