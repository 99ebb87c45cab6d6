package core

import (
	"context"
	"testing"
	"time"
)

// testConfig returns a config with two static nodes of two workers each and
// no OS resources.
func testConfig(mode Mode) *Config {
	return &Config{
		Mode:           mode,
		Topology:       NewStaticTopology(2),
		WorkersPerNode: 2,
		Reactors:       func(int) (Reactor, error) { return NewNoopReactor(), nil },
		Logger:         NewNoOpLogger(),
	}
}

// runWithin runs fn as the entry task of e and fails the test if the
// executor does not return within timeout.
func runWithin(t *testing.T, e *Executor, timeout time.Duration, fn TaskFunc) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background(), fn)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatalf("executor did not finish within %v", timeout)
		return nil
	}
}

// runSequential runs fn on a fresh sequential executor.
func runSequential(t *testing.T, fn TaskFunc) error {
	t.Helper()
	return runWithin(t, NewExecutorWithConfig(testConfig(ModeSequential)), 5*time.Second, fn)
}

// runParallel runs fn on a fresh parallel executor.
func runParallel(t *testing.T, fn TaskFunc) error {
	t.Helper()
	return runWithin(t, NewExecutorWithConfig(testConfig(ModeParallel)), 10*time.Second, fn)
}
