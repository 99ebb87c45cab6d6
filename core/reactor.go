package core

import (
	"errors"
	"time"
)

// ErrReactorClosed is returned by operations on a closed Reactor.
var ErrReactorClosed = errors.New("core: reactor closed")

// Reactor is the per-Node I/O readiness facility. The Executor opens one
// per Node and closes it when the Node is freed.
type Reactor interface {
	// Name identifies the implementation, e.g. "epoll".
	Name() string

	// Fd returns the pollable descriptor, or -1 if there is none.
	Fd() int

	// Wake makes a concurrent or later Poll return.
	Wake() error

	// Poll waits up to timeout for a wakeup and reports whether one
	// arrived. Pending wakeups are coalesced.
	Poll(timeout time.Duration) (bool, error)

	Close() error
}

// ReactorFactory opens the Reactor of a Node.
type ReactorFactory func(node int) (Reactor, error)

// noopReactor has no descriptor; Wake and Poll go through a channel.
type noopReactor struct {
	wake   chan struct{}
	closed chan struct{}
}

// NewNoopReactor returns a Reactor with no OS resources.
func NewNoopReactor() Reactor {
	return &noopReactor{wake: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (r *noopReactor) Name() string { return "noop" }
func (r *noopReactor) Fd() int      { return -1 }

func (r *noopReactor) Wake() error {
	select {
	case <-r.closed:
		return ErrReactorClosed
	default:
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

func (r *noopReactor) Poll(timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.wake:
		return true, nil
	case <-r.closed:
		return false, ErrReactorClosed
	case <-timer.C:
		return false, nil
	}
}

func (r *noopReactor) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}
