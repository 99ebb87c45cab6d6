package core

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Channel operations attempted after Close.
	// Close is permanent, so retrying will fail with ErrClosed again.
	ErrClosed = errors.New("core: channel closed")

	// ErrNoExecutor is returned when an operation that needs a running
	// Executor is called with a context that does not belong to a Task.
	ErrNoExecutor = errors.New("core: context does not belong to a running task")

	// ErrExecutorStarted is returned by Executor.Run when the executor has
	// already been run.
	ErrExecutorStarted = errors.New("core: executor already started")

	// ErrJoinSelf is returned when a Task tries to Wait on itself.
	ErrJoinSelf = errors.New("core: task cannot wait on itself")
)

// NodeAllocError reports a failure to allocate the resources of one Node.
// Every Node allocated before the failing one has been freed by the time
// this error is returned.
type NodeAllocError struct {
	Node int
	Err  error
}

func (e *NodeAllocError) Error() string {
	return fmt.Sprintf("core: allocate node %d: %v", e.Node, e.Err)
}

func (e *NodeAllocError) Unwrap() error { return e.Err }

// PanicError is the result of a Task whose function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("core: task panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, so that errors.Is and
// errors.As see through a panic(err).
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
