//go:build !linux

package core

// DefaultReactorFactory opens a no-op reactor.
func DefaultReactorFactory(node int) (Reactor, error) {
	return NewNoopReactor(), nil
}
