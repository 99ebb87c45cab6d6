//go:build !linux

package core

// HostTopology returns a single-node topology whose Bind is a no-op.
func HostTopology() Topology {
	return NewStaticTopology(1)
}
