package core

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Topology reports the NUMA layout of the host and binds threads to nodes.
type Topology interface {
	// NodeCount returns the number of NUMA nodes. An error or a count below
	// one is treated by the Executor as a single node.
	NodeCount() (int, error)

	// Bind restricts the calling OS thread to the CPUs of node. Callers
	// must have locked the goroutine to its thread.
	Bind(node int) error
}

// CPULister is implemented by topologies that can list each node's CPUs.
type CPULister interface {
	CPUs(node int) ([]int, error)
}

// StaticTopology is a fixed layout, for tests and configuration overrides.
// Bind is a no-op unless BindFunc is set.
type StaticTopology struct {
	// Nodes holds the CPU list of each node; a nil entry is a node whose
	// CPUs are unknown.
	Nodes [][]int

	BindFunc func(node int) error
}

// NewStaticTopology returns a topology of n nodes with unknown CPUs.
func NewStaticTopology(n int) *StaticTopology {
	return &StaticTopology{Nodes: make([][]int, max(n, 0))}
}

func (t *StaticTopology) NodeCount() (int, error) {
	return len(t.Nodes), nil
}

func (t *StaticTopology) Bind(node int) error {
	if node < 0 || node >= len(t.Nodes) {
		return fmt.Errorf("core: bind to node %d: out of range [0, %d)", node, len(t.Nodes))
	}
	if t.BindFunc != nil {
		return t.BindFunc(node)
	}
	return nil
}

func (t *StaticTopology) CPUs(node int) ([]int, error) {
	if node < 0 || node >= len(t.Nodes) {
		return nil, fmt.Errorf("core: node %d out of range [0, %d)", node, len(t.Nodes))
	}
	return t.Nodes[node], nil
}

// clampNodes maps a reported node count onto [1, limit].
func clampNodes(count, limit int) int {
	return min(max(count, 1), limit)
}

// parseCPUList parses the kernel's list format, e.g. "0-3,8,10-11".
func parseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for part := range strings.SplitSeq(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parseCPU(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseCPU(hi); err != nil {
				return nil, err
			}
		}
		if last < first {
			return nil, fmt.Errorf("core: invalid cpu range %q", part)
		}
		for cpu := first; cpu <= last; cpu++ {
			out = append(out, cpu)
		}
	}
	return out, nil
}

func parseCPU(s string) (int, error) {
	u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("core: invalid cpu %q: %w", s, err)
	}
	return safecast.Conv[int](u)
}
