//go:build linux

package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// SysfsTopology reads the NUMA layout from sysfs and binds threads with
// sched_setaffinity.
type SysfsTopology struct {
	// Root is the sysfs mount point, normally "/sys".
	Root string
}

// HostTopology returns the topology of the running host.
func HostTopology() Topology {
	return &SysfsTopology{Root: "/sys"}
}

func (t *SysfsTopology) nodeDir() string {
	return filepath.Join(t.Root, "devices", "system", "node")
}

// onlineNodes returns the ids of the online nodes. A kernel without NUMA
// support has no node directory and reports node 0 only.
func (t *SysfsTopology) onlineNodes() ([]int, error) {
	data, err := os.ReadFile(filepath.Join(t.nodeDir(), "online"))
	if errors.Is(err, fs.ErrNotExist) {
		return []int{0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("core: read online nodes: %w", err)
	}
	nodes, err := parseCPUList(string(data))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return []int{0}, nil
	}
	return nodes, nil
}

func (t *SysfsTopology) NodeCount() (int, error) {
	nodes, err := t.onlineNodes()
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// CPUs returns the CPUs of the node-th online node.
func (t *SysfsTopology) CPUs(node int) ([]int, error) {
	nodes, err := t.onlineNodes()
	if err != nil {
		return nil, err
	}
	if node < 0 || node >= len(nodes) {
		return nil, fmt.Errorf("core: node %d out of range [0, %d)", node, len(nodes))
	}
	path := filepath.Join(t.nodeDir(), "node"+strconv.Itoa(nodes[node]), "cpulist")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && len(nodes) == 1 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("core: read cpulist of node %d: %w", nodes[node], err)
	}
	return parseCPUList(string(data))
}

func (t *SysfsTopology) Bind(node int) error {
	cpus, err := t.CPUs(node)
	if err != nil {
		return err
	}
	if len(cpus) == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("core: bind thread to node %d: %w", node, err)
	}
	return nil
}
