package core

import "fmt"

// Node groups the Workers that share a NUMA node, together with the node's
// Reactor.
type Node struct {
	exec    *Executor
	id      int
	workers []*Worker
	reactor Reactor
	freed   bool
}

// allocNode creates a Node with the given number of Workers and opens its
// Reactor. On failure nothing allocated by the call survives.
func allocNode(exec *Executor, id, workers int) (*Node, error) {
	n := &Node{}
	if err := n.init(exec, id, workers); err != nil {
		return nil, err
	}
	return n, nil
}

// init sets up n in place, so a sequential Executor can keep its only Node
// on the stack.
func (n *Node) init(exec *Executor, id, workers int) error {
	n.exec = exec
	n.id = id
	n.workers = make([]*Worker, max(workers, 1))
	for i := range n.workers {
		n.workers[i] = newWorker(n, i)
	}
	r, err := exec.cfg.Reactors(id)
	if err != nil {
		n.workers = nil
		return fmt.Errorf("open reactor: %w", err)
	}
	n.reactor = r
	return nil
}

// free closes the Reactor. The Workers stay reachable for Stats. Calling
// it again does nothing.
func (n *Node) free() {
	if n.freed {
		return
	}
	n.freed = true
	if n.reactor != nil {
		if err := n.reactor.Close(); err != nil {
			n.exec.cfg.Logger.Warn("close reactor failed", F("node", n.id), F("error", err))
		}
		n.reactor = nil
	}
}

// ID returns the Node's index within its Executor.
func (n *Node) ID() int { return n.id }

// Reactor returns the Node's Reactor, or nil once the Node is freed.
func (n *Node) Reactor() Reactor { return n.reactor }

func (n *Node) stats() NodeStats {
	s := NodeStats{ID: n.id, Workers: make([]WorkerStats, 0, len(n.workers))}
	if n.reactor != nil {
		s.Reactor = n.reactor.Name()
	}
	for _, w := range n.workers {
		s.Workers = append(s.Workers, w.stats())
	}
	return s
}
