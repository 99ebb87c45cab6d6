package core

import (
	"iter"
	"sync"
)

const defaultHistorySize = 100

// taskHistory keeps the last finished Tasks of an Executor in a ring. next
// is where the following record lands; size saturates at len(ring).
type taskHistory struct {
	mu   sync.Mutex
	ring []TaskExecutionRecord
	next int
	size int
}

func newTaskHistory(capacity int) *taskHistory {
	return &taskHistory{ring: make([]TaskExecutionRecord, max(capacity, 0))}
}

func (h *taskHistory) record(r TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.ring) == 0 {
		return
	}
	h.ring[h.next] = r
	h.next = (h.next + 1) % len(h.ring)
	h.size = min(h.size+1, len(h.ring))
}

// newestFirst walks the ring from the latest record back. The caller holds
// h.mu for the whole walk.
func (h *taskHistory) newestFirst() iter.Seq[*TaskExecutionRecord] {
	return func(yield func(*TaskExecutionRecord) bool) {
		for i := 1; i <= h.size; i++ {
			if !yield(&h.ring[(h.next-i+len(h.ring))%len(h.ring)]) {
				return
			}
		}
	}
}

// recent returns up to limit records accepted by keep, newest first. limit
// <= 0 means no limit and a nil keep accepts every record.
func (h *taskHistory) recent(limit int, keep func(*TaskExecutionRecord) bool) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []TaskExecutionRecord
	for r := range h.newestFirst() {
		if limit > 0 && len(out) == limit {
			break
		}
		if keep == nil || keep(r) {
			out = append(out, *r)
		}
	}
	return out
}

func (h *taskHistory) last() (TaskExecutionRecord, bool) {
	if r := h.recent(1, nil); len(r) == 1 {
		return r[0], true
	}
	return TaskExecutionRecord{}, false
}
