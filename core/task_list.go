package core

import "iter"

// TaskList is an intrusive FIFO of Tasks linked through Task.next.
// A Task may be in at most one TaskList at a time. TaskList does no locking;
// the owner of the list supplies it.
//
// The zero value is an empty list ready to use.
type TaskList struct {
	head *Task
	tail *Task
	size int
}

// Batch is a group of Tasks handed to the run queue together.
type Batch = TaskList

// Push appends t to the end of the list.
func (l *TaskList) Push(t *Task) {
	t.next = nil
	if l.tail == nil {
		l.head = t
	} else {
		l.tail.next = t
	}
	l.tail = t
	l.size++
}

// Pop removes and returns the first Task, or nil if the list is empty.
func (l *TaskList) Pop() *Task {
	t := l.head
	if t == nil {
		return nil
	}
	l.head = t.next
	if l.head == nil {
		l.tail = nil
	}
	t.next = nil
	l.size--
	return t
}

// Consume splices all of other onto the end of l and empties other.
func (l *TaskList) Consume(other *TaskList) {
	if other.head == nil {
		return
	}
	if l.tail == nil {
		l.head = other.head
	} else {
		l.tail.next = other.head
	}
	l.tail = other.tail
	l.size += other.size
	*other = TaskList{}
}

// Len returns the number of Tasks in the list.
func (l *TaskList) Len() int { return l.size }

// Empty reports whether the list holds no Tasks.
func (l *TaskList) Empty() bool { return l.head == nil }

// All iterates the list from head to tail without modifying it.
// The list must not be mutated while the iteration is in progress.
func (l *TaskList) All() iter.Seq[*Task] {
	return func(yield func(*Task) bool) {
		for t := l.head; t != nil; t = t.next {
			if !yield(t) {
				return
			}
		}
	}
}

// takeFront detaches the first n Tasks (or all, if fewer) as a new list.
func (l *TaskList) takeFront(n int) TaskList {
	if n <= 0 || l.head == nil {
		return TaskList{}
	}
	if n >= l.size {
		out := *l
		*l = TaskList{}
		return out
	}
	last := l.head
	for i := 1; i < n; i++ {
		last = last.next
	}
	out := TaskList{head: l.head, tail: last, size: n}
	l.head = last.next
	last.next = nil
	l.size -= n
	return out
}

// Schedule hands every Task in the batch to its executor's run queue and
// leaves the batch empty. Consecutive Tasks that share an executor are
// queued under a single lock acquisition.
func (l *TaskList) Schedule() {
	for l.head != nil {
		exec := l.head.exec
		var run TaskList
		for l.head != nil && l.head.exec == exec {
			run.Push(l.Pop())
		}
		exec.scheduleBatch(&run)
	}
}
