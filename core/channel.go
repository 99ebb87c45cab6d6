package core

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	chanOpen uint32 = iota
	chanClosed
)

// Channel is a bounded FIFO used by Tasks to exchange values. A Put that
// finds a waiting Get hands the value over directly; otherwise values go
// through a ring buffer; when neither is possible the caller suspends on a
// wait queue until a matching operation or Close resumes it.
//
// A Channel of capacity zero is a pure rendezvous.
//
// Put and Get may also be called from goroutines that are not Tasks, in
// which case they block the goroutine.
type Channel[T any] struct {
	_ cacheLinePad

	// state is read without the lock on the fast path; it only ever moves
	// from chanOpen to chanClosed.
	state atomic.Uint32

	mu  sync.Mutex
	buf []T
	// head and tail run over [0, 2*len(buf)) so that head == tail means
	// empty and a distance of len(buf) means full, with no separate count.
	head uint64
	tail uint64

	putters waitQueue[T]
	getters waitQueue[T]

	_ cacheLinePad
}

// NewChannel returns a Channel using buf as its ring buffer; its capacity
// is len(buf). The Channel owns buf until it is closed.
func NewChannel[T any](buf []T) *Channel[T] {
	return &Channel[T]{buf: buf}
}

// MakeChannel returns a Channel with a freshly allocated buffer.
func MakeChannel[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	return NewChannel(make([]T, capacity))
}

// Cap returns the buffer capacity.
func (c *Channel[T]) Cap() int { return len(c.buf) }

// Len returns the number of buffered values.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.buffered())
}

func (c *Channel[T]) buffered() uint64 {
	n2 := 2 * uint64(len(c.buf))
	if n2 == 0 {
		return 0
	}
	return (c.tail + n2 - c.head) % n2
}

// slot maps a ring position onto its buffer index.
func (c *Channel[T]) slot(i uint64) uint64 {
	if n := uint64(len(c.buf)); i >= n {
		return i - n
	}
	return i
}

// advance moves a ring position forward by one.
func (c *Channel[T]) advance(i uint64) uint64 {
	i++
	if i == 2*uint64(len(c.buf)) {
		return 0
	}
	return i
}

// IsClosed reports whether Close has been called.
func (c *Channel[T]) IsClosed() bool {
	return c.state.Load() == chanClosed
}

// Put sends v, suspending while the buffer is full and no Get is waiting.
// It returns ErrClosed if the Channel is or becomes closed before v is
// taken, and ctx.Err() if ctx is cancelled first. A Task context must only
// be used on the Task's own goroutine; a goroutine the Task started that
// would suspend on it panics.
func (c *Channel[T]) Put(ctx context.Context, v T) error {
	if c.IsClosed() {
		return ErrClosed
	}
	checkCaller(ctx)
	c.mu.Lock()
	if ok, err := c.putLocked(v); ok || err != nil {
		return err
	}

	w := newWaiter[T](ctx, &c.mu)
	w.value = v
	c.putters.push(w)
	park(ctx, &c.mu, w, suspendPut, func() bool { return c.putters.remove(w) })

	switch w.state {
	case waitNoValue:
		return nil
	case waitClosed:
		return ErrClosed
	default:
		return ctx.Err()
	}
}

// TryPut sends v only if it can do so without suspending.
func (c *Channel[T]) TryPut(v T) (bool, error) {
	if c.IsClosed() {
		return false, ErrClosed
	}
	c.mu.Lock()
	ok, err := c.putLocked(v)
	if !ok && err == nil {
		c.mu.Unlock()
	}
	return ok, err
}

// putLocked completes a Put without suspending if possible. It releases
// c.mu unless it returns (false, nil), in which case the caller still
// holds the lock.
func (c *Channel[T]) putLocked(v T) (bool, error) {
	if c.IsClosed() {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if g := c.getters.pop(); g != nil {
		g.value = v
		g.state = waitValue
		c.mu.Unlock()
		g.wake()
		return true, nil
	}
	if c.buffered() < uint64(len(c.buf)) {
		c.buf[c.slot(c.tail)] = v
		c.tail = c.advance(c.tail)
		c.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// Get receives the next value, suspending while the Channel is empty.
// It returns ErrClosed once the Channel is closed, and ctx.Err() if ctx is
// cancelled first. The same goroutine restriction as Put applies.
func (c *Channel[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if c.IsClosed() {
		return zero, ErrClosed
	}
	checkCaller(ctx)
	c.mu.Lock()
	if v, ok, err := c.getLocked(); ok || err != nil {
		return v, err
	}

	w := newWaiter[T](ctx, &c.mu)
	c.getters.push(w)
	park(ctx, &c.mu, w, suspendGet, func() bool { return c.getters.remove(w) })

	switch w.state {
	case waitValue:
		v := w.value
		return v, nil
	case waitClosed:
		return zero, ErrClosed
	default:
		return zero, ctx.Err()
	}
}

// TryGet receives a value only if it can do so without suspending.
func (c *Channel[T]) TryGet() (T, bool, error) {
	var zero T
	if c.IsClosed() {
		return zero, false, ErrClosed
	}
	c.mu.Lock()
	v, ok, err := c.getLocked()
	if !ok && err == nil {
		c.mu.Unlock()
	}
	return v, ok, err
}

// getLocked mirrors putLocked.
func (c *Channel[T]) getLocked() (T, bool, error) {
	var zero T
	if c.IsClosed() {
		c.mu.Unlock()
		return zero, false, ErrClosed
	}
	if p := c.putters.pop(); p != nil {
		// A waiting putter means the buffer is full (or absent). Take the
		// oldest buffered value and move the putter's value into the slot
		// it frees, keeping FIFO order across both paths.
		v := p.value
		if len(c.buf) > 0 {
			i := c.slot(c.head)
			v, c.buf[i] = c.buf[i], p.value
			c.head = c.advance(c.head)
			c.tail = c.advance(c.tail)
		}
		p.value = zero
		p.state = waitNoValue
		c.mu.Unlock()
		p.wake()
		return v, true, nil
	}
	if c.head != c.tail {
		i := c.slot(c.head)
		v := c.buf[i]
		c.buf[i] = zero
		c.head = c.advance(c.head)
		c.mu.Unlock()
		return v, true, nil
	}
	return zero, false, nil
}

// Close closes the Channel. Every suspended Put and Get resumes with
// ErrClosed and later calls fail immediately. Closing twice is a no-op.
// Buffered values that were never received are dropped.
func (c *Channel[T]) Close() {
	if !c.state.CompareAndSwap(chanOpen, chanClosed) {
		return
	}
	c.mu.Lock()
	drained := c.putters
	drained.consume(&c.getters)
	c.putters = waitQueue[T]{}
	clear(c.buf)
	c.head, c.tail = 0, 0
	c.mu.Unlock()
	drained.wakeAll(waitClosed)
}
