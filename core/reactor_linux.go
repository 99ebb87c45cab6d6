//go:build linux

package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// epollReactor is an epoll instance with a registered eventfd used for
// wakeups.
type epollReactor struct {
	epfd   int
	wakefd int
	closed atomic.Bool
}

// DefaultReactorFactory opens an epoll reactor.
func DefaultReactorFactory(node int) (Reactor, error) {
	return NewEpollReactor()
}

// NewEpollReactor creates an epoll instance and registers an eventfd on it.
func NewEpollReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("core: epoll_create1: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("core: eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("core: register eventfd: %w", err)
	}
	return &epollReactor{epfd: epfd, wakefd: wakefd}, nil
}

func (r *epollReactor) Name() string { return "epoll" }
func (r *epollReactor) Fd() int      { return r.epfd }

func (r *epollReactor) Wake() error {
	if r.closed.Load() {
		return ErrReactorClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(r.wakefd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// counter saturated; a wakeup is already pending
		return nil
	}
	return err
}

func (r *epollReactor) Poll(timeout time.Duration) (bool, error) {
	if r.closed.Load() {
		return false, ErrReactorClosed
	}
	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(r.epfd, events[:], int(timeout.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		break
	}
	var buf [8]byte
	if _, err := unix.Read(r.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return false, err
	}
	return true, nil
}

func (r *epollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(unix.Close(r.wakefd), unix.Close(r.epfd))
}
