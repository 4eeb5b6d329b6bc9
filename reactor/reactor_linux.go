//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory. Grounded on
// the teacher's original epoll usage (EpollCreate1/EpollCtl/EpollWait via
// golang.org/x/sys/unix); the eventfd-backed Wake and the timer heap are
// new additions the RPC worker loop needs that the teacher never had.

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type fdState struct {
	cb       Callback
	interest Interest
}

// epollReactor is an epoll-based event reactor with an eventfd wake path
// and an integrated timer heap.
type epollReactor struct {
	epfd   int
	wakeFD int

	mu  sync.Mutex
	fds map[int]*fdState

	timers *timerSet
}

// NewReactor constructs a new epoll-backed Reactor for Linux.
func NewReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	r := &epollReactor{
		epfd:   epfd,
		wakeFD: wfd,
		fds:    make(map[int]*fdState),
		timers: newTimerSet(),
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(epfd)
		return nil, err
	}
	return r, nil
}

func toEpollEvents(i Interest) uint32 {
	var e uint32
	if i&Read != 0 {
		e |= unix.EPOLLIN
	}
	if i&Write != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

// Register starts watching fd for the given interest set.
func (r *epollReactor) Register(fd int, interest Interest, cb Callback) error {
	r.mu.Lock()
	r.fds[fd] = &fdState{cb: cb, interest: interest}
	r.mu.Unlock()
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

// Rearm changes the interest set armed for fd, e.g. toggling write
// interest on and off as a Framer's send queue drains.
func (r *epollReactor) Rearm(fd int, interest Interest) error {
	r.mu.Lock()
	st, ok := r.fds[fd]
	if ok {
		st.interest = interest
	}
	r.mu.Unlock()
	if !ok {
		return errUnknownFD
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (r *epollReactor) Unregister(fd int) error {
	r.mu.Lock()
	delete(r.fds, fd)
	r.mu.Unlock()
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (r *epollReactor) ArmTimer(d time.Duration, cb func()) TimerID {
	return r.timers.arm(d, cb)
}

func (r *epollReactor) CancelTimer(id TimerID) {
	r.timers.cancel(id)
}

// Wake writes to the reactor's eventfd, unblocking a pending EpollWait
// from any goroutine.
func (r *epollReactor) Wake() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(r.wakeFD, buf[:])
}

func (r *epollReactor) Run(stop <-chan struct{}, onWake func()) {
	events := make([]unix.EpollEvent, 128)
	for {
		select {
		case <-stop:
			return
		default:
		}

		timeout := -1
		if d, ok := r.timers.next(); ok {
			timeout = int(d / time.Millisecond)
			if timeout == 0 && d > 0 {
				timeout = 1
			}
		}

		n, err := unix.EpollWait(r.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if fd == r.wakeFD {
				var buf [8]byte
				unix.Read(r.wakeFD, buf[:])
				if onWake != nil {
					onWake()
				}
				continue
			}
			r.mu.Lock()
			st := r.fds[fd]
			r.mu.Unlock()
			if st == nil {
				continue
			}
			readable := ev.Events&unix.EPOLLIN != 0
			writable := ev.Events&unix.EPOLLOUT != 0
			errored := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
			func() {
				defer func() { recover() }()
				st.cb(fd, readable, writable, errored)
			}()
		}

		r.timers.fire()
	}
}

func (r *epollReactor) Close() error {
	unix.Close(r.wakeFD)
	return unix.Close(r.epfd)
}
