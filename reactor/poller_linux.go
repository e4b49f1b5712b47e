//go:build linux

package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-reactor/errs"
	"golang.org/x/sys/unix"
)

// maxPollerFDs is the maximum file descriptor this poller supports with
// direct indexing, matching the teacher's epoll poller.
const maxPollerFDs = 65536

// fdEntry stores per-fd registration state.
type fdEntry struct {
	callback ioCallback
	events   IOEvents
	active   bool
}

// epollPoller implements poller using Linux epoll, plus an eventfd-based
// wake-up channel so a selector blocked in PollIO can be interrupted from
// any other goroutine. Grounded on the teacher's epoll-backed FastPoller
// (eventloop/poller_linux.go); simplified to a plain RWMutex-protected
// array since the reactor's selector goroutine, not a lock-free fast path,
// is the throughput-critical surface here.
type epollPoller struct {
	epfd     int
	wakeFD   int
	eventBuf [256]unix.EpollEvent
	fds      [maxPollerFDs]fdEntry
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPoller() poller { return &epollPoller{} }

func (p *epollPoller) Init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd

	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return err
	}
	p.wakeFD = wakeFD

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFD)
		return err
	}
	return nil
}

func (p *epollPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = unix.Close(p.wakeFD)
	return unix.Close(p.epfd)
}

func (p *epollPoller) RegisterFD(fd int, events IOEvents, cb ioCallback) error {
	if p.closed.Load() {
		return errs.ErrSelectorStopped
	}
	if fd < 0 || fd >= maxPollerFDs {
		return &errs.UsageError{Message: "reactor: fd out of range"}
	}

	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return &errs.UsageError{Message: "reactor: fd already registered"}
	}
	p.fds[fd] = fdEntry{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
	if err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdEntry{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

func (p *epollPoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxPollerFDs {
		return &errs.UsageError{Message: "reactor: fd out of range"}
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return &errs.UsageError{Message: "reactor: fd not registered"}
	}
	p.fds[fd] = fdEntry{}
	p.fdMu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxPollerFDs {
		return &errs.UsageError{Message: "reactor: fd out of range"}
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return &errs.UsageError{Message: "reactor: fd not registered"}
	}
	p.fds[fd].events = events
	p.fdMu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, errs.ErrSelectorStopped
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	p.dispatch(n)
	return n, nil
}

func (p *epollPoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd == p.wakeFD {
			p.drainWake()
			continue
		}
		if fd < 0 || fd >= maxPollerFDs {
			continue
		}
		p.fdMu.RLock()
		entry := p.fds[fd]
		p.fdMu.RUnlock()
		if entry.active && entry.callback != nil {
			entry.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFD, buf[:]); err != nil {
			return
		}
	}
}

// Wake interrupts a blocked PollIO from any goroutine via the eventfd.
func (p *epollPoller) Wake() error {
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, err := unix.Write(p.wakeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var out uint32
	if events&EventRead != 0 {
		out |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToEvents(e uint32) IOEvents {
	var out IOEvents
	if e&unix.EPOLLIN != 0 {
		out |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		out |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		out |= EventError
	}
	if e&unix.EPOLLHUP != 0 || e&unix.EPOLLRDHUP != 0 {
		out |= EventHangup
	}
	return out
}
