//go:build darwin

package reactor

import (
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/joeycumines/go-reactor/errs"
	"golang.org/x/sys/unix"
)

// maxPollerFDs bounds the dynamic fds slice's initial allocation; it grows
// on demand for higher descriptors, matching the teacher's Darwin poller.
const maxPollerFDs = 65536

type fdEntry struct {
	callback ioCallback
	events   IOEvents
	active   bool
}

// kqueuePoller implements poller using Darwin kqueue. Since kqueue has no
// eventfd equivalent, wake-up uses a dedicated non-blocking self-pipe,
// exactly as the teacher's Darwin build does for its own event loop
// (eventloop/wakeup_darwin.go).
type kqueuePoller struct {
	kq         int
	wakeRead   int
	wakeWrite  int
	eventBuf   [256]unix.Kevent_t
	fds        []fdEntry
	fdMu       sync.RWMutex
	closed     atomic.Bool
}

func newPoller() poller { return &kqueuePoller{} }

func (p *kqueuePoller) Init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	p.fds = make([]fdEntry, maxPollerFDs)

	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		_ = unix.Close(kq)
		return err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		_ = unix.Close(kq)
		return err
	}
	p.wakeRead, p.wakeWrite = fds[0], fds[1]

	_, err = unix.Kevent(p.kq, []unix.Kevent_t{{
		Ident:  uint64(p.wakeRead),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}, nil, nil)
	if err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		_ = unix.Close(kq)
		return err
	}
	return nil
}

func (p *kqueuePoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = syscall.Close(p.wakeRead)
	_ = syscall.Close(p.wakeWrite)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) ensureCapacity(fd int) {
	if fd < len(p.fds) {
		return
	}
	newSize := fd*2 + 1
	newFds := make([]fdEntry, newSize)
	copy(newFds, p.fds)
	p.fds = newFds
}

func (p *kqueuePoller) RegisterFD(fd int, events IOEvents, cb ioCallback) error {
	if p.closed.Load() {
		return errs.ErrSelectorStopped
	}
	if fd < 0 {
		return &errs.UsageError{Message: "reactor: fd out of range"}
	}

	p.fdMu.Lock()
	p.ensureCapacity(fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return &errs.UsageError{Message: "reactor: fd already registered"}
	}
	p.fds[fd] = fdEntry{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	if kevs := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE); len(kevs) > 0 {
		if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
			p.fdMu.Lock()
			p.fds[fd] = fdEntry{}
			p.fdMu.Unlock()
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) UnregisterFD(fd int) error {
	if fd < 0 {
		return &errs.UsageError{Message: "reactor: fd out of range"}
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return &errs.UsageError{Message: "reactor: fd not registered"}
	}
	events := p.fds[fd].events
	p.fds[fd] = fdEntry{}
	p.fdMu.Unlock()

	if kevs := eventsToKevents(fd, events, unix.EV_DELETE); len(kevs) > 0 {
		_, _ = unix.Kevent(p.kq, kevs, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 {
		return &errs.UsageError{Message: "reactor: fd out of range"}
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return &errs.UsageError{Message: "reactor: fd not registered"}
	}
	old := p.fds[fd].events
	p.fds[fd].events = events
	p.fdMu.Unlock()

	if del := old &^ events; del != 0 {
		if kevs := eventsToKevents(fd, del, unix.EV_DELETE); len(kevs) > 0 {
			_, _ = unix.Kevent(p.kq, kevs, nil, nil)
		}
	}
	if add := events &^ old; add != 0 {
		if kevs := eventsToKevents(fd, add, unix.EV_ADD|unix.EV_ENABLE); len(kevs) > 0 {
			if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *kqueuePoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, errs.ErrSelectorStopped
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	p.dispatch(n)
	return n, nil
}

func (p *kqueuePoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd == p.wakeRead {
			p.drainWake()
			continue
		}
		if fd < 0 {
			continue
		}
		p.fdMu.RLock()
		var entry fdEntry
		if fd < len(p.fds) {
			entry = p.fds[fd]
		}
		p.fdMu.RUnlock()
		if entry.active && entry.callback != nil {
			entry.callback(keventToEvents(&p.eventBuf[i]))
		}
	}
}

func (p *kqueuePoller) drainWake() {
	var buf [64]byte
	for {
		if _, err := syscall.Read(p.wakeRead, buf[:]); err != nil {
			return
		}
	}
}

// Wake interrupts a blocked PollIO from any goroutine via the self-pipe.
func (p *kqueuePoller) Wake() error {
	_, err := syscall.Write(p.wakeWrite, []byte{1})
	if err != nil && err != syscall.EAGAIN {
		return err
	}
	return nil
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var out IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		out |= EventRead
	case unix.EVFILT_WRITE:
		out |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		out |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		out |= EventHangup
	}
	return out
}
