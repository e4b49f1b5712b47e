package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-reactor/errs"
	"github.com/joeycumines/go-reactor/rlog"
)

// ManagedSelector owns one OS readiness mechanism and runs a cooperative
// loop on a single goroutine drawn from the pool a SelectorManager manages
// (§4.1). Registration, interest changes and close requests arriving from
// other goroutines are marshaled through actionQueue and a poller wake-up;
// work submitted from the selector's own goroutine runs inline.
type ManagedSelector struct {
	id          int
	p           poller
	actions     *actionQueue
	idle        idleHeap
	config      *Config
	logger      rlog.Logger
	goroutineID atomic.Uint64

	endpointsMu sync.Mutex
	endpoints   map[int]*Endpoint // fd -> Endpoint, for shutdown

	stopping atomic.Bool
	doneCh   chan struct{}

	actionBuf []func() // reused scratch slice, loop-goroutine only
}

func newManagedSelector(id int, cfg *Config) (*ManagedSelector, error) {
	p := newPoller()
	if err := p.Init(); err != nil {
		return nil, err
	}
	return &ManagedSelector{
		id:        id,
		p:         p,
		actions:   newActionQueue(),
		config:    cfg,
		logger:    cfg.Logger,
		endpoints: make(map[int]*Endpoint),
		doneCh:    make(chan struct{}),
	}, nil
}

// isOwnGoroutine reports whether the calling goroutine is the one running
// Run's loop.
func (s *ManagedSelector) isOwnGoroutine() bool {
	id := s.goroutineID.Load()
	return id != 0 && id == currentGoroutineID()
}

// Submit runs fn on the selector goroutine: inline if already called from
// it, otherwise enqueued and the poller woken. Safe from any goroutine.
func (s *ManagedSelector) Submit(fn func()) {
	if fn == nil {
		return
	}
	if s.isOwnGoroutine() {
		fn()
		return
	}
	s.actions.Push(fn)
	_ = s.p.Wake()
}

// Run executes the selector's event loop until Stop is called. Intended to
// be run on its own goroutine by the owning SelectorManager.
func (s *ManagedSelector) Run() {
	s.goroutineID.Store(currentGoroutineID())
	defer close(s.doneCh)

	for !s.stopping.Load() {
		s.actionBuf = s.actions.DrainInto(s.actionBuf[:0])
		for _, action := range s.actionBuf {
			s.safeRun(action)
		}

		now := time.Now()
		for _, e := range s.idle.expired(now) {
			s.safeRun(func() { e.endpoint.fireIdleTimeout() })
		}

		timeout := s.idle.nextTimeoutMs(now)
		if timeout < 0 || timeout > 1000 {
			timeout = 1000 // re-check stopping/actions at least once a second
		}
		if _, err := s.p.PollIO(timeout); err != nil {
			s.logger.Log(rlog.Entry{Level: rlog.LevelError, Category: "selector", SelectorID: int64(s.id), Message: "poll error", Err: err})
		}
	}

	s.shutdown()
}

// safeRun isolates one queued action or idle callback from a panic,
// matching the reactor's "a single misbehaving callback never wedges the
// selector" requirement.
func (s *ManagedSelector) safeRun(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			s.logger.Log(rlog.Entry{
				Level:      rlog.LevelError,
				Category:   "selector",
				SelectorID: int64(s.id),
				Message:    "action panicked",
				Err:        &errs.PanicError{Value: v},
			})
		}
	}()
	fn()
}

// Stop requests the loop to exit after its current iteration and blocks
// until shutdown has run.
func (s *ManagedSelector) Stop() {
	if !s.stopping.CompareAndSwap(false, true) {
		<-s.doneCh
		return
	}
	_ = s.p.Wake()
	<-s.doneCh
}

// shutdown closes every registered Endpoint with a fatal close error,
// drains any remaining actions (discarded — their Endpoints are closing
// too) and tears down the poller.
func (s *ManagedSelector) shutdown() {
	s.endpointsMu.Lock()
	endpoints := make([]*Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		endpoints = append(endpoints, e)
	}
	s.endpointsMu.Unlock()

	for _, e := range endpoints {
		e.closeWithCause(&errs.Closed{Cause: errs.ErrSelectorStopped})
	}

	s.actionBuf = s.actions.DrainInto(s.actionBuf[:0])
	_ = s.p.Close()
}

func (s *ManagedSelector) registerEndpoint(e *Endpoint) error {
	s.endpointsMu.Lock()
	s.endpoints[e.channel.FD()] = e
	s.endpointsMu.Unlock()
	return s.p.RegisterFD(e.channel.FD(), 0, func(events IOEvents) { e.onReadiness(events) })
}

func (s *ManagedSelector) unregisterEndpoint(e *Endpoint) {
	s.endpointsMu.Lock()
	delete(s.endpoints, e.channel.FD())
	s.endpointsMu.Unlock()
	_ = s.p.UnregisterFD(e.channel.FD())
}

func (s *ManagedSelector) modifyInterest(fd int, events IOEvents) error {
	return s.p.ModifyFD(fd, events)
}

func (s *ManagedSelector) scheduleIdle(e *Endpoint, deadline time.Time) *idleEntry {
	return s.idle.schedule(e, deadline)
}

func (s *ManagedSelector) cancelIdle(entry *idleEntry) {
	s.idle.cancel(entry)
}
