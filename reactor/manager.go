package reactor

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-reactor/errs"
	"github.com/joeycumines/go-reactor/rlog"
)

// SelectorManager owns a fixed-size pool of ManagedSelectors and routes
// newly adopted Channels to them (§4.2). A Channel, once routed, stays on
// the same selector for its lifetime.
type SelectorManager struct {
	config     *Config
	selectors  []*ManagedSelector
	nextSel    atomic.Uint64
	newEndpoint NewEndpointFunc
	newConn     NewConnectionFunc
	listeners   *listenerRegistry
	logger      rlog.Logger

	stopped atomic.Bool
}

// NewSelectorManager constructs a SelectorManager with its pool of
// ManagedSelectors already running, each on its own goroutine.
// newEndpointFn/newConnFn are the embedder's factory hooks (§4.2); neither
// may be nil. listeners observe connection lifecycle events (§4.4).
func NewSelectorManager(newEndpointFn NewEndpointFunc, newConnFn NewConnectionFunc, listeners []Listener, opts ...Option) (*SelectorManager, error) {
	if newEndpointFn == nil || newConnFn == nil {
		return nil, &errs.UsageError{Message: "reactor: both factory hooks are required"}
	}
	cfg := Resolve(opts)

	m := &SelectorManager{
		config:      cfg,
		newEndpoint: newEndpointFn,
		newConn:     newConnFn,
		listeners:   newListenerRegistry(cfg.Logger, listeners),
		logger:      cfg.Logger,
	}

	for i := 0; i < cfg.Selectors; i++ {
		sel, err := newManagedSelector(i, cfg)
		if err != nil {
			m.Stop()
			return nil, err
		}
		m.selectors = append(m.selectors, sel)
		go sel.Run()
	}
	return m, nil
}

// pick returns the next selector in round-robin order.
func (m *SelectorManager) pick() *ManagedSelector {
	n := m.nextSel.Add(1) - 1
	return m.selectors[int(n)%len(m.selectors)]
}

// Accept binds a newly accepted Channel to a selector, after consulting the
// accept-rate policy (if one is configured). A rejected accept closes conn
// immediately, fires ConnectionRejected exactly once, and never constructs
// an Endpoint or Connection (P8).
func (m *SelectorManager) Accept(conn net.Conn, ctx any) error {
	if m.stopped.Load() {
		_ = conn.Close()
		return errs.ErrSelectorManagerOff
	}

	if m.config.AcceptLimiter != nil {
		if _, ok := m.config.AcceptLimiter.Allow(conn.RemoteAddr()); !ok {
			cause := fmt.Errorf("reactor: accept rate exceeded for %s", conn.RemoteAddr())
			m.listeners.rejected(conn.RemoteAddr(), cause)
			_ = conn.Close()
			return cause
		}
	}

	return m.adopt(conn, ctx)
}

// Connect registers an in-progress or already-established outbound Channel
// for connect-readiness/completion, building the Endpoint once usable.
// timeout bounds how long the connect may remain pending; zero uses the
// Config's ConnectTimeout.
func (m *SelectorManager) Connect(ctx context.Context, conn net.Conn, attachment any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.config.ConnectTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	default:
	}
	return m.adopt(conn, attachment)
}

// Adopt accepts a fully prepared Channel for use, skipping any accept
// policy — for channels that already exchanged bytes outside the reactor.
func (m *SelectorManager) Adopt(conn net.Conn, ctx any) error {
	return m.adopt(conn, ctx)
}

func (m *SelectorManager) adopt(conn net.Conn, ctx any) error {
	channel, err := NewChannel(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	sel := m.pick()
	endpoint := m.newEndpoint(channel, sel)
	connection := m.newConn(endpoint, ctx)

	wrapped := &observedConnection{Connection: connection, listeners: m.listeners}
	if err := endpoint.bind(wrapped); err != nil {
		_ = channel.Close()
		return err
	}
	m.listeners.opened(connection)
	return nil
}

// Stop stops every Managed Selector, closing all live Endpoints.
func (m *SelectorManager) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	for _, sel := range m.selectors {
		sel.Stop()
	}
}

// observedConnection wraps a Connection so the ConnectionClosed listener
// hook fires exactly once, from the one place OnClose is ever invoked,
// without requiring every embedder Connection to remember to call it.
type observedConnection struct {
	Connection
	listeners *listenerRegistry
}

func (o *observedConnection) OnClose(cause error) {
	o.Connection.OnClose(cause)
	o.listeners.closed(o.Connection, cause)
}
