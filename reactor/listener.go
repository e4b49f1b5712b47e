package reactor

import (
	"fmt"
	"net"

	"github.com/joeycumines/go-reactor/errs"
	"github.com/joeycumines/go-reactor/rlog"
)

// Listener observes Connection lifecycle events for statistics and
// connection-limit policies. Implementations must not block; Listener
// panics are recovered, logged, and isolated from other listeners and from
// the selector thread (P9).
type Listener interface {
	// ConnectionOpened fires after a Connection's on-open hook returns.
	ConnectionOpened(conn Connection)
	// ConnectionClosed fires after a Connection's on-close hook returns.
	ConnectionClosed(conn Connection, cause error)
	// ConnectionRejected fires when the accept-rate policy declines a
	// channel before any Endpoint/Connection is constructed (§4.2).
	ConnectionRejected(remoteAddr net.Addr, cause error)
}

// listenerRegistry dispatches to a set of Listeners with panic isolation.
type listenerRegistry struct {
	listeners []Listener
	logger    rlog.Logger
}

func newListenerRegistry(logger rlog.Logger, listeners []Listener) *listenerRegistry {
	if logger == nil {
		logger = rlog.NoOp()
	}
	return &listenerRegistry{listeners: listeners, logger: logger}
}

func (r *listenerRegistry) opened(conn Connection) {
	for _, l := range r.listeners {
		r.guard("connection-opened", func() { l.ConnectionOpened(conn) })
	}
}

func (r *listenerRegistry) closed(conn Connection, cause error) {
	for _, l := range r.listeners {
		r.guard("connection-closed", func() { l.ConnectionClosed(conn, cause) })
	}
}

func (r *listenerRegistry) rejected(addr net.Addr, cause error) {
	for _, l := range r.listeners {
		r.guard("connection-rejected", func() { l.ConnectionRejected(addr, cause) })
	}
}

// guard isolates a single listener invocation: a panic is recovered,
// converted to an errs.PanicError, logged, and never propagates past this
// call site (P9) — and never stops the remaining listeners from running.
func (r *listenerRegistry) guard(category string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			pe := &errs.PanicError{Value: v}
			r.logger.Log(rlog.Entry{
				Level:    rlog.LevelError,
				Category: category,
				Message:  fmt.Sprintf("listener panicked: %v", pe),
				Err:      pe,
			})
		}
	}()
	fn()
}
