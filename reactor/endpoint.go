package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-reactor/errs"
	"golang.org/x/sys/unix"
)

// Endpoint is the exclusive owner of one Channel (§3/§4.3): non-blocking
// read/write plus interest registration, bound to at most one Connection
// at a time. Every operation that mutates interest or in-flight write
// state is marshaled onto the owning ManagedSelector's goroutine via
// Submit, so Endpoint methods are safe to call from any goroutine.
type Endpoint struct {
	channel  *Channel
	selector *ManagedSelector
	pool     Pool

	createdAt time.Time
	lastRead  atomic.Int64 // UnixNano
	lastWrite atomic.Int64

	idleTimeout time.Duration
	idleEntry   *idleEntry // selector-goroutine-confined

	readState     *dirState
	fillSucceeded func()
	fillFailed    func(error)

	writeState *dirState
	writeBufs  [][]byte
	writeCB    func(error)

	interest IOEvents // selector-goroutine-confined mirror of registered events

	connMu sync.Mutex
	conn   Connection

	closed        atomic.Bool
	outputClosed  atomic.Bool
}

// newEndpoint constructs an Endpoint over channel, registered on selector.
// Not exported: embedders install this (or their own) via NewEndpointFunc.
func newEndpoint(channel *Channel, selector *ManagedSelector, pool Pool, idleTimeout time.Duration) *Endpoint {
	now := time.Now()
	e := &Endpoint{
		channel:     channel,
		selector:    selector,
		pool:        pool,
		createdAt:   now,
		idleTimeout: idleTimeout,
		readState:   newDirState(),
		writeState:  newDirState(),
	}
	e.lastRead.Store(now.UnixNano())
	e.lastWrite.Store(now.UnixNano())
	return e
}

// bind installs conn as the Endpoint's Connection, registers the channel
// with the selector, arms the idle timer, and invokes conn.OnOpen.
func (e *Endpoint) bind(conn Connection) error {
	e.connMu.Lock()
	e.conn = conn
	e.connMu.Unlock()

	if err := e.selector.registerEndpoint(e); err != nil {
		return err
	}
	e.selector.Submit(func() { e.armIdleLocked() })
	conn.OnOpen(e)
	return nil
}

// Connection returns the Endpoint's currently bound Connection.
func (e *Endpoint) Connection() Connection {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	return e.conn
}

// FillInterested declares interest in "readable" (§4.3). On readable,
// succeeded fires exactly once; on close or error, failed fires instead.
// Returns errs.ErrAlreadyInterested if a read callback is already
// registered, errs.ErrEndpointClosed if the Endpoint is closed.
func (e *Endpoint) FillInterested(succeeded func(), failed func(error)) error {
	if e.closed.Load() {
		return &errs.Closed{}
	}
	if !e.readState.tryTransition(dirIdle, dirInterested) {
		return errs.ErrAlreadyInterested
	}
	e.fillSucceeded = succeeded
	e.fillFailed = failed

	e.selector.Submit(func() {
		e.interest |= EventRead
		_ = e.selector.modifyInterest(e.channel.FD(), e.interest)
	})
	return nil
}

// Fill performs a non-blocking read into buf. Returns (n, nil) for n>=0
// bytes read, (0, nil) when no data is currently available, or (-1, nil)
// once the peer has closed for writing. Returns a non-nil error
// (errs.Closed or errs.IOError) if the Endpoint is closed or the read
// failed at the OS level.
func (e *Endpoint) Fill(buf []byte) (int, error) {
	if e.closed.Load() {
		return 0, &errs.Closed{}
	}
	n, wouldBlock, err := e.channel.Read(buf)
	if err != nil {
		cause := &errs.IOError{Op: "read", Cause: err}
		e.closeWithCause(cause)
		return 0, cause
	}
	if wouldBlock {
		return 0, nil
	}
	if n == 0 {
		return -1, nil
	}
	e.lastRead.Store(time.Now().UnixNano())
	return n, nil
}

// Write performs a non-blocking gather-write of buffers. cb fires exactly
// once, when every byte across all buffers has been transmitted or the
// write fails. Only one write may be outstanding at a time; a second
// concurrent call returns errs.ErrWriteInFlight without invoking either
// callback.
func (e *Endpoint) Write(buffers [][]byte, cb func(error)) error {
	if e.closed.Load() {
		return &errs.Closed{}
	}
	if !e.writeState.tryTransition(dirIdle, dirPending) {
		return errs.ErrWriteInFlight
	}
	e.writeBufs = buffers
	e.writeCB = cb

	e.selector.Submit(func() { e.pumpWrite() })
	return nil
}

// pumpWrite drains as much of e.writeBufs as the OS will currently accept.
// Runs only on the selector goroutine.
func (e *Endpoint) pumpWrite() {
	for len(e.writeBufs) > 0 {
		buf := e.writeBufs[0]
		if len(buf) == 0 {
			e.writeBufs = e.writeBufs[1:]
			continue
		}
		n, wouldBlock, err := e.channel.Write(buf)
		if err != nil {
			e.finishWrite(&errs.IOError{Op: "write", Cause: err})
			return
		}
		if wouldBlock || n == 0 {
			e.armWriteInterest()
			return
		}
		e.lastWrite.Store(time.Now().UnixNano())
		e.writeBufs[0] = buf[n:]
	}
	e.disarmWriteInterest()
	e.finishWrite(nil)
}

func (e *Endpoint) armWriteInterest() {
	e.interest |= EventWrite
	_ = e.selector.modifyInterest(e.channel.FD(), e.interest)
}

func (e *Endpoint) disarmWriteInterest() {
	if e.interest&EventWrite == 0 {
		return
	}
	e.interest &^= EventWrite
	_ = e.selector.modifyInterest(e.channel.FD(), e.interest)
}

func (e *Endpoint) finishWrite(err error) {
	e.writeState.v.Store(uint32(dirIdle))
	cb := e.writeCB
	e.writeCB = nil
	e.writeBufs = nil
	if cb != nil {
		cb(err)
	}
}

// onReadiness is invoked on the selector goroutine when the poller reports
// events for this Endpoint's fd.
func (e *Endpoint) onReadiness(events IOEvents) {
	e.rearmIdleLocked()

	if events&(EventError|EventHangup) != 0 && events&EventRead == 0 {
		e.failPendingFillLocked(&errs.IOError{Op: "poll", Cause: errs.ErrEndpointClosed})
	}
	if events&EventRead != 0 {
		e.fireFillableLocked()
	}
	if events&EventWrite != 0 {
		e.pumpWrite()
	}
}

func (e *Endpoint) fireFillableLocked() {
	if !e.readState.tryTransition(dirInterested, dirIdle) {
		return // benign: readiness arrived while IDLE
	}
	e.interest &^= EventRead
	_ = e.selector.modifyInterest(e.channel.FD(), e.interest)

	cb := e.fillSucceeded
	e.fillSucceeded, e.fillFailed = nil, nil
	if cb != nil {
		cb()
	}
}

func (e *Endpoint) failPendingFillLocked(cause error) {
	if !e.readState.tryTransition(dirInterested, dirIdle) {
		return
	}
	cb := e.fillFailed
	e.fillSucceeded, e.fillFailed = nil, nil
	if cb != nil {
		cb(cause)
	}
}

// fireIdleTimeout runs on the selector goroutine when this Endpoint's
// idle deadline has passed with no read or write progress. It fails any
// pending read/write callback with a transient timeout, then reschedules
// the next check, per §4.3: idle timeout never closes the channel itself.
func (e *Endpoint) fireIdleTimeout() {
	if e.closed.Load() {
		return
	}
	e.idleEntry = nil
	e.failPendingFillLocked(&errs.Timeout{})
	if e.writeState.load() == dirPending {
		e.finishWrite(&errs.Timeout{})
	}
	e.armIdleLocked()
}

func (e *Endpoint) armIdleLocked() {
	if e.idleTimeout <= 0 || e.closed.Load() {
		return
	}
	e.idleEntry = e.selector.scheduleIdle(e, time.Now().Add(e.idleTimeout))
}

func (e *Endpoint) rearmIdleLocked() {
	if e.idleTimeout <= 0 {
		return
	}
	if e.idleEntry != nil {
		e.selector.cancelIdle(e.idleEntry)
	}
	e.armIdleLocked()
}

// ShutdownOutput half-closes the write direction without tearing down the
// read side or failing pending reads.
func (e *Endpoint) ShutdownOutput() error {
	if !e.outputClosed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Shutdown(e.channel.FD(), unix.SHUT_WR)
}

// Close closes the Endpoint with a generic cause, idempotently.
func (e *Endpoint) Close() error { return e.closeWithCause(nil) }

// closeWithCause closes the Endpoint, failing any pending read/write
// callback with cause (or a generic Closed error), and invokes the bound
// Connection's OnClose exactly once.
func (e *Endpoint) closeWithCause(cause error) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	closeErr := error(&errs.Closed{Cause: cause})

	e.connMu.Lock()
	conn := e.conn
	e.conn = nil
	e.connMu.Unlock()

	e.selector.Submit(func() {
		if e.idleEntry != nil {
			e.selector.cancelIdle(e.idleEntry)
			e.idleEntry = nil
		}
		e.failPendingFillLocked(closeErr)
		if e.writeState.load() == dirPending {
			e.finishWrite(closeErr)
		}
		e.readState.forceClose()
		e.writeState.forceClose()
		e.selector.unregisterEndpoint(e)
	})

	_ = e.channel.Close()

	if conn != nil {
		conn.OnClose(cause)
	}
	return nil
}

// Upgrade atomically replaces the Connection bound to this Endpoint (§3).
// The outgoing Connection receives OnClose(nil); the incoming receives
// OnOpen. Pending read interest is cleared across the swap (P7).
func (e *Endpoint) Upgrade(next Connection) {
	e.connMu.Lock()
	prev := e.conn
	e.conn = next
	e.connMu.Unlock()

	e.selector.Submit(func() {
		e.fillSucceeded, e.fillFailed = nil, nil
		e.readState.v.Store(uint32(dirIdle))
		e.interest &^= EventRead
		_ = e.selector.modifyInterest(e.channel.FD(), e.interest)
	})

	if prev != nil {
		prev.OnClose(nil)
	}
	next.OnOpen(e)
}

// Pool returns the buffer pool this Endpoint was constructed with.
func (e *Endpoint) Pool() Pool { return e.pool }

// CreatedAt returns the Endpoint's construction time.
func (e *Endpoint) CreatedAt() time.Time { return e.createdAt }

// LocalAddr returns the underlying Channel's local address.
func (e *Endpoint) LocalAddr() any { return e.channel.LocalAddr() }

// RemoteAddr returns the underlying Channel's remote address.
func (e *Endpoint) RemoteAddr() any { return e.channel.RemoteAddr() }
