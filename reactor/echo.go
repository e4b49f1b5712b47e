package reactor

import (
	"github.com/joeycumines/go-reactor/iterstep"
)

// EchoConnection is the reference Connection from Testable Scenario 1: it
// reads whatever the peer sends and writes it straight back, looping via
// the Iterating Step Driver so a peer that keeps the pipe full (and whose
// writes keep completing synchronously) never recurses (P6).
type EchoConnection struct {
	endpoint *Endpoint
	driver   *iterstep.Driver
	buf      []byte
}

// NewEchoConnection is a NewConnectionFunc suitable for passing to
// NewSelectorManager directly.
func NewEchoConnection(endpoint *Endpoint, _ any) Connection {
	return &EchoConnection{endpoint: endpoint}
}

func (c *EchoConnection) OnOpen(endpoint *Endpoint) {
	c.endpoint = endpoint
	c.buf = endpoint.Pool().Get()
	c.armRead()
}

func (c *EchoConnection) armRead() {
	if err := c.endpoint.FillInterested(c.onFillableStart, c.onFillFailed); err != nil {
		c.fail(err)
	}
}

// onFillableStart begins one Iterating Step Driver run per fillable event:
// fill → write-back → re-fill-if-more, all without recursing on
// synchronous write completion.
func (c *EchoConnection) onFillableStart() {
	c.driver = iterstep.New(c.step, c.onStepDone, c.fail)
	c.driver.Iterate()
}

func (c *EchoConnection) onFillFailed(err error) {
	c.fail(err)
}

func (c *EchoConnection) step() (iterstep.Result, error) {
	n, err := c.endpoint.Fill(c.buf)
	if err != nil {
		return 0, err
	}
	if n == -1 {
		// Peer closed for writing: tear down instead of re-arming.
		_ = c.endpoint.Close()
		return iterstep.Idle, nil
	}
	if n == 0 {
		// Drained for now: end this run so onStepDone re-arms read interest.
		return iterstep.Succeeded, nil
	}

	payload := append([]byte(nil), c.buf[:n]...)
	driver := c.driver
	if err := c.endpoint.Write([][]byte{payload}, func(err error) {
		if err != nil {
			driver.Failed(err)
			return
		}
		driver.Succeeded()
	}); err != nil {
		return 0, err
	}
	return iterstep.Scheduled, nil
}

func (c *EchoConnection) onStepDone() {
	c.armRead()
}

func (c *EchoConnection) fail(err error) {
	_ = c.endpoint.closeWithCause(err) // surfaced to the listener via OnClose below
}

func (c *EchoConnection) OnFillable() {
	// Unused: EchoConnection drives its own loop from FillInterested's
	// succeeded callback (onFillableStart) rather than this hook, since it
	// needs the Iterating Step Driver wrapped around every re-entry.
}

func (c *EchoConnection) OnClose(cause error) {
	if c.buf != nil {
		c.endpoint.Pool().Put(c.buf)
		c.buf = nil
	}
	if c.driver != nil {
		c.driver.Close()
	}
	_ = cause
}
