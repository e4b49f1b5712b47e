// Package iterstep implements the Iterating Step Driver: the primitive that
// converts a tail-recursive async completion chain into bounded iteration,
// so that a chain of synchronously-completing operations (the common case
// for a warm echo loop or a drained write pump) never grows the call stack.
//
// It is the foundation every unbounded loop in this module is built on:
// Connection fill loops, content.Copy, and any future write pump.
package iterstep

import (
	"sync"

	"github.com/joeycumines/go-reactor/errs"
)

// Result is the outcome a Process function reports for one step.
type Result int

const (
	// Scheduled means the step started an asynchronous operation and
	// registered the Driver as its callback (via Succeeded/Failed).
	Scheduled Result = iota
	// Idle means the step has nothing more to do right now; a later call
	// to Iterate resumes the loop.
	Idle
	// Succeeded ends the loop successfully.
	Succeeded
)

// Process is supplied by the caller. It may panic; a panic is recovered and
// treated as a failure carrying an *errs.PanicError.
type Process func() (Result, error)

type driverState int32

const (
	stateIdle driverState = iota
	stateProcessing
	statePending
	stateCalled
	stateTerminal
)

// Driver runs a Process function in a loop, absorbing synchronous
// completions as iteration instead of recursion (see package doc).
//
// Driver itself is the Callback capability a started async operation
// completes against: call Succeeded or Failed from wherever that operation
// finishes, whether that is before Process returns (synchronous) or later,
// possibly from a different goroutine (asynchronous).
type Driver struct {
	mu      sync.Mutex
	state   driverState
	process Process

	onSuccess func()
	onFailure func(error)

	// calledSucceeded/calledErr capture a synchronous Succeeded/Failed call
	// that arrived while state was stateProcessing, so the loop can collect
	// it without recursing back into the caller.
	calledSucceeded bool
	calledErr       error
}

// New constructs a Driver. onSuccess and onFailure are the terminal hooks;
// either may be nil.
func New(process Process, onSuccess func(), onFailure func(error)) *Driver {
	return &Driver{
		process:   process,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
}

// Iterate starts (or resumes) the loop. It is a no-op if the driver is
// already processing, pending an async completion, or has reached a
// terminal state.
func (d *Driver) Iterate() {
	d.mu.Lock()
	if d.state != stateIdle {
		d.mu.Unlock()
		return
	}
	d.state = stateProcessing
	d.mu.Unlock()

	d.loop()
}

// Succeeded reports that the asynchronous operation the last Process call
// scheduled has completed successfully. It is a no-op (not a panic) if
// called after the driver has already reached a terminal state, matching
// the spec's "at most once" contract without penalizing a defensive caller
// who can't tell whether a race already closed things out.
func (d *Driver) Succeeded() {
	d.complete(true, nil)
}

// Failed reports that the scheduled asynchronous operation failed.
func (d *Driver) Failed(cause error) {
	if cause == nil {
		cause = errs.ErrEndpointClosed
	}
	d.complete(false, cause)
}

func (d *Driver) complete(succeeded bool, cause error) {
	d.mu.Lock()
	switch d.state {
	case stateProcessing:
		// Synchronous completion: record it, let the active loop frame pick
		// it up instead of recursing into another Process call here.
		d.state = stateCalled
		d.calledSucceeded = succeeded
		d.calledErr = cause
		d.mu.Unlock()
		return
	case statePending:
		// Asynchronous completion: resume the loop from this goroutine.
		d.state = stateProcessing
		d.mu.Unlock()
		if !succeeded {
			d.finishFailure(cause)
			return
		}
		d.loop()
		return
	default:
		// Terminal or idle: ignore, per the note above.
		d.mu.Unlock()
		return
	}
}

// loop runs Process repeatedly until it returns Idle/Succeeded, fails, or
// schedules an async step whose completion hasn't happened yet.
func (d *Driver) loop() {
	for {
		result, err := d.callProcess()
		if err != nil {
			d.finishFailure(err)
			return
		}

		switch result {
		case Idle:
			d.mu.Lock()
			if d.state == stateProcessing {
				d.state = stateIdle
			}
			d.mu.Unlock()
			return

		case Succeeded:
			d.finishSuccess()
			return

		case Scheduled:
			d.mu.Lock()
			if d.state == stateCalled {
				succeeded, cause := d.calledSucceeded, d.calledErr
				d.calledErr = nil
				d.state = stateProcessing
				d.mu.Unlock()
				if !succeeded {
					d.finishFailure(cause)
					return
				}
				continue // loop: call Process again, iteratively not recursively
			}
			d.state = statePending
			d.mu.Unlock()
			return
		}
	}
}

func (d *Driver) callProcess() (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errs.PanicError{Value: r}
		}
	}()
	return d.process()
}

func (d *Driver) finishSuccess() {
	d.mu.Lock()
	d.state = stateTerminal
	d.mu.Unlock()
	if d.onSuccess != nil {
		d.onSuccess()
	}
}

func (d *Driver) finishFailure(cause error) {
	d.mu.Lock()
	d.state = stateTerminal
	d.mu.Unlock()
	if d.onFailure != nil {
		d.onFailure(cause)
	}
}

// Close transitions the driver directly to terminal, without running
// onSuccess/onFailure. It is used when the owning Connection/Endpoint is
// torn down independently of the driver reaching a natural conclusion.
func (d *Driver) Close() {
	d.mu.Lock()
	d.state = stateTerminal
	d.mu.Unlock()
}
