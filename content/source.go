package content

import (
	"sync"

	"github.com/joeycumines/go-reactor/errs"
)

// Source is a lazy, finite, non-restartable producer of Chunks. Its
// contract (§4.7): Read is non-blocking and returns nil when no chunk is
// currently available; Demand registers a one-shot "content may be
// available" notification; Fail transitions to a fatal terminal state.
type Source interface {
	// Read returns the next chunk, or nil if none is currently available.
	// Once the source is terminal, every subsequent call returns the same
	// terminal chunk shape (P5).
	Read() *Chunk
	// Demand registers cb to run at most once, the next time content may be
	// available. Calling Demand while one is already outstanding is a usage
	// error.
	Demand(cb func()) error
	// Fail transitions the source to failed-terminal; every future Read
	// returns a fatal failure chunk with cause. Any outstanding demand
	// fires immediately.
	Fail(cause error)
}

// ManualSource is a Source a producer feeds by calling Push/Fail directly.
// It is the reference implementation used both standalone (e.g. tests, the
// Copy helper) and as the buffering core of the Endpoint-backed source the
// reactor package builds over a Connection's fill loop.
type ManualSource struct {
	mu                sync.Mutex
	buffer            []*Chunk
	demand            func()
	terminal          bool
	terminalIsFailure bool
	terminalErr       error
}

// NewManualSource returns an empty, non-terminal source.
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// Push appends a chunk for a future Read to return, firing any outstanding
// demand. Pushing after the source has reached a terminal state is a no-op:
// producers racing a Fail/terminal Push lose silently, matching "once
// terminal, stays terminal".
func (s *ManualSource) Push(c *Chunk) {
	s.mu.Lock()
	if s.terminal || (len(s.buffer) > 0 && s.buffer[len(s.buffer)-1].IsLast()) {
		s.mu.Unlock()
		return
	}
	s.buffer = append(s.buffer, c)
	cb := s.demand
	s.demand = nil
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Read implements Source.
func (s *ManualSource) Read() *Chunk {
	s.mu.Lock()

	if len(s.buffer) == 0 {
		if s.terminal {
			failure, err := s.terminalIsFailure, s.terminalErr
			s.mu.Unlock()
			if failure {
				return Failure(true, err)
			}
			return EndOfStream()
		}
		s.mu.Unlock()
		return nil
	}

	c := s.buffer[0]
	s.buffer = s.buffer[1:]

	if c.IsLast() {
		s.terminal = true
		s.terminalIsFailure = c.FailureOrNil() != nil
		s.terminalErr = c.FailureOrNil()
	}

	s.mu.Unlock()
	return c
}

// Demand implements Source.
func (s *ManualSource) Demand(cb func()) error {
	if cb == nil {
		return nil
	}

	s.mu.Lock()
	if s.demand != nil {
		s.mu.Unlock()
		return &errs.UsageError{Message: "demand already pending"}
	}
	if s.terminal || len(s.buffer) > 0 {
		s.mu.Unlock()
		cb()
		return nil
	}
	s.demand = cb
	s.mu.Unlock()
	return nil
}

// Fail implements Source.
func (s *ManualSource) Fail(cause error) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	s.terminal = true
	s.terminalIsFailure = true
	s.terminalErr = cause
	s.buffer = nil
	cb := s.demand
	s.demand = nil
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}
