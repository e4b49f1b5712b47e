package content

import (
	"sync"

	"github.com/joeycumines/go-reactor/errs"
)

// Sink is a consumer of writes with a single outstanding write at a time
// (§4.8). last=true marks the terminal write; any write attempted after it
// fails.
type Sink interface {
	// Write enqueues one write. cb fires exactly once, when the write
	// completes or fails. Attempting a second write while one is
	// outstanding, or any write after the terminal write, fails cb
	// immediately with a usage error.
	Write(last bool, view []byte, cb func(error))
}

// ManualSink is a reference Sink implementation that records writes for
// inspection (tests, the Copy helper's unit tests) and completes them via an
// injectable strategy, defaulting to "complete immediately, successfully".
type ManualSink struct {
	mu       sync.Mutex
	pending  bool
	done     bool
	Complete func(view []byte, last bool, cb func(error))
	Writes   []Write
}

// Write records one call made to a ManualSink.
type Write struct {
	View []byte
	Last bool
}

// NewManualSink returns a ManualSink that completes every write immediately
// and successfully.
func NewManualSink() *ManualSink {
	return &ManualSink{}
}

func (s *ManualSink) Write(last bool, view []byte, cb func(error)) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		if cb != nil {
			cb(&errs.UsageError{Message: "write after sink's terminal write"})
		}
		return
	}
	if s.pending {
		s.mu.Unlock()
		if cb != nil {
			cb(errs.ErrWriteInFlight)
		}
		return
	}
	s.pending = true
	s.Writes = append(s.Writes, Write{View: view, Last: last})
	complete := s.Complete
	s.mu.Unlock()

	finish := func(err error) {
		s.mu.Lock()
		s.pending = false
		if err == nil && last {
			s.done = true
		}
		s.mu.Unlock()
		if cb != nil {
			cb(err)
		}
	}

	if complete != nil {
		complete(view, last, finish)
		return
	}
	finish(nil)
}
