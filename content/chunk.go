// Package content implements the Content.Chunk / Content.Source /
// Content.Sink layer: a higher-level pull/push byte stream built over an
// Endpoint, with explicit ref-counted buffer ownership so zero-copy slicing
// is safe across protocol layers.
//
// The retain/release shape here is grounded on the one-shot, buffered
// callback streams in github.com/joeycumines/go-inprocgrpc's internal
// stream package (HalfStream): a small buffer plus a single outstanding
// waiter, rather than a channel, so demand can be serviced either
// synchronously or from whichever goroutine produced the data.
package content

import (
	"sync/atomic"

	"github.com/joeycumines/go-reactor/errs"
)

// ref is the shared retain count and pool-return hook behind every Chunk
// sliced from the same underlying allocation.
type ref struct {
	count atomic.Int32
	buf   []byte
	pool  func([]byte)
}

// Chunk is an immutable reference to a byte view plus last/failure flags.
// See the package doc and SPEC_FULL.md §3/§4.6 for the full contract.
type Chunk struct {
	view    []byte
	last    bool
	failure error
	ref     *ref // nil for terminal/failure chunks, which own no pooled buffer
}

// Of constructs a data chunk backed by buf, initially retained once. release
// is invoked (with the original buf, not the possibly-narrower view) when
// the retain count reaches zero; it may be nil if the chunk does not own a
// pooled buffer.
func Of(buf []byte, last bool, release func([]byte)) *Chunk {
	r := &ref{buf: buf, pool: release}
	r.count.Store(1)
	return &Chunk{view: buf, last: last, ref: r}
}

// EndOfStream returns a fresh terminal empty chunk: empty view, last=true,
// no failure.
func EndOfStream() *Chunk {
	return &Chunk{last: true}
}

// Failure constructs a failure chunk: empty view, non-nil failure. fatal
// distinguishes a fatal failure (terminal) from a transient one a reader
// may choose to ignore and keep reading past.
func Failure(fatal bool, cause error) *Chunk {
	if cause == nil {
		cause = errs.ErrEndpointClosed
	}
	return &Chunk{last: fatal, failure: cause}
}

// ByteView returns the chunk's byte view. Callers must not retain a
// reference to it past Release.
func (c *Chunk) ByteView() []byte { return c.view }

// IsLast reports whether this is the terminal chunk for the source (for a
// failure chunk, whether the failure is fatal rather than transient).
func (c *Chunk) IsLast() bool { return c.last }

// FailureOrNil returns the chunk's failure cause, or nil for a data chunk
// or a non-fatal terminal empty chunk.
func (c *Chunk) FailureOrNil() error { return c.failure }

// Retain increments the chunk's reference count and returns the chunk
// itself, for chaining at a hand-off site.
func (c *Chunk) Retain() *Chunk {
	if c.ref != nil {
		c.ref.count.Add(1)
	}
	return c
}

// Release decrements the chunk's reference count, returning the underlying
// buffer to its pool when the count reaches zero. Terminal/failure chunks
// (no pooled buffer) treat Release as a no-op, per the spec's "release
// optional" carve-out for failure chunks — extended here to success
// terminal chunks too, since neither owns pooled memory.
//
// Returns errs.ErrReleasedTooMany if called more times than the chunk (and
// its slices) were retained.
func (c *Chunk) Release() error {
	if c.ref == nil {
		return nil
	}
	n := c.ref.count.Add(-1)
	if n < 0 {
		return errs.ErrReleasedTooMany
	}
	if n == 0 && c.ref.pool != nil {
		c.ref.pool(c.ref.buf)
	}
	return nil
}

// Slice returns a new chunk over view[offset:offset+length], sharing the
// same underlying allocation and retain count as c — a zero-copy split.
// The new chunk's last/failure flags are independent, since a slice of a
// larger chunk is not itself necessarily the stream's terminal chunk.
func (c *Chunk) Slice(offset, length int, last bool) *Chunk {
	view := c.view[offset : offset+length]
	if c.ref != nil {
		c.ref.count.Add(1)
	}
	return &Chunk{view: view, last: last, ref: c.ref}
}
