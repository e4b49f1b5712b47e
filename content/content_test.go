package content_test

import (
	"errors"
	"testing"

	"github.com/joeycumines/go-reactor/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_RetainReleaseBalance(t *testing.T) {
	var returned []byte
	buf := []byte("hello")
	c := content.Of(buf, false, func(b []byte) { returned = b })

	c.Retain()
	require.NoError(t, c.Release())
	assert.Nil(t, returned, "still one outstanding reference")

	require.NoError(t, c.Release())
	assert.Equal(t, buf, returned, "buffer returned to pool once fully released")
}

func TestChunk_ReleaseUnderflow(t *testing.T) {
	c := content.Of([]byte("x"), true, nil)
	require.NoError(t, c.Release())
	assert.Error(t, c.Release())
}

func TestChunk_TerminalAndFailureNeedNoRelease(t *testing.T) {
	eos := content.EndOfStream()
	assert.NoError(t, eos.Release())
	assert.True(t, eos.IsLast())
	assert.Nil(t, eos.FailureOrNil())

	f := content.Failure(false, errors.New("transient"))
	assert.False(t, f.IsLast())
	assert.Error(t, f.FailureOrNil())
	assert.NoError(t, f.Release())
}

func TestChunk_SliceSharesRetainCount(t *testing.T) {
	var released bool
	buf := []byte("0123456789")
	c := content.Of(buf, false, func([]byte) { released = true })

	slice := c.Slice(2, 4, false)
	assert.Equal(t, []byte("2345"), slice.ByteView())

	require.NoError(t, c.Release())
	assert.False(t, released, "slice still holds a reference")
	require.NoError(t, slice.Release())
	assert.True(t, released)
}

func TestManualSource_ReadReturnsNilThenDelivers(t *testing.T) {
	s := content.NewManualSource()
	assert.Nil(t, s.Read())

	fired := false
	require.NoError(t, s.Demand(func() { fired = true }))
	assert.False(t, fired)

	s.Push(content.Of([]byte("a"), false, nil))
	assert.True(t, fired)

	c := s.Read()
	require.NotNil(t, c)
	assert.Equal(t, []byte("a"), c.ByteView())
}

func TestManualSource_DoubleDemandIsUsageError(t *testing.T) {
	s := content.NewManualSource()
	require.NoError(t, s.Demand(func() {}))
	assert.Error(t, s.Demand(func() {}))
}

func TestManualSource_TerminalStability(t *testing.T) {
	s := content.NewManualSource()
	s.Push(content.EndOfStream())

	first := s.Read()
	require.True(t, first.IsLast())
	require.NoError(t, first.Release())

	second := s.Read()
	assert.True(t, second.IsLast())
	assert.Nil(t, second.FailureOrNil())
}

func TestManualSource_FailPromotesToFatal(t *testing.T) {
	s := content.NewManualSource()
	s.Push(content.Of([]byte("x"), false, nil))

	cause := errors.New("kaboom")
	s.Fail(cause)

	// Buffered-but-unread data before Fail is discarded per the
	// "once terminal, stays terminal" rule.
	c := s.Read()
	require.NotNil(t, c)
	assert.True(t, c.IsLast())
	assert.ErrorIs(t, c.FailureOrNil(), cause)

	// Every subsequent read returns the same terminal failure.
	again := s.Read()
	assert.ErrorIs(t, again.FailureOrNil(), cause)
}

func TestCopy_DeliversSizesAndTerminatesOnLast(t *testing.T) {
	source := content.NewManualSource()
	sink := content.NewManualSink()

	source.Push(content.Of(make([]byte, 10), false, nil))
	source.Push(content.Of(nil, false, nil)) // zero-length, non-last
	source.Push(content.Of(make([]byte, 20), false, nil))
	source.Push(content.EndOfStream())

	var doneErr error
	doneCalled := make(chan struct{})
	content.Copy(source, sink, func(err error) {
		doneErr = err
		close(doneCalled)
	})
	<-doneCalled

	require.NoError(t, doneErr)
	require.Len(t, sink.Writes, 3)
	assert.Len(t, sink.Writes[0].View, 10)
	assert.False(t, sink.Writes[0].Last)
	assert.Len(t, sink.Writes[1].View, 20)
	assert.False(t, sink.Writes[1].Last)
	assert.Len(t, sink.Writes[2].View, 0)
	assert.True(t, sink.Writes[2].Last)
}

func TestCopy_IgnoresTransientFailureChunk(t *testing.T) {
	source := content.NewManualSource()
	sink := content.NewManualSink()

	source.Push(content.Of([]byte("before"), false, nil))
	source.Push(content.Failure(false, errors.New("transient hiccup")))
	source.Push(content.Of([]byte("after"), false, nil))
	source.Push(content.EndOfStream())

	done := make(chan struct{})
	var doneErr error
	content.Copy(source, sink, func(err error) {
		doneErr = err
		close(done)
	})
	<-done

	require.NoError(t, doneErr)
	require.Len(t, sink.Writes, 3)
	assert.Equal(t, []byte("before"), sink.Writes[0].View)
	assert.Equal(t, []byte("after"), sink.Writes[1].View)
	assert.True(t, sink.Writes[2].Last)
}

func TestCopy_FatalFailurePropagates(t *testing.T) {
	source := content.NewManualSource()
	sink := content.NewManualSink()

	cause := errors.New("disk on fire")
	source.Push(content.Failure(true, cause))

	done := make(chan struct{})
	var doneErr error
	content.Copy(source, sink, func(err error) {
		doneErr = err
		close(done)
	})
	<-done

	assert.ErrorIs(t, doneErr, cause)
	assert.Empty(t, sink.Writes)
}
