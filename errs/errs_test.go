package errs_test

import (
	"errors"
	"io"
	"testing"

	"github.com/joeycumines/go-reactor/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosed_IsSentinel(t *testing.T) {
	err := &errs.Closed{Cause: io.EOF}
	require.True(t, errors.Is(err, errs.ErrEndpointClosed))
	require.True(t, errors.Is(err, io.EOF))
}

func TestClosed_NilCauseStillMatchesSentinel(t *testing.T) {
	err := &errs.Closed{}
	assert.True(t, errors.Is(err, errs.ErrEndpointClosed))
}

func TestTimeout_Unwrap(t *testing.T) {
	cause := errors.New("deadline hit")
	err := &errs.Timeout{Cause: cause}
	assert.True(t, errors.Is(err, cause))
}

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	cause := errors.New("boom")
	err := &errs.PanicError{Value: cause}
	assert.True(t, errors.Is(err, cause))
}

func TestPanicError_NonErrorValueUnwrapsToNil(t *testing.T) {
	err := &errs.PanicError{Value: "oops"}
	assert.Nil(t, errors.Unwrap(err))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, errs.IsFatal(&errs.Closed{}))
	assert.True(t, errs.IsFatal(&errs.IOError{Cause: io.ErrClosedPipe}))
	assert.True(t, errs.IsFatal(&errs.ProtocolExhaustion{}))
	assert.True(t, errs.IsFatal(&errs.UsageError{}))
	assert.False(t, errs.IsFatal(&errs.Timeout{}))
	assert.False(t, errs.IsFatal(nil))
}

func TestWrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := errs.Wrap("context", cause)
	assert.True(t, errors.Is(wrapped, cause))
	assert.Contains(t, wrapped.Error(), "context")
}
