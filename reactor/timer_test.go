package reactor

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleHeap_ScheduleOrdersByDeadline(t *testing.T) {
	var h idleHeap
	heap.Init(&h)

	base := time.Now()
	e3 := h.schedule(&Endpoint{}, base.Add(3*time.Second))
	e1 := h.schedule(&Endpoint{}, base.Add(1*time.Second))
	e2 := h.schedule(&Endpoint{}, base.Add(2*time.Second))

	require.Equal(t, 3, h.Len())
	assert.Same(t, e1.endpoint, heap.Pop(&h).(*idleEntry).endpoint)
	assert.Same(t, e2.endpoint, heap.Pop(&h).(*idleEntry).endpoint)
	assert.Same(t, e3.endpoint, heap.Pop(&h).(*idleEntry).endpoint)
}

func TestIdleHeap_Cancel_RemovesEntry(t *testing.T) {
	var h idleHeap
	heap.Init(&h)

	base := time.Now()
	e1 := h.schedule(&Endpoint{}, base.Add(1*time.Second))
	e2 := h.schedule(&Endpoint{}, base.Add(2*time.Second))

	h.cancel(e1)
	require.Equal(t, 1, h.Len())
	assert.Same(t, e2.endpoint, heap.Pop(&h).(*idleEntry).endpoint)
}

func TestIdleHeap_Cancel_NilOrAlreadyRemovedIsNoop(t *testing.T) {
	var h idleHeap
	heap.Init(&h)
	h.cancel(nil)
	assert.Equal(t, 0, h.Len())

	e := h.schedule(&Endpoint{}, time.Now())
	h.cancel(e)
	assert.Equal(t, 0, h.Len())
	h.cancel(e) // removing twice must not panic or corrupt the heap
	assert.Equal(t, 0, h.Len())
}

func TestIdleHeap_NextTimeoutMs_EmptyIsIndefinite(t *testing.T) {
	var h idleHeap
	assert.Equal(t, -1, h.nextTimeoutMs(time.Now()))
}

func TestIdleHeap_NextTimeoutMs_PastDeadlineIsZero(t *testing.T) {
	var h idleHeap
	heap.Init(&h)
	now := time.Now()
	h.schedule(&Endpoint{}, now.Add(-time.Second))
	assert.Equal(t, 0, h.nextTimeoutMs(now))
}

func TestIdleHeap_NextTimeoutMs_FutureDeadline(t *testing.T) {
	var h idleHeap
	heap.Init(&h)
	now := time.Now()
	h.schedule(&Endpoint{}, now.Add(500*time.Millisecond))
	ms := h.nextTimeoutMs(now)
	assert.Greater(t, ms, 0)
	assert.LessOrEqual(t, ms, 500)
}

func TestIdleHeap_Expired_PopsOnlyPastDeadlines(t *testing.T) {
	var h idleHeap
	heap.Init(&h)
	now := time.Now()
	past1 := h.schedule(&Endpoint{}, now.Add(-2*time.Second))
	past2 := h.schedule(&Endpoint{}, now.Add(-1*time.Second))
	future := h.schedule(&Endpoint{}, now.Add(time.Hour))

	expired := h.expired(now)
	require.Len(t, expired, 2)
	assert.Same(t, past1.endpoint, expired[0].endpoint)
	assert.Same(t, past2.endpoint, expired[1].endpoint)
	require.Equal(t, 1, h.Len())
	assert.Same(t, future.endpoint, h[0].endpoint)
}
