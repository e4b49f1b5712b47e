package reactor

import "sync"

// actionChunkSize is the number of actions per node in the chunked
// linked-list, matching the teacher's ChunkedIngress sizing.
const actionChunkSize = 128

// actionChunk is a fixed-size node in the action queue's linked list.
type actionChunk struct {
	actions [actionChunkSize]func()
	next    *actionChunk
	readPos int
	pos     int
}

var actionChunkPool = sync.Pool{New: func() any { return &actionChunk{} }}

func newActionChunk() *actionChunk {
	c := actionChunkPool.Get().(*actionChunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

func returnActionChunk(c *actionChunk) {
	for i := 0; i < c.pos; i++ {
		c.actions[i] = nil
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	actionChunkPool.Put(c)
}

// actionQueue is a thread-safe chunked linked-list queue of pending
// Managed Selector actions (register, update-interest, close, custom task).
// The chunking and sync.Pool recycling shape is adopted unchanged from the
// teacher's ChunkedIngress; unlike the teacher's variant, this one owns its
// own mutex, since producers here are arbitrary external goroutines rather
// than a single synchronized caller.
type actionQueue struct {
	mu         sync.Mutex
	head, tail *actionChunk
	length     int
}

func newActionQueue() *actionQueue {
	return &actionQueue{}
}

// Push enqueues action for the selector goroutine to run. Safe to call
// concurrently from any goroutine.
func (q *actionQueue) Push(action func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tail == nil {
		q.tail = newActionChunk()
		q.head = q.tail
	}
	if q.tail.pos == actionChunkSize {
		next := newActionChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.actions[q.tail.pos] = action
	q.tail.pos++
	q.length++
}

// DrainInto pops every currently-queued action into dst, in submission
// order, returning the updated slice. Intended for the selector goroutine
// to call once per loop iteration so action execution happens outside the
// lock.
func (q *actionQueue) DrainInto(dst []func()) []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head != nil {
		for q.head.readPos < q.head.pos {
			dst = append(dst, q.head.actions[q.head.readPos])
			q.head.actions[q.head.readPos] = nil
			q.head.readPos++
			q.length--
		}
		old := q.head
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
			break
		}
		q.head = q.head.next
		returnActionChunk(old)
	}
	return dst
}

// Len returns the number of queued, undrained actions.
func (q *actionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}
