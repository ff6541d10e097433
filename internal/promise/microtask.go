package promise

import (
	"sync"
	"sync/atomic"
)

// The microtask queue is MPSC, not SPSC: Promisify's worker goroutines
// enqueue settlement tasks from outside the mutator thread running script,
// so Enqueue must be safe from any goroutine while Dequeue is only ever
// called from the Context's own drain loop.
const (
	ringBufferSize = 4096

	// ringSeqSkip is the sentinel for "empty slot". Using half of the
	// uint64 space instead of 0 avoids ambiguity when sequence numbers
	// legitimately wrap around to 0 under sustained load.
	ringSeqSkip = uint64(1) << 63

	ringOverflowInitCap          = 1024
	ringOverflowCompactThreshold = 512

	ringHeadPadSize = sizeOfCacheLine - sizeOfAtomicUint64
)

// task is a queued microtask: a thunk with its arguments already bound by
// closure, matching the data model's "a callable + captured argument
// values".
type task = func()

// MicrotaskQueue is a lock-free MPSC ring buffer with an overflow slice for
// when the ring is saturated. Correctness here is load-bearing: a reader
// that observes a claimed-but-not-yet-written slot must spin rather than
// read garbage, hence the Release/Acquire discipline on seq plus an
// explicit validity flag per slot (sequence numbers alone are ambiguous
// across a 64-bit wraparound).
type MicrotaskQueue struct { // betteralign:ignore
	_       [sizeOfCacheLine]byte
	buffer  [ringBufferSize]task
	valid   [ringBufferSize]atomic.Bool
	seq     [ringBufferSize]atomic.Uint64
	head    atomic.Uint64
	_       [ringHeadPadSize]byte
	tail    atomic.Uint64
	tailSeq atomic.Uint64

	overflowMu      sync.Mutex
	overflow        []task
	overflowHead    int
	overflowPending atomic.Bool
}

// NewMicrotaskQueue constructs an empty queue.
func NewMicrotaskQueue() *MicrotaskQueue {
	q := &MicrotaskQueue{}
	for i := range q.seq {
		q.seq[i].Store(ringSeqSkip)
		q.valid[i].Store(false)
	}
	return q
}

// Enqueue adds t to the tail of the queue. Safe to call from any goroutine.
func (q *MicrotaskQueue) Enqueue(t task) {
	if q.overflowPending.Load() {
		q.overflowMu.Lock()
		if len(q.overflow)-q.overflowHead > 0 {
			q.overflow = append(q.overflow, t)
			q.overflowMu.Unlock()
			return
		}
		q.overflowMu.Unlock()
	}

	for {
		tail := q.tail.Load()
		head := q.head.Load()
		if tail-head >= ringBufferSize {
			break
		}
		if q.tail.CompareAndSwap(tail, tail+1) {
			seq := q.tailSeq.Add(1)
			idx := tail % ringBufferSize
			q.buffer[idx] = t
			q.valid[idx].Store(true)
			q.seq[idx].Store(seq)
			return
		}
	}

	q.overflowMu.Lock()
	if q.overflow == nil {
		q.overflow = make([]task, 0, ringOverflowInitCap)
	}
	q.overflow = append(q.overflow, t)
	q.overflowPending.Store(true)
	q.overflowMu.Unlock()
}

// Dequeue removes and returns the task at the head of the queue, or
// (nil, false) if empty. Must be called only from the Context's drain
// loop goroutine.
func (q *MicrotaskQueue) Dequeue() (task, bool) {
	head := q.head.Load()
	tail := q.tail.Load()

	for head < tail {
		idx := head % ringBufferSize
		seq := q.seq[idx].Load()
		if seq == ringSeqSkip || !q.valid[idx].Load() {
			head = q.head.Load()
			tail = q.tail.Load()
			continue
		}

		t := q.buffer[idx]
		q.buffer[idx] = nil
		q.valid[idx].Store(false)
		q.seq[idx].Store(ringSeqSkip)
		q.head.Add(1)
		if t == nil {
			head = q.head.Load()
			tail = q.tail.Load()
			continue
		}
		return t, true
	}

	if !q.overflowPending.Load() {
		return nil, false
	}

	q.overflowMu.Lock()
	defer q.overflowMu.Unlock()

	n := len(q.overflow) - q.overflowHead
	if n == 0 {
		q.overflowPending.Store(false)
		return nil, false
	}

	t := q.overflow[q.overflowHead]
	q.overflow[q.overflowHead] = nil
	q.overflowHead++

	if q.overflowHead > len(q.overflow)/2 && q.overflowHead > ringOverflowCompactThreshold {
		copy(q.overflow, q.overflow[q.overflowHead:])
		q.overflow = q.overflow[:len(q.overflow)-q.overflowHead]
		q.overflowHead = 0
	}
	if q.overflowHead >= len(q.overflow) {
		q.overflowPending.Store(false)
	}
	return t, true
}

// Len reports the total number of queued microtasks.
func (q *MicrotaskQueue) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	n := 0
	if tail > head {
		n = int(tail - head)
	}
	q.overflowMu.Lock()
	n += len(q.overflow) - q.overflowHead
	q.overflowMu.Unlock()
	return n
}

// Empty reports whether the queue currently has no pending tasks. May give
// a false negative under concurrent Enqueue.
func (q *MicrotaskQueue) Empty() bool {
	return q.head.Load() >= q.tail.Load() && !q.overflowPending.Load()
}

// Drain runs every currently-enqueued microtask to completion, including
// tasks newly enqueued by tasks that ran during this same drain.
func (q *MicrotaskQueue) Drain() int {
	ran := 0
	for {
		t, ok := q.Dequeue()
		if !ok {
			return ran
		}
		t()
		ran++
	}
}
