package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the number of frames a [FrameQueue] holds when created
// with a non-positive capacity. 100 frames of 30 ms is three seconds of audio.
const DefaultQueueSize = 100

// FrameQueue is the bounded hand-off between a capture callback (producer) and
// the listening loop (consumer). Push never blocks: when the queue is full the
// oldest unread frame is evicted to make room for the new one.
//
// All methods are safe for concurrent use.
type FrameQueue struct {
	mu   sync.Mutex
	buf  []AudioFrame
	head int // index of the oldest frame
	size int

	dropped atomic.Uint64
	notify  chan struct{}
}

// NewFrameQueue returns an empty queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &FrameQueue{
		buf:    make([]AudioFrame, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends f. If the queue is full the oldest frame is discarded and
// dropped is true.
func (q *FrameQueue) Push(f AudioFrame) (dropped bool) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		q.buf[q.head] = AudioFrame{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		dropped = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = f
	q.size++
	q.mu.Unlock()

	if dropped {
		q.dropped.Add(1)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// TryPop removes and returns the oldest frame without waiting.
func (q *FrameQueue) TryPop() (AudioFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop removes and returns the oldest frame, waiting up to timeout for one to
// arrive. ok is false when the wait timed out. A cancelled ctx returns
// ctx.Err(). A non-positive timeout waits until a frame arrives or ctx ends.
func (q *FrameQueue) Pop(ctx context.Context, timeout time.Duration) (f AudioFrame, ok bool, err error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		if f, ok := q.TryPop(); ok {
			return f, true, nil
		}
		select {
		case <-ctx.Done():
			return AudioFrame{}, false, ctx.Err()
		case <-deadline:
			return AudioFrame{}, false, nil
		case <-q.notify:
		}
	}
}

// Drain discards every queued frame and returns how many were removed.
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	clear(q.buf)
	q.head = 0
	q.size = 0
	return n
}

// Len returns the number of frames currently queued.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the maximum number of frames the queue holds.
func (q *FrameQueue) Cap() int { return len(q.buf) }

// Dropped returns the total number of frames evicted by Push since creation.
func (q *FrameQueue) Dropped() uint64 { return q.dropped.Load() }

func (q *FrameQueue) popLocked() (AudioFrame, bool) {
	if q.size == 0 {
		return AudioFrame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = AudioFrame{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return f, true
}
