package bundle

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the admission queue is at capacity.
	// Callers surface this as "server busy", they do not retry internally.
	ErrQueueFull = errors.New("admission queue is full")

	// ErrQueueTimeout is returned when a waiter's queue timeout elapsed
	// before a slot freed up.
	ErrQueueTimeout = errors.New("admission queue wait timed out")
)

// Semaphore is the bounded admission gate in front of worker processes:
// fixed capacity, a bounded FIFO wait queue, and a per-waiter timeout. It
// is the single knob bounding worst-case host resource usage independent
// of request volume.
type Semaphore struct {
	mu        sync.Mutex
	capacity  int
	available int
	maxQueue  int
	queue     []chan struct{}
}

// NewSemaphore creates a gate with the given capacity and queue bound.
func NewSemaphore(capacity, maxQueue int) *Semaphore {
	return &Semaphore{
		capacity:  capacity,
		available: capacity,
		maxQueue:  maxQueue,
	}
}

// Acquire takes a slot, waiting in FIFO order up to timeout if none is
// free. Fails fast with ErrQueueFull when the queue is at capacity.
func (s *Semaphore) Acquire(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if s.available > 0 {
		s.available--
		s.mu.Unlock()
		return nil
	}

	if len(s.queue) >= s.maxQueue {
		s.mu.Unlock()
		return ErrQueueFull
	}

	waiter := make(chan struct{})
	s.queue = append(s.queue, waiter)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waiter:
		return nil
	case <-timer.C:
		return s.abandon(waiter, ErrQueueTimeout)
	case <-ctx.Done():
		return s.abandon(waiter, ctx.Err())
	}
}

// abandon removes a waiter from the queue after a timeout or cancellation.
// If a release already handed the waiter a slot, the slot is kept and the
// acquisition succeeds despite the race.
func (s *Semaphore) abandon(waiter chan struct{}, reason error) error {
	s.mu.Lock()
	for i, w := range s.queue {
		if w == waiter {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mu.Unlock()
			return reason
		}
	}
	s.mu.Unlock()

	// Not in the queue anymore: Release picked us just as we gave up.
	<-waiter
	return nil
}

// Release returns a slot. If a waiter is queued, the slot is handed
// directly to the longest-waiting entry so capacity is never idle while
// someone waits.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if len(s.queue) > 0 {
		waiter := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		close(waiter)
		return
	}

	if s.available < s.capacity {
		s.available++
	}
	s.mu.Unlock()
}

// InUse reports how many slots are currently held.
func (s *Semaphore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - s.available
}

// Waiting reports how many acquirers are queued.
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
