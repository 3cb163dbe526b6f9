// Package scheduler bounds how many top-level deliveries run at once.
//
// Admission uses a weighted semaphore with capacity N. Waiters are served in
// FIFO order; there is no priority and no queue beyond the waiters blocked in
// Admit.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 5

// Scheduler admits work up to a fixed concurrency.
type Scheduler struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New returns a scheduler with the given capacity.
func New(capacity int) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Scheduler{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}
}

// Admit blocks until a slot is free, runs work, and releases the slot when
// work returns, whether it failed or not. It returns the context error
// without running work when ctx ends while waiting.
func (s *Scheduler) Admit(ctx context.Context, work func(context.Context) error) error {
	s.waiting.Add(1)
	err := s.sem.Acquire(ctx, 1)
	s.waiting.Add(-1)
	if err != nil {
		return fmt.Errorf("admit delivery: %w", err)
	}
	s.inFlight.Add(1)
	defer func() {
		s.inFlight.Add(-1)
		s.sem.Release(1)
	}()
	return work(ctx)
}

// Capacity returns the configured slot count.
func (s *Scheduler) Capacity() int {
	return s.capacity
}

// InFlight returns how many admitted works are running.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Waiting returns how many callers are blocked in Admit.
func (s *Scheduler) Waiting() int {
	return int(s.waiting.Load())
}
