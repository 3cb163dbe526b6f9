package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedrelay/internal/scheduler"
)

func TestAdmitBoundsConcurrency(t *testing.T) {
	s := scheduler.New(2)
	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Admit(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if peak.Load() != 2 {
		t.Fatalf("expected peak concurrency 2, got %d", peak.Load())
	}
	if s.InFlight() != 0 {
		t.Fatalf("expected no work in flight, got %d", s.InFlight())
	}
}

func TestAdmitReleasesOnFailure(t *testing.T) {
	s := scheduler.New(1)
	boom := errors.New("boom")
	if err := s.Admit(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected work error, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Admit(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("slot was not released: %v", err)
	}
}

func TestAdmitHonoursContextWhileWaiting(t *testing.T) {
	s := scheduler.New(1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Admit(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	ran := false
	err := s.Admit(ctx, func(context.Context) error { ran = true; return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if ran {
		t.Fatal("work must not run when admission fails")
	}
}

func TestDefaultCapacity(t *testing.T) {
	if got := scheduler.New(0).Capacity(); got != scheduler.DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", scheduler.DefaultCapacity, got)
	}
}
