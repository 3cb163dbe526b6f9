package transfer

import (
	"context"
	"sync"

	"feedrelay/internal/services"
)

// State is the lifecycle state of a Control.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Control is the cooperative pause/cancel token of one operation. A single
// pipeline goroutine calls Checkpoint while any number of goroutines may call
// Pause, Resume, and Cancel. Cancelled is terminal.
type Control struct {
	mu        sync.Mutex
	state     State
	resumed   chan struct{}
	cancelled chan struct{}
}

// NewControl returns a running control.
func NewControl() *Control {
	return &Control{cancelled: make(chan struct{})}
}

// State returns the current state.
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause moves a running control to paused. It reports whether the state changed.
func (c *Control) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return false
	}
	c.state = StatePaused
	c.resumed = make(chan struct{})
	return true
}

// Resume moves a paused control back to running and wakes a blocked
// checkpoint. It reports whether the state changed.
func (c *Control) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return false
	}
	c.state = StateRunning
	close(c.resumed)
	c.resumed = nil
	return true
}

// Cancel moves the control to cancelled from any non-terminal state. It
// reports whether the state changed.
func (c *Control) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCancelled {
		return false
	}
	c.state = StateCancelled
	close(c.cancelled)
	return true
}

// Cancelled is closed once the control is cancelled.
func (c *Control) Cancelled() <-chan struct{} {
	return c.cancelled
}

// Checkpoint returns immediately while running, blocks while paused, and
// returns ErrCancelled once cancelled. A done context unblocks a paused
// checkpoint with the context error.
func (c *Control) Checkpoint(ctx context.Context) error {
	for {
		c.mu.Lock()
		state := c.state
		resumed := c.resumed
		c.mu.Unlock()

		switch state {
		case StateRunning:
			return nil
		case StateCancelled:
			return services.ErrCancelled
		}

		select {
		case <-resumed:
		case <-c.cancelled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
