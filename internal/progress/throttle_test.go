package progress_test

import (
	"testing"
	"time"

	"feedrelay/internal/progress"
)

func TestThrottleInterval(t *testing.T) {
	now := time.Unix(0, 0)
	th := progress.NewThrottle(2 * time.Second).WithClock(func() time.Time { return now })

	if !th.Allow() {
		t.Fatal("first render must be allowed")
	}
	now = now.Add(time.Second)
	if th.Allow() {
		t.Fatal("render inside interval must be suppressed")
	}
	now = now.Add(1500 * time.Millisecond)
	if !th.Allow() {
		t.Fatal("render after interval must be allowed")
	}
	th.Force()
	now = now.Add(500 * time.Millisecond)
	if th.Allow() {
		t.Fatal("force must reset the interval")
	}
}
