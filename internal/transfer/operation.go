package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"feedrelay/internal/chat"
)

// Phase is the visible stage of an operation.
type Phase string

const (
	PhaseDownloading         Phase = "downloading"
	PhaseUploading           Phase = "uploading"
	PhaseSendingCommentMedia Phase = "sending_comment_media"
	PhaseDone                Phase = "done"
	PhaseCancelled           Phase = "cancelled"
	PhaseFailed              Phase = "failed"
)

// Terminal reports whether no further transfer happens in this phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseCancelled, PhaseFailed:
		return true
	}
	return false
}

// Operation is the in-memory record of one delivery or follow-up transfer.
// It is never persisted.
type Operation struct {
	ID      string
	Label   string
	Control *Control

	mu          sync.Mutex
	phase       Phase
	expected    int64
	transferred int64
	startedAt   time.Time
	progressMsg *chat.Ref
}

// NewOperation creates a running operation in the downloading phase.
func NewOperation(label string) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		Label:     label,
		Control:   NewControl(),
		phase:     PhaseDownloading,
		startedAt: time.Now(),
	}
}

// Begin enters a new phase and restarts the byte counters and clock so rate
// and ETA describe the current phase only.
func (o *Operation) Begin(phase Phase, expected int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phase = phase
	o.expected = expected
	o.transferred = 0
	o.startedAt = time.Now()
}

// Finish sets a terminal phase without touching the counters.
func (o *Operation) Finish(phase Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phase = phase
}

// SetExpected records the expected byte total once it becomes known.
func (o *Operation) SetExpected(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expected = n
}

// Add records n more transferred bytes.
func (o *Operation) Add(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transferred += n
}

// SetTransferred overwrites the transferred counter, used by upload callbacks
// that report absolute positions.
func (o *Operation) SetTransferred(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transferred = n
}

// Phase returns the current phase.
func (o *Operation) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// SetProgressMessage records the status message of the operation. Only the
// first call takes effect.
func (o *Operation) SetProgressMessage(ref chat.Ref) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.progressMsg != nil {
		return false
	}
	r := ref
	o.progressMsg = &r
	return true
}

// ProgressMessage returns the status message once one was set.
func (o *Operation) ProgressMessage() (chat.Ref, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.progressMsg == nil {
		return chat.Ref{}, false
	}
	return *o.progressMsg, true
}

// Snapshot is a consistent copy of an operation's observable state.
type Snapshot struct {
	ID          string
	Key         string
	Label       string
	Phase       Phase
	State       State
	Expected    int64
	Transferred int64
	StartedAt   time.Time
}

// Paused reports whether the operation is paused.
func (s Snapshot) Paused() bool {
	return s.State == StatePaused
}

// Snapshot copies the operation state.
func (o *Operation) Snapshot() Snapshot {
	state := o.Control.State()
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		ID:          o.ID,
		Label:       o.Label,
		Phase:       o.phase,
		State:       state,
		Expected:    o.expected,
		Transferred: o.transferred,
		StartedAt:   o.startedAt,
	}
	if o.progressMsg != nil {
		snap.Key = o.progressMsg.Key()
	}
	return snap
}
