package transfer

import (
	"fmt"
	"sort"
	"sync"

	"feedrelay/internal/services"
)

// Registry tracks live operations by key (chat plus progress message id).
// It is owned by one engine instance.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Register adds op under key.
func (r *Registry) Register(key string, op *Operation) error {
	if key == "" || op == nil {
		return fmt.Errorf("register operation: key and operation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[key]; exists {
		return fmt.Errorf("register operation: key %q already registered", key)
	}
	r.ops[key] = op
	return nil
}

// Remove drops the operation under key if it is still op.
func (r *Registry) Remove(key string, op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.ops[key]; ok && current == op {
		delete(r.ops, key)
	}
}

// Get returns the operation under key.
func (r *Registry) Get(key string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[key]
	return op, ok
}

// Len returns the number of live operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

// List returns snapshots of every live operation ordered by start time.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	ops := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Pause pauses the operation under key.
func (r *Registry) Pause(key string) (bool, error) {
	op, err := r.lookup(key)
	if err != nil {
		return false, err
	}
	return op.Control.Pause(), nil
}

// Resume resumes the operation under key.
func (r *Registry) Resume(key string) (bool, error) {
	op, err := r.lookup(key)
	if err != nil {
		return false, err
	}
	return op.Control.Resume(), nil
}

// Cancel cancels the operation under key.
func (r *Registry) Cancel(key string) (bool, error) {
	op, err := r.lookup(key)
	if err != nil {
		return false, err
	}
	return op.Control.Cancel(), nil
}

// CancelAll cancels every live operation, used at shutdown.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, op := range r.ops {
		if op.Control.Cancel() {
			n++
		}
	}
	return n
}

func (r *Registry) lookup(key string) (*Operation, error) {
	op, ok := r.Get(key)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "transfer", "lookup", fmt.Sprintf("no operation %q", key), nil)
	}
	return op, nil
}
