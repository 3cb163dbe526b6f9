package engine

import (
	"context"
	"time"

	"feedrelay/internal/logging"
	"feedrelay/internal/pipeline"
)

// Pause pauses the transfer whose status message has key. The status
// message is re-rendered so the button flips to Resume.
func (e *Engine) Pause(ctx context.Context, key string) (bool, error) {
	changed, err := e.pipe.Registry().Pause(key)
	if err != nil || !changed {
		return changed, err
	}
	e.refreshStatus(ctx, key)
	return true, nil
}

// Resume resumes a paused transfer.
func (e *Engine) Resume(ctx context.Context, key string) (bool, error) {
	changed, err := e.pipe.Registry().Resume(key)
	if err != nil || !changed {
		return changed, err
	}
	e.refreshStatus(ctx, key)
	return true, nil
}

// Cancel cancels a transfer. The pipeline observes it at its next
// checkpoint and writes the final status itself.
func (e *Engine) Cancel(ctx context.Context, key string) (bool, error) {
	return e.pipe.Registry().Cancel(key)
}

func (e *Engine) refreshStatus(ctx context.Context, key string) {
	op, ok := e.pipe.Registry().Get(key)
	if !ok {
		return
	}
	ref, ok := op.ProgressMessage()
	if !ok {
		return
	}
	snap := op.Snapshot()
	if snap.Phase.Terminal() {
		return
	}
	if err := e.gateway.EditMessage(ctx, ref, pipeline.StatusText(snap, time.Now()), pipeline.ControlButtons(snap.Paused())); err != nil {
		e.logger.Debug("status refresh failed", logging.String(logging.FieldOperationKey, key), logging.Error(err))
	}
}
