package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedrelay/internal/chat"
	"feedrelay/internal/logging"
	"feedrelay/internal/metrics"
	"feedrelay/internal/services"
)

// Step is one way of getting an item into chat.
type Step struct {
	Name string
	Send func(ctx context.Context) (chat.Ref, error)
}

// Chain is an ordered list of alternative steps. The first step that
// succeeds wins.
type Chain struct {
	Name  string
	Steps []Step
}

// Run tries each step in order and returns the ref and the name of the step
// that succeeded. Cancellation stops the chain immediately; otherwise the
// joined step errors are returned once every step failed.
func (c Chain) Run(ctx context.Context, logger *slog.Logger) (chat.Ref, string, error) {
	var errs []error
	for i, step := range c.Steps {
		if err := ctx.Err(); err != nil {
			return chat.Ref{}, "", err
		}
		ref, err := step.Send(ctx)
		if err == nil {
			if i > 0 {
				metrics.RecordFallback(c.Name, step.Name)
			}
			return ref, step.Name, nil
		}
		if services.IsCancelled(err) {
			return chat.Ref{}, "", err
		}
		errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		if logger != nil && i < len(c.Steps)-1 {
			logger.Info("send step failed; trying next",
				logging.String("chain", c.Name),
				logging.String("step", step.Name),
				logging.String("next", c.Steps[i+1].Name),
				logging.Error(err),
			)
		}
	}
	if len(errs) == 0 {
		return chat.Ref{}, "", fmt.Errorf("%s: no send steps", c.Name)
	}
	return chat.Ref{}, "", services.Wrap(services.ErrTransferFailed, "pipeline", c.Name, "all send steps failed", errors.Join(errs...))
}
