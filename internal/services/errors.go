package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTimeout        = errors.New("network timeout")
	ErrTransferFailed = errors.New("transfer failed")
	ErrCancelled      = errors.New("operation cancelled")
	ErrRedundant      = errors.New("redundant action")
	ErrAlreadyUsed    = errors.New("action already used")
	ErrTooLarge       = errors.New("action too large")
	ErrNotFound       = errors.New("record not found")
	ErrPersistence    = errors.New("persistence failure")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrExternalTool   = errors.New("external tool error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker so callers can classify it with errors.Is. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransferFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancelled reports whether err represents a user-initiated cancellation.
// Context cancellation counts as well since shutdown aborts operations the
// same way.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a bounded network timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Outcome maps an operation error to the short label used for metrics and
// status lines.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsCancelled(err):
		return "cancelled"
	case IsTimeout(err):
		return "timeout"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "failed"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
