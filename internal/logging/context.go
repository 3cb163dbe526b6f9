package logging

import (
	"context"
	"log/slog"

	"feedrelay/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldOperationID identifies one transfer operation.
	FieldOperationID = "operation_id"
	// FieldOperationKey is the registry key (chat.progress-message) of an operation.
	FieldOperationKey = "operation_key"
	// FieldPrimaryKey identifies a logical item record.
	FieldPrimaryKey = "primary_key"
	// FieldChatID identifies the destination chat.
	FieldChatID = "chat_id"
	// FieldActionKind names a follow-up action.
	FieldActionKind = "action_kind"
	// FieldPhase names a transfer phase.
	FieldPhase = "phase"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies log lines for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.OperationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldOperationID, id))
	}
	if key, ok := services.PrimaryKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPrimaryKey, key))
	}
	if chat, ok := services.ChatIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldChatID, chat))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}

// contextHandler appends context fields to records logged through the
// *Context methods so callers do not have to rebuild loggers per request.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if fields := ContextFields(ctx); len(fields) > 0 {
		record = record.Clone()
		record.AddAttrs(fields...)
	}
	return h.next.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
