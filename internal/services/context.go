package services

import "context"

type contextKey string

const (
	operationIDKey contextKey = "operation_id"
	primaryKeyKey  contextKey = "primary_key"
	chatIDKey      contextKey = "chat_id"
	requestIDKey   contextKey = "request_id"
)

// WithOperationID annotates context with the transfer operation identifier.
func WithOperationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationIDFromContext extracts the transfer operation identifier if present.
func OperationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(operationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPrimaryKey annotates context with the logical item record key.
func WithPrimaryKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, primaryKeyKey, key)
}

// PrimaryKeyFromContext returns the logical item record key if present.
func PrimaryKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(primaryKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithChatID annotates context with the destination chat.
func WithChatID(ctx context.Context, chatID string) context.Context {
	if chatID == "" {
		return ctx
	}
	return context.WithValue(ctx, chatIDKey, chatID)
}

// ChatIDFromContext returns the destination chat if present.
func ChatIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(chatIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
