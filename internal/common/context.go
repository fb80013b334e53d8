package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID  contextKey = "request_id"
	ContextKeySessionKey contextKey = "session_key"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithSessionKey adds the persisted session key to the context
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ContextKeySessionKey, key)
}

// SessionKeyFromContext extracts the session key from context
func SessionKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(ContextKeySessionKey).(string); ok {
		return key
	}
	return ""
}

// LoggerFrom decorates logger with whatever request metadata ctx carries.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	if key := SessionKeyFromContext(ctx); key != "" {
		logger = logger.With("session_key", key)
	}
	return logger
}
