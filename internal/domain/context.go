package domain

import "context"

type ctxKey string

const (
	userCtxKey    ctxKey = "user_id"
	requestCtxKey ctxKey = "request_id"
)

// ContextWithUserID returns a new context carrying the authenticated user ID.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey, userID)
}

// UserIDFromContext extracts the authenticated user ID from the context.
// Returns empty string for anonymous callers.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithRequestID returns a new context carrying the request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey).(string); ok {
		return v
	}
	return ""
}
