package middleware

import "context"

type contextKey string

const (
	ctxUserID      contextKey = "user_id"
	ctxDisplayName contextKey = "display_name"
	ctxSessionID   contextKey = "session_id"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

// DisplayNameFromContext returns the display name carried by the access token.
func DisplayNameFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxDisplayName)
}

// SessionIDFromContext returns the access token jti, which keys the refresh session.
func SessionIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxSessionID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

func WithDisplayName(ctx context.Context, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxDisplayName, name)
}

func WithSessionID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionID, id)
}
