package core

import "context"

type ctxKey string

const CtxKeyUsername ctxKey = ctxKey("username")

func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, CtxKeyUsername, username)
}

// UsernameFromContext returns the authenticated username or "" when none was set.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUsername).(string); ok {
		return v
	}
	return ""
}
