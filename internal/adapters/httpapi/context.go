package httpapi

import "context"

type adminKey struct{}

func WithAdmin(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminKey{}, subject)
}

func AdminFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(adminKey{}).(string)
	return v, ok && v != ""
}
