package middleware

import "context"

type contextKey string

const (
	ctxSubject contextKey = "service_subject"
	ctxScope   contextKey = "service_scope"
)

// SubjectFromContext returns the authenticated calling service, if any.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSubject).(string); ok {
		return v
	}
	return ""
}

func ScopeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxScope).(string); ok {
		return v
	}
	return ""
}

// WithSubject injects the calling service into the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSubject, subject)
}
