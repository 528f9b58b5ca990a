package services

import "context"

type contextKey string

const (
	contentIDKey contextKey = "content_id"
	localeKey    contextKey = "locale"
	traceIDKey   contextKey = "trace_id"
)

// WithContentID annotates context with the content identifier being processed.
func WithContentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, contentIDKey, id)
}

// ContentIDFromContext extracts the content identifier if present.
func ContentIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(contentIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithLocale annotates context with the locale being processed.
func WithLocale(ctx context.Context, locale string) context.Context {
	if locale == "" {
		return ctx
	}
	return context.WithValue(ctx, localeKey, locale)
}

// LocaleFromContext returns the locale if present.
func LocaleFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(localeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTraceID annotates context with a correlation identifier.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceIDFromContext extracts the correlation identifier if present.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
