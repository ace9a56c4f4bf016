package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	orgIDKey
	callerIDKey
	roleKey
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID records the request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithCaller records who a request runs as. The values are for log
// correlation only; authorization reads the bound security context.
func WithCaller(ctx context.Context, orgID, callerID, role string) context.Context {
	ctx = context.WithValue(ctx, orgIDKey, orgID)
	ctx = context.WithValue(ctx, callerIDKey, callerID)
	return context.WithValue(ctx, roleKey, role)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetOrgID retrieves the organization id recorded by WithCaller
func GetOrgID(ctx context.Context) string {
	return stringValue(ctx, orgIDKey)
}

// GetCallerID retrieves the external caller id recorded by WithCaller
func GetCallerID(ctx context.Context) string {
	return stringValue(ctx, callerIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// Fields returns the correlation fields present in ctx: trace and span ids,
// request id, organization, caller and role.
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	for _, kv := range []struct {
		key   contextKey
		field string
	}{
		{requestIDKey, "request_id"},
		{orgIDKey, "org_id"},
		{callerIDKey, "caller_id"},
		{roleKey, "role"},
	} {
		if v := stringValue(ctx, kv.key); v != "" {
			fields = append(fields, zap.String(kv.field, v))
		}
	}
	return fields
}

// L returns the context's logger enriched with its correlation fields.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	return FromContext(ctx).With(Fields(ctx)...)
}

// With enriches base with the correlation fields of ctx.
func With(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return base.With(Fields(ctx)...)
}
