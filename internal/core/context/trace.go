// Package context carries request correlation across the sync engine. The
// request id ends up on outgoing platform calls and in the sync log, so an
// operator can line up a ledger write with the remote request it caused.
package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext contains request correlation information. For webhook
// deliveries the request id is the platform's delivery id.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns trace ID from context or generates new one.
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return uuid.New().String()
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// WithRequestID overrides the request id, keeping the trace id if one is
// already set. The webhook gateway uses it to stamp the delivery id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	trace := &TraceContext{RequestID: requestID}
	if t := GetTrace(ctx); t != nil {
		trace.TraceID = t.TraceID
	}
	return WithTrace(ctx, trace)
}
