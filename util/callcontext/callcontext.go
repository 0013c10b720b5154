package callcontext

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// CorrelationIDHeader is the gRPC metadata key that carries a logical request's correlation id
const CorrelationIDHeader = "x-correlation-id"

// contextKey is a private type for context keys to avoid collisions
type contextKey int

const (
	correlationIDKey contextKey = iota
	attemptKey
)

// WithCorrelationID returns a new context carrying the correlation id
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id stored in ctx, or "" if none
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithAttempt records the 0-based attempt index in ctx
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// Attempt returns the attempt index stored in ctx and whether one was set
func Attempt(ctx context.Context) (int, bool) {
	a, ok := ctx.Value(attemptKey).(int)
	return a, ok
}

// OutgoingContext attaches the correlation id to the outgoing gRPC metadata
func OutgoingContext(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, CorrelationIDHeader, id)
}

// FromIncoming extracts the correlation id from incoming gRPC metadata, or "" if absent
func FromIncoming(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(CorrelationIDHeader); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
