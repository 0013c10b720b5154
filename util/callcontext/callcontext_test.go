package callcontext

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	if got := CorrelationID(ctx); got != "" {
		t.Fatalf("CorrelationID on empty ctx = %q", got)
	}

	ctx = WithCorrelationID(ctx, "abc-123")
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Fatalf("CorrelationID = %q, want abc-123", got)
	}
}

func TestAttempt(t *testing.T) {
	if _, ok := Attempt(context.Background()); ok {
		t.Fatal("Attempt reported a value on an empty context")
	}
	a, ok := Attempt(WithAttempt(context.Background(), 2))
	if !ok || a != 2 {
		t.Fatalf("Attempt = (%d, %v), want (2, true)", a, ok)
	}
}

func TestOutgoingToIncoming(t *testing.T) {
	ctx := OutgoingContext(context.Background(), "corr-7")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("no outgoing metadata")
	}

	// Simulate the server side by moving outgoing metadata to incoming
	in := metadata.NewIncomingContext(context.Background(), md)
	if got := FromIncoming(in); got != "corr-7" {
		t.Fatalf("FromIncoming = %q, want corr-7", got)
	}
}

func TestOutgoingContext_EmptyID(t *testing.T) {
	ctx := OutgoingContext(context.Background(), "")
	if _, ok := metadata.FromOutgoingContext(ctx); ok {
		t.Fatal("empty id should not create metadata")
	}
	if got := FromIncoming(context.Background()); got != "" {
		t.Fatalf("FromIncoming without metadata = %q", got)
	}
}
