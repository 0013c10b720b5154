// Package errors classifies failures seen on either side of a gateway call
// into the small set of kinds the dispatcher acts on.
package errors

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the failure domain of an error.
type Kind int

const (
	KindNone Kind = iota
	// KindTransport means the endpoint could not be reached or the call broke mid-flight.
	KindTransport
	// KindDeadline means the attempt ran out of time.
	KindDeadline
	// KindInvalidArgument means the caller sent malformed input.
	KindInvalidArgument
	// KindInternal means the gateway reached the kernel but the kernel failed.
	KindInternal
	// KindTerminal covers every other application-level status.
	KindTerminal
	// KindCanceled means the caller gave up.
	KindCanceled
	// KindExhausted means every allowed attempt failed.
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport_error"
	case KindDeadline:
		return "deadline_exceeded"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInternal:
		return "internal_error"
	case KindTerminal:
		return "terminal_error"
	case KindCanceled:
		return "canceled"
	case KindExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt, possibly on another replica, may succeed.
// Kernel failures are retryable because they can be replica-local (e.g. a missing binary).
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindDeadline, KindInternal:
		return true
	default:
		return false
	}
}

// ErrExhausted is matched by every *ExhaustedError.
var ErrExhausted = errors.New("all attempts exhausted")

// ExhaustedError is returned when a logical request used up all its attempts.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts exhausted: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is makes errors.Is(err, ErrExhausted) hold.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Classify maps err to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return KindExhausted
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if IsTimeout(err) {
		return KindDeadline
	}

	s, ok := status.FromError(err)
	if !ok {
		// not produced by the gateway: dial or I/O failure
		return KindTransport
	}
	switch s.Code() {
	case codes.Unavailable, codes.Canceled, codes.Aborted, codes.ResourceExhausted:
		return KindTransport
	case codes.InvalidArgument:
		return KindInvalidArgument
	case codes.Internal, codes.Unknown:
		return KindInternal
	default:
		return KindTerminal
	}
}
