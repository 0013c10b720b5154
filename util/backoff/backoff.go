// Package backoff paces successive dispatch attempts.
package backoff

import (
	"context"
	"time"
)

// Backoff yields growing pauses between attempts of one logical request.
// A Backoff is owned by a single dispatch and is not safe for concurrent use.
type Backoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	currentDelay time.Duration
	waits        int
}

// New creates a new Backoff.
// An initialDelay of zero disables pausing; Wait then returns immediately.
// A multiplier below 1 is treated as 1 (constant delay).
func New(initialDelay, maxDelay time.Duration, multiplier float64) *Backoff {
	if multiplier < 1 {
		multiplier = 1
	}
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &Backoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		multiplier:   multiplier,
		currentDelay: initialDelay,
	}
}

// Next returns the delay the next Wait will use and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.currentDelay
	b.currentDelay = time.Duration(float64(b.currentDelay) * b.multiplier)
	if b.currentDelay > b.maxDelay {
		b.currentDelay = b.maxDelay
	}
	b.waits++
	return d
}

// Wait pauses for the current delay, returning ctx.Err() if ctx ends first.
func (b *Backoff) Wait(ctx context.Context) error {
	d := b.Next()
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset resets the backoff to its initial delay.
func (b *Backoff) Reset() {
	b.currentDelay = b.initialDelay
	b.waits = 0
}

// CurrentDelay returns the current backoff delay.
func (b *Backoff) CurrentDelay() time.Duration {
	return b.currentDelay
}

// Waits returns how many times Next or Wait has been called since the last Reset.
func (b *Backoff) Waits() int {
	return b.waits
}
