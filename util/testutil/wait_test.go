package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitFor_Immediate(t *testing.T) {
	calls := 0
	WaitFor(t, time.Second, "already true", func() bool {
		calls++
		return true
	})
	if calls != 1 {
		t.Fatalf("condition evaluated %d times, want 1", calls)
	}
}

func TestWaitFor_Eventually(t *testing.T) {
	var ready atomic.Bool
	time.AfterFunc(120*time.Millisecond, func() { ready.Store(true) })

	start := time.Now()
	WaitFor(t, 2*time.Second, "flag to be set", ready.Load)
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("returned after %v, before the condition could hold", elapsed)
	}
}
