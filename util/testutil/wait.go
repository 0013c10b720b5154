package testutil

import (
	"testing"
	"time"
)

// WaitFor polls condition every 50ms until it returns true, failing the test
// if it is still false after timeout.
//
// Usage:
//
//	testutil.WaitFor(t, 2*time.Second, "worker pool to drain", func() bool {
//	    return pool.Busy() == 0
//	})
func WaitFor(t testing.TB, timeout time.Duration, message string, condition func() bool) {
	t.Helper()

	if condition() {
		return
	}

	start := time.Now()
	deadline := start.Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	checks := 1
	for range ticker.C {
		checks++
		if condition() {
			t.Logf("Condition met after %v (%d checks): %s", time.Since(start).Round(time.Millisecond), checks, message)
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s (waited %v, %d checks)", message, timeout, checks)
		}
	}
}
