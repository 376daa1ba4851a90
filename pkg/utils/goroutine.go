// Package utils holds small test-support helpers shared across packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// LeakCheck asserts that a test does not leave extra goroutines behind.
// Call NewLeakCheck before the work under test and Assert after it; the
// check samples the goroutine count a few times so goroutines still in
// teardown do not produce false positives.
type LeakCheck struct {
	t       *testing.T
	initial int
	allowed int
	settle  time.Duration
}

func NewLeakCheck(t *testing.T) *LeakCheck {
	c := &LeakCheck{t: t, settle: 200 * time.Millisecond}
	time.Sleep(c.settle)
	c.initial = runtime.NumGoroutine()
	return c
}

// Allow raises the number of extra goroutines the check tolerates.
func (c *LeakCheck) Allow(n int) *LeakCheck {
	c.allowed = n
	return c
}

// Assert fails the test if the goroutine count grew past the allowance.
func (c *LeakCheck) Assert() {
	c.t.Helper()
	time.Sleep(c.settle)

	// Take the lowest of a few samples; stragglers in runtime cleanup
	// settle between them.
	final := runtime.NumGoroutine()
	for i := 0; i < 2; i++ {
		time.Sleep(100 * time.Millisecond)
		if n := runtime.NumGoroutine(); n < final {
			final = n
		}
	}

	leaked := final - c.initial
	if leaked > c.allowed {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		c.t.Errorf("goroutine leak: started with %d, ended with %d (allowed growth %d)\n%s",
			c.initial, final, c.allowed, buf[:n])
	}
}
