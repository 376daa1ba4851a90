package utils

import (
	"testing"
)

func TestLeakCheckPassesWhenGoroutinesFinish(t *testing.T) {
	check := NewLeakCheck(t)

	done := make(chan struct{})
	go func() { close(done) }()
	<-done

	check.Assert()
}

func TestLeakCheckCatchesLeak(t *testing.T) {
	inner := &testing.T{}
	check := NewLeakCheck(inner)

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	go func() { <-block }()

	check.Assert()
	if !inner.Failed() {
		t.Error("leak check passed despite a leaked goroutine")
	}
}
