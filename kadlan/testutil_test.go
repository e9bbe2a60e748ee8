package kadlan

import (
	"testing"
	"time"
)

// waitForCondition polls cond until it is true or a short deadline
// passes, for asserting on the async liveness-challenge goroutine
// without sleeping a fixed, flaky duration.
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not satisfied within deadline")
	}
}
