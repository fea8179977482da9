package exec

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards the worker-pool tests in this package: Execute spins up
// an errgroup of job goroutines per run, and a scheduling bug that leaves
// one blocked on a semaphore or channel send would otherwise pass silently.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
