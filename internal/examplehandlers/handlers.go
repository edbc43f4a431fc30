// Package examplehandlers provides a small set of reference handlers —
// a plain echo and a cancellable slow operation — ported from the
// worker examples shipped with this protocol's reference implementation.
// They back the CLI's --demo flag and the dispatch-loop integration
// tests.
package examplehandlers

import (
	"context"
	"sync"
	"time"

	"github.com/procbridge/coworker/internal/cancel"
	"github.com/procbridge/coworker/internal/registry"
)

// Register wires every handler in this package onto reg under its
// conventional name.
func Register(reg *registry.Registry) {
	reg.Register("echo", registry.HandlerFunc(Echo))
	reg.Register("slow", registry.CancellableHandlerFunc(Slow))
	reg.Register("operation", registry.CancellableHandlerFunc(Operation))
}

// Echo returns body unchanged. The simplest possible handler, useful for
// verifying round-trip wiring without any domain logic getting in the
// way.
func Echo(_ context.Context, body any) (any, error) {
	return body, nil
}

// Slow simulates a long-running prediction: it loops in 10ms steps for
// roughly body["duration"] seconds, checking the cancellation signal
// every step, ported from examples/cancellation/worker.py's
// slow_operation.
func Slow(_ context.Context, body any, sig *cancel.Signal) (any, error) {
	params, _ := body.(map[string]any)
	duration := floatField(params, "duration", 1.0)

	op := cancel.NewOperation(sig, 1, sig.Reason)
	steps := int(duration * 100)
	for i := 0; i < steps; i++ {
		if err := op.Check(); err != nil {
			return nil, err
		}
		time.Sleep(10 * time.Millisecond)
	}

	return map[string]any{
		"completed": true,
		"id":        params["id"],
		"duration":  duration,
	}, nil
}

var (
	cleanupMu     sync.Mutex
	cleanedUp     bool
	cleanupReason string
)

// Operation demonstrates cleanup-on-cancel: it registers a cleanup
// callback that flips a package-level flag, then waits for either the
// cancellation signal or body["duration"] to elapse, ported from
// examples/cancellation/worker.py's operation_with_cleanup.
func Operation(_ context.Context, body any, sig *cancel.Signal) (any, error) {
	params, _ := body.(map[string]any)
	duration := floatField(params, "duration", 1.0)

	cleanupMu.Lock()
	cleanedUp = false
	cleanupReason = ""
	cleanupMu.Unlock()

	sig.AddCleanup(func() {
		cleanupMu.Lock()
		cleanedUp = true
		cleanupReason = sig.Reason()
		cleanupMu.Unlock()
	})

	select {
	case <-sig.Wait():
		return nil, &cancel.Cancelled{Reason: sig.Reason()}
	case <-time.After(time.Duration(duration * float64(time.Second))):
		return map[string]any{"completed": true, "cleanup_needed": false}, nil
	}
}

// CleanupPerformed reports whether Operation's cleanup callback has run.
// Exported for integration tests that assert on S5's cleanup-on-cancel
// property without a second RPC round-trip.
func CleanupPerformed() bool {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	return cleanedUp
}

// CleanupReason returns the cancellation reason observed by Operation's
// cleanup callback, or "" if cleanup hasn't run yet.
func CleanupReason() string {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	return cleanupReason
}

func floatField(params map[string]any, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}
