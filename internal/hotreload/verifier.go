package hotreload

import (
	"context"
	"fmt"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/runtime"
)

// HealthCheckVerifier verifies a reloaded module by polling its
// HealthCheck until it succeeds or a deadline elapses. Modeled on the
// teacher's post-reload component health check phase.
type HealthCheckVerifier struct {
	Timeout  time.Duration
	Interval time.Duration
}

// NewHealthCheckVerifier builds a verifier with the given polling
// parameters; zero values fall back to 5s timeout / 100ms interval.
func NewHealthCheckVerifier(timeout, interval time.Duration) *HealthCheckVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &HealthCheckVerifier{Timeout: timeout, Interval: interval}
}

// Verify polls moduleID's health check until it passes or the timeout
// elapses, returning the last observed error on timeout.
func (v *HealthCheckVerifier) Verify(ctx context.Context, moduleID string, rt *runtime.Runtime) error {
	deadline := time.Now().Add(v.Timeout)
	var lastErr error

	for time.Now().Before(deadline) {
		if err := rt.HealthCheck(ctx, moduleID); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(v.Interval):
		}
	}

	return fmt.Errorf("module %s failed to become healthy within %s: %w", moduleID, v.Timeout, lastErr)
}
