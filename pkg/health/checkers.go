package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck returns a CheckFunc that reports unhealthy when the
// number of goroutines exceeds threshold. Useful as a liveness check to
// detect goroutine leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck returns a CheckFunc that reports unhealthy when any recent
// garbage collection pause exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	thresholdNs := uint64(threshold.Nanoseconds())
	return func(_ context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		for _, pause := range stats.PauseNs {
			if pause > thresholdNs {
				return errors.Errorf("GC pause %s exceeds threshold %s", time.Duration(pause), threshold)
			}
		}
		return nil
	}
}
