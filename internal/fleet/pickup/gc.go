package pickup

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// GarbageCollector periodically removes expired pickup codes.
// It blocks in Start like any other background runnable of the server.
type GarbageCollector struct {
	Service         *Service
	Log             logr.Logger
	Clock           clock.WithTicker
	CleanupInterval time.Duration // e.g., 1 minute
}

// Start begins the cleanup loop and returns when ctx is cancelled.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if gc.Clock == nil {
		gc.Clock = clock.RealClock{}
	}
	if gc.CleanupInterval <= 0 {
		gc.CleanupInterval = time.Minute
	}

	gc.Log.Info("Starting pickup code garbage collector", "interval", gc.CleanupInterval)

	ticker := gc.Clock.NewTicker(gc.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			gc.cleanup(ctx)
		case <-ctx.Done():
			gc.Log.Info("Stopping pickup code garbage collector")
			return nil
		}
	}
}

func (gc *GarbageCollector) cleanup(ctx context.Context) {
	gc.Log.V(1).Info("Running scheduled cleanup for pickup codes")

	deleted, err := gc.Service.Cleanup(ctx)
	if err != nil {
		// Background loop: log and wait for the next tick.
		gc.Log.Error(err, "Failed to clean up expired pickup codes")
		return
	}
	if deleted > 0 {
		gc.Log.Info("Completed pickup code GC cycle", "deleted_count", deleted)
	}
}
