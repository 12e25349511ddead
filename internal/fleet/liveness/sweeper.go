package liveness

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// DefaultSweepInterval is how often stale entries are purged.
const DefaultSweepInterval = time.Second

// Sweeper runs Tracker.Sweep on a fixed period until its context is cancelled.
type Sweeper struct {
	Tracker  *Tracker
	Log      logr.Logger
	Clock    clock.WithTicker
	Interval time.Duration
}

// Start blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.Clock == nil {
		s.Clock = clock.RealClock{}
	}
	if s.Interval <= 0 {
		s.Interval = DefaultSweepInterval
	}

	s.Log.Info("Starting liveness sweeper", "interval", s.Interval, "timeout", s.Tracker.Timeout())

	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if evicted := s.Tracker.Sweep(); len(evicted) > 0 {
				s.Log.V(1).Info("Evicted stale robots", "count", len(evicted), "robots", evicted)
			}
		case <-ctx.Done():
			s.Log.Info("Stopping liveness sweeper")
			return nil
		}
	}
}
