package pickup

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
)

func TestGarbageCollectorRemovesExpiredCodes(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	if st := f.svc.Send(context.Background(), orderCode, tripCode); st != StatusOtpSent {
		t.Fatalf("Send() = %s", st)
	}

	gc := &GarbageCollector{Service: f.svc, Log: logr.Discard(), Clock: f.clock, CleanupInterval: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gc.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !f.clock.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatal("collector never created its ticker")
		}
		time.Sleep(time.Millisecond)
	}
	f.clock.Step(11 * time.Minute)

	deadline = time.Now().Add(2 * time.Second)
	for {
		f.repo.mu.Lock()
		left := len(f.repo.otps)
		f.repo.mu.Unlock()
		if left == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired code not collected, %d rows left", left)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
}
