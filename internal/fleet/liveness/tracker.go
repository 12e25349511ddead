// Package liveness decides whether a robot is alive from time-windowed
// heartbeat semantics.
package liveness

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
)

// DefaultHeartbeatTimeout is how long a robot stays alive without any message.
const DefaultHeartbeatTimeout = 30 * time.Second

type entry struct {
	lastSeen     time.Time
	alive        bool
	selfReported bool
}

// Tracker holds one entry per robot. All methods are safe for concurrent use.
type Tracker struct {
	clock   clock.PassiveClock
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	// onOffline is called outside the lock after a robot transitions to offline.
	onOffline func(robotID string)

	// beforeEvict runs between candidate selection and the re-check; tests use it.
	beforeEvict func(robotID string)
}

// NewTracker returns a Tracker. A zero timeout uses DefaultHeartbeatTimeout.
func NewTracker(c clock.PassiveClock, timeout time.Duration) *Tracker {
	if c == nil {
		c = clock.RealClock{}
	}
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return &Tracker{
		clock:   c,
		timeout: timeout,
		entries: make(map[string]*entry),
	}
}

// OnOffline registers a callback fired when a robot is evicted or marked offline.
// It must be set before the tracker is shared.
func (t *Tracker) OnOffline(fn func(robotID string)) {
	t.onOffline = fn
}

// Timeout returns the heartbeat timeout.
func (t *Tracker) Timeout() time.Duration { return t.timeout }

// MarkSeen records that a message from robotID was just processed.
func (t *Tracker) MarkSeen(robotID string) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[robotID]
	if !ok {
		e = &entry{selfReported: true}
		t.entries[robotID] = e
	}
	e.lastSeen = now
	e.alive = true
}

// SetSelfReported stores the alive flag a robot reports about itself.
// A robot that never reported one is treated as self-reported alive.
func (t *Tracker) SetSelfReported(robotID string, alive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[robotID]
	if !ok {
		e = &entry{}
		t.entries[robotID] = e
	}
	e.selfReported = alive
}

// IsAlive reports whether robotID was seen within the timeout, is not flagged
// offline and reports itself alive.
func (t *Tracker) IsAlive(robotID string) bool {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[robotID]
	if !ok {
		return false
	}
	return t.aliveAt(e, now)
}

// LastSeen returns when robotID was last seen.
func (t *Tracker) LastSeen(robotID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[robotID]
	if !ok || e.lastSeen.IsZero() {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// MarkOffline clears alive status immediately, regardless of the timeout.
func (t *Tracker) MarkOffline(robotID string) {
	t.mu.Lock()
	e, ok := t.entries[robotID]
	wasAlive := ok && e.alive
	if ok {
		e.alive = false
	}
	t.mu.Unlock()

	if wasAlive {
		t.notifyOffline(robotID)
	}
}

// MarkAllOffline flags every tracked robot offline and returns how many were alive.
func (t *Tracker) MarkAllOffline() int {
	var ids []string
	t.mu.Lock()
	for id, e := range t.entries {
		if e.alive {
			e.alive = false
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.notifyOffline(id)
	}
	return len(ids)
}

// Sweep evicts every entry whose last-seen time is stale at sweep time and
// returns the evicted ids. A candidate refreshed between selection and
// eviction is kept.
func (t *Tracker) Sweep() []string {
	now := t.clock.Now()

	var candidates []string
	alive := 0
	t.mu.RLock()
	for id, e := range t.entries {
		if t.stale(e, now) {
			candidates = append(candidates, id)
		} else if t.aliveAt(e, now) {
			alive++
		}
	}
	t.mu.RUnlock()

	var evicted []string
	for _, id := range candidates {
		if t.beforeEvict != nil {
			t.beforeEvict(id)
		}

		t.mu.Lock()
		e, ok := t.entries[id]
		// Re-check: a MarkSeen may have landed since the read pass.
		if ok && t.stale(e, t.clock.Now()) {
			delete(t.entries, id)
			evicted = append(evicted, id)
		} else if ok && t.aliveAt(e, t.clock.Now()) {
			alive++
		}
		t.mu.Unlock()
	}

	metrics.RobotsAlive.Set(float64(alive))
	metrics.LivenessEvictionsTotal.Add(float64(len(evicted)))
	for _, id := range evicted {
		t.notifyOffline(id)
	}
	return evicted
}

// Len returns the number of tracked robots.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Tracker) stale(e *entry, now time.Time) bool {
	return now.Sub(e.lastSeen) >= t.timeout
}

func (t *Tracker) aliveAt(e *entry, now time.Time) bool {
	return e.alive && e.selfReported && !t.stale(e, now)
}

func (t *Tracker) notifyOffline(robotID string) {
	if t.onOffline != nil {
		t.onOffline(robotID)
	}
}
