// Package cache holds the authoritative in-memory robot state.
package cache

import (
	"sync"

	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
)

// Store is a concurrent last-write-wins map. Readers never observe a partially
// written value.
type Store[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{items: make(map[K]V)}
}

// Put replaces the value for key.
func (s *Store[K, V]) Put(key K, val V) {
	s.mu.Lock()
	s.items[key] = val
	s.mu.Unlock()
}

// Get returns the value for key and whether one is present.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Update replaces the value for key with fn(old, present) atomically.
func (s *Store[K, V]) Update(key K, fn func(old V, ok bool) V) V {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[key]
	v := fn(old, ok)
	s.items[key] = v
	return v
}

func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns a snapshot of the current keys in no particular order.
func (s *Store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]K, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}

// RobotState groups one map per telemetry kind. Each map is independently
// last-write-wins; there is no cross-kind consistency.
type RobotState struct {
	Location   *Store[string, model.Location]
	Battery    *Store[string, model.Battery]
	Status     *Store[string, model.Status]
	Containers *Store[model.ContainerKey, model.ContainerStatus]
	Trip       *Store[string, model.TripState]
	QRCode     *Store[string, model.QRCode]
	Warning    *Store[string, model.Warning]
}

func NewRobotState() *RobotState {
	return &RobotState{
		Location:   NewStore[string, model.Location](),
		Battery:    NewStore[string, model.Battery](),
		Status:     NewStore[string, model.Status](),
		Containers: NewStore[model.ContainerKey, model.ContainerStatus](),
		Trip:       NewStore[string, model.TripState](),
		QRCode:     NewStore[string, model.QRCode](),
		Warning:    NewStore[string, model.Warning](),
	}
}

// Snapshot is a point-in-time copy of everything cached for one robot.
type Snapshot struct {
	RobotID    string                  `json:"robotId"`
	Location   *model.Location         `json:"location,omitempty"`
	Battery    *model.Battery          `json:"battery,omitempty"`
	Status     *model.Status           `json:"status,omitempty"`
	Containers []model.ContainerStatus `json:"containers,omitempty"`
	Trip       *model.TripState        `json:"trip,omitempty"`
	QRCode     *model.QRCode           `json:"qrCode,omitempty"`
	Warning    *model.Warning          `json:"warning,omitempty"`
}

// Snapshot copies the cached state of robotID. Fields never reported are nil.
func (r *RobotState) Snapshot(robotID string) Snapshot {
	snap := Snapshot{RobotID: robotID}
	if v, ok := r.Location.Get(robotID); ok {
		snap.Location = &v
	}
	if v, ok := r.Battery.Get(robotID); ok {
		snap.Battery = &v
	}
	if v, ok := r.Status.Get(robotID); ok {
		snap.Status = &v
	}
	if v, ok := r.Trip.Get(robotID); ok {
		snap.Trip = &v
	}
	if v, ok := r.QRCode.Get(robotID); ok {
		snap.QRCode = &v
	}
	if v, ok := r.Warning.Get(robotID); ok {
		snap.Warning = &v
	}
	for _, k := range r.Containers.Keys() {
		if k.RobotID != robotID {
			continue
		}
		if v, ok := r.Containers.Get(k); ok {
			snap.Containers = append(snap.Containers, v)
		}
	}
	return snap
}
