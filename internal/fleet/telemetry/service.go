// Package telemetry is the cache-first read/write facade over robot state.
//
// Writes land in the in-memory cache synchronously, refresh liveness and
// schedule a durable write-through. Reads are served only from the cache and
// only while the robot is alive: an old durable row of a robot that is not
// live is treated the same as no data.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/fleet/cache"
	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/fleet/liveness"
	"github.com/autopeer-io/robofleet/internal/fleet/storage"
	"github.com/autopeer-io/robofleet/internal/pkg/util"
)

// DefaultAvailableStatus is the status value a free robot reports.
const DefaultAvailableStatus = "AVAILABLE"

// Config wires the collaborators of a Service.
type Config struct {
	State      *cache.RobotState
	Tracker    *liveness.Tracker
	Scheduler  storage.Scheduler
	Robots     core.RobotRepository
	Containers core.ContainerRepository
	Clock      clock.PassiveClock

	AvailableStatus string
}

type Service struct {
	state      *cache.RobotState
	tracker    *liveness.Tracker
	scheduler  storage.Scheduler
	robots     core.RobotRepository
	containers core.ContainerRepository
	clock      clock.PassiveClock

	availableStatus string
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Tracker == nil {
		return nil, errors.New("telemetry: liveness tracker is required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("telemetry: write-through scheduler is required")
	}
	if cfg.State == nil {
		cfg.State = cache.NewRobotState()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.AvailableStatus == "" {
		cfg.AvailableStatus = DefaultAvailableStatus
	}

	s := &Service{
		state:           cfg.State,
		tracker:         cfg.Tracker,
		scheduler:       cfg.Scheduler,
		robots:          cfg.Robots,
		containers:      cfg.Containers,
		clock:           cfg.Clock,
		availableStatus: cfg.AvailableStatus,
	}
	return s, nil
}

// State exposes the underlying cache for read-only snapshots.
func (s *Service) State() *cache.RobotState { return s.state }

// Snapshot copies everything cached for robotID, regardless of liveness.
func (s *Service) Snapshot(robotID string) cache.Snapshot {
	return s.state.Snapshot(robotID)
}

// --- Location ---

func (s *Service) UpdateLocation(robotID string, v model.Location) {
	s.state.Location.Put(robotID, v)
	s.touch(robotID)
}

func (s *Service) GetLocation(robotID string) (model.Location, bool) {
	return get(s, robotID, s.state.Location, robotID)
}

// --- Battery ---

func (s *Service) UpdateBattery(robotID string, v model.Battery) {
	s.state.Battery.Put(robotID, v)
	s.touch(robotID)
}

func (s *Service) GetBattery(robotID string) (model.Battery, bool) {
	return get(s, robotID, s.state.Battery, robotID)
}

// --- Status ---

func (s *Service) UpdateStatus(robotID string, v model.Status) {
	s.state.Status.Put(robotID, v)
	s.touch(robotID)
}

func (s *Service) GetStatus(robotID string) (model.Status, bool) {
	return get(s, robotID, s.state.Status, robotID)
}

// --- Containers ---

func (s *Service) UpdateContainer(robotID string, v model.ContainerStatus) {
	key := model.ContainerKey{RobotID: robotID, ContainerCode: v.ContainerCode}
	s.state.Containers.Put(key, v)
	s.tracker.MarkSeen(robotID)
	s.scheduleContainer(key)
}

func (s *Service) GetContainer(robotID, containerCode string) (model.ContainerStatus, bool) {
	key := model.ContainerKey{RobotID: robotID, ContainerCode: containerCode}
	if !s.tracker.IsAlive(robotID) {
		return model.ContainerStatus{}, false
	}
	v, ok := s.state.Containers.Get(key)
	if ok {
		s.scheduleContainer(key)
	}
	return v, ok
}

// --- Trip ---

func (s *Service) UpdateTrip(robotID string, v model.TripState) {
	s.state.Trip.Put(robotID, v)
	s.touch(robotID)
}

// UpdateTripStatus changes the status of the cached trip and keeps its other
// fields. A state update for a different trip replaces the cached one.
func (s *Service) UpdateTripStatus(robotID, tripID, status string) {
	s.state.Trip.Update(robotID, func(old model.TripState, ok bool) model.TripState {
		if !ok || old.TripID != tripID {
			return model.TripState{TripID: tripID, Status: status}
		}
		old.Status = status
		return old
	})
	s.touch(robotID)
}

func (s *Service) GetTrip(robotID string) (model.TripState, bool) {
	return get(s, robotID, s.state.Trip, robotID)
}

// --- QR code ---

func (s *Service) UpdateQRCode(robotID string, v model.QRCode) {
	s.state.QRCode.Put(robotID, v)
	s.touch(robotID)
}

func (s *Service) GetQRCode(robotID string) (model.QRCode, bool) {
	return get(s, robotID, s.state.QRCode, robotID)
}

// --- Warning ---

func (s *Service) UpdateWarning(robotID string, v model.Warning) {
	s.state.Warning.Put(robotID, v)
	s.touch(robotID)
}

func (s *Service) GetWarning(robotID string) (model.Warning, bool) {
	return get(s, robotID, s.state.Warning, robotID)
}

// --- Liveness ---

// Heartbeat records a robot's self-reported liveness. A robot announcing it
// is going away is marked offline at once.
func (s *Service) Heartbeat(robotID string, alive bool) {
	s.tracker.SetSelfReported(robotID, alive)
	if !alive {
		s.tracker.MarkOffline(robotID)
		return
	}
	s.touch(robotID)
}

// MarkOffline clears the alive status of robotID.
func (s *Service) MarkOffline(robotID string) {
	s.tracker.MarkOffline(robotID)
}

// MarkAllOffline clears every alive status, e.g. after losing the broker.
func (s *Service) MarkAllOffline() int {
	return s.tracker.MarkAllOffline()
}

// HandleOffline projects an offline transition onto the durable robot row.
// It is registered as the tracker's offline callback.
func (s *Service) HandleOffline(robotID string) {
	s.scheduleRobot(robotID)
}

// IsOnline reports whether robotID is alive.
func (s *Service) IsOnline(robotID string) bool {
	return s.tracker.IsAlive(robotID)
}

// IsFree reports whether robotID is alive and reports the available status.
func (s *Service) IsFree(robotID string) bool {
	st, ok := s.GetStatus(robotID)
	return ok && strings.EqualFold(st.Value, s.availableStatus)
}

// touch refreshes liveness and schedules the robot row write-through.
func (s *Service) touch(robotID string) {
	s.tracker.MarkSeen(robotID)
	s.scheduleRobot(robotID)
}

// get serves a robot-level field from the cache while the robot is alive and
// heals the durable row on every hit.
func get[V any](s *Service, robotID string, store *cache.Store[string, V], key string) (V, bool) {
	var zero V
	if !s.tracker.IsAlive(robotID) {
		return zero, false
	}
	v, ok := store.Get(key)
	if !ok {
		return zero, false
	}
	s.scheduleRobot(robotID)
	return v, true
}

func (s *Service) scheduleRobot(robotID string) {
	if s.robots == nil {
		return
	}
	s.scheduler.Push(storage.Task{
		Key:   "robot/" + robotID,
		Write: func(ctx context.Context) error { return s.writeRobot(ctx, robotID) },
	})
}

func (s *Service) scheduleContainer(key model.ContainerKey) {
	if s.containers == nil {
		return
	}
	s.scheduler.Push(storage.Task{
		Key:   "container/" + key.RobotID + "/" + key.ContainerCode,
		Write: func(ctx context.Context) error { return s.writeContainer(ctx, key) },
	})
}

// writeRobot merges the cache into the durable robot row at flush time, so a
// coalesced task always writes the latest cached values.
func (s *Service) writeRobot(ctx context.Context, robotID string) error {
	row, err := s.robots.FindByCode(ctx, robotID)
	if errors.Is(err, util.ErrNotFound) {
		row = &model.Robot{Code: robotID}
	} else if err != nil {
		return fmt.Errorf("find robot %s: %w", robotID, err)
	}

	if v, ok := s.state.Location.Get(robotID); ok {
		row.Lat, row.Lon, row.RoomCode = v.Lat, v.Lon, v.RoomCode
	}
	if v, ok := s.state.Battery.Get(robotID); ok {
		row.Battery = v.Percentage
	}
	if v, ok := s.state.Status.Get(robotID); ok {
		row.Status = v.Value
	}
	if v, ok := s.state.Trip.Get(robotID); ok {
		row.TripID, row.TripProgress, row.TripStatus = v.TripID, v.Progress, v.Status
	}
	if v, ok := s.state.QRCode.Get(robotID); ok {
		row.QRCode = v.Code
	}
	if v, ok := s.state.Warning.Get(robotID); ok {
		row.Warning = v.Code
	}
	row.Online = s.tracker.IsAlive(robotID)
	if seen, ok := s.tracker.LastSeen(robotID); ok {
		row.LastSeenAt = seen
	}
	row.UpdatedAt = s.clock.Now()

	if err := s.robots.Save(ctx, row); err != nil {
		return fmt.Errorf("save robot %s: %w", robotID, err)
	}
	return nil
}

func (s *Service) writeContainer(ctx context.Context, key model.ContainerKey) error {
	v, ok := s.state.Containers.Get(key)
	if !ok {
		return nil
	}

	row, err := s.containers.FindByRobotCodeAndContainerCode(ctx, key.RobotID, key.ContainerCode)
	if errors.Is(err, util.ErrNotFound) {
		row = &model.Container{RobotCode: key.RobotID, ContainerCode: key.ContainerCode}
	} else if err != nil {
		return fmt.Errorf("find container %s/%s: %w", key.RobotID, key.ContainerCode, err)
	}

	row.Status = v.Status
	row.UpdatedAt = s.clock.Now()
	if err := s.containers.Save(ctx, row); err != nil {
		return fmt.Errorf("save container %s/%s: %w", key.RobotID, key.ContainerCode, err)
	}
	return nil
}
