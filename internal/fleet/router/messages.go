package router

import (
	"errors"
	"fmt"
)

type locationMessage struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	RoomCode string   `json:"roomCode"`
}

func (m *locationMessage) validate() error {
	if m.Lat == nil || m.Lon == nil {
		return errors.New("location requires lat and lon")
	}
	return nil
}

type batteryMessage struct {
	Battery *float64 `json:"battery"`
}

func (m *batteryMessage) validate() error {
	if m.Battery == nil {
		return errors.New("battery is required")
	}
	if *m.Battery < 0 || *m.Battery > 100 {
		return fmt.Errorf("battery %v out of range [0,100]", *m.Battery)
	}
	return nil
}

type statusMessage struct {
	Status string `json:"status"`
}

func (m *statusMessage) validate() error {
	if m.Status == "" {
		return errors.New("status is required")
	}
	return nil
}

type containerMessage struct {
	ContainerCode string `json:"containerCode"`
	Status        string `json:"status"`
	OrderCode     string `json:"orderCode,omitempty"`
	TripCode      string `json:"tripCode,omitempty"`
}

func (m *containerMessage) validate() error {
	if m.ContainerCode == "" || m.Status == "" {
		return errors.New("container requires containerCode and status")
	}
	return nil
}

type tripMessage struct {
	TripID     string  `json:"tripId"`
	Progress   float64 `json:"progress"`
	Status     string  `json:"status"`
	StartPoint string  `json:"startPoint"`
	EndPoint   string  `json:"endPoint"`
}

func (m *tripMessage) validate() error {
	if m.TripID == "" {
		return errors.New("tripId is required")
	}
	if m.Progress < 0 || m.Progress > 100 {
		return fmt.Errorf("progress %v out of range [0,100]", m.Progress)
	}
	return nil
}

type tripStateMessage struct {
	TripID string `json:"tripId"`
	Status string `json:"status"`
}

func (m *tripStateMessage) validate() error {
	if m.TripID == "" || m.Status == "" {
		return errors.New("trip state requires tripId and status")
	}
	return nil
}

type qrCodeMessage struct {
	QRCode string `json:"qrCode"`
	Status string `json:"status"`
}

type forceMoveMessage struct {
	Reason string `json:"reason"`
}

type warningMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m *warningMessage) validate() error {
	if m.Code == "" && m.Message == "" {
		return errors.New("warning requires code or message")
	}
	return nil
}

// heartbeatMessage carries the robot's own view of its liveness. A missing
// flag means alive.
type heartbeatMessage struct {
	IsAlive *bool `json:"isAlive"`
}

func (m *heartbeatMessage) alive() bool {
	return m.IsAlive == nil || *m.IsAlive
}
