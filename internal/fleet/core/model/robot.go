package model

import "time"

// Robot is the durable projection of a robot's cached telemetry.
// The in-memory cache is authoritative; this row lags behind it.
type Robot struct {
	Code       string
	Lat        float64
	Lon        float64
	RoomCode   string
	Battery    float64
	Status     string
	Online     bool
	LastSeenAt time.Time
	UpdatedAt  time.Time

	TripID       string
	TripProgress float64
	TripStatus   string
	QRCode       string
	Warning      string
}

// Container is the durable projection of one container's status.
type Container struct {
	RobotCode     string
	ContainerCode string
	Status        string
	UpdatedAt     time.Time
}
