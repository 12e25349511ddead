package model

// TelemetryKind names one independently cached field of a robot.
type TelemetryKind string

const (
	KindLocation  TelemetryKind = "location"
	KindBattery   TelemetryKind = "battery"
	KindStatus    TelemetryKind = "status"
	KindContainer TelemetryKind = "container"
	KindTrip      TelemetryKind = "trip"
	KindQRCode    TelemetryKind = "qr-code"
	KindWarning   TelemetryKind = "warning"
)

// Location is the last reported position of a robot.
type Location struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RoomCode string  `json:"roomCode"`
}

// Battery is a charge percentage between 0 and 100.
type Battery struct {
	Percentage float64 `json:"battery"`
}

// Status is the robot's self-reported operating state, e.g. AVAILABLE or BUSY.
type Status struct {
	Value string `json:"status"`
}

// ContainerKey identifies one container on one robot.
type ContainerKey struct {
	RobotID       string
	ContainerCode string
}

// ContainerStatus is the last reported state of a container door.
type ContainerStatus struct {
	ContainerCode string `json:"containerCode"`
	Status        string `json:"status"`
}

// TripState is the progress of the trip a robot is driving.
type TripState struct {
	TripID     string  `json:"tripId"`
	Progress   float64 `json:"progress"`
	Status     string  `json:"status"`
	StartPoint string  `json:"startPoint"`
	EndPoint   string  `json:"endPoint"`
}

// QRCode is the state of the QR code a robot displays.
type QRCode struct {
	Code   string `json:"qrCode"`
	Status string `json:"status"`
}

// Warning is the most recent warning raised by a robot.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WarningForceMove is recorded when a robot reports being moved by force.
const WarningForceMove = "FORCE_MOVE"
