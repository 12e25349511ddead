package core

import (
	"context"
)

// CommandPublisher sends commands to robots.
// In robofleet, this is implemented by the MQTT outbound adapter.
type CommandPublisher interface {
	// OpenContainer unlocks a container for pickup.
	OpenContainer(ctx context.Context, robotCode, containerCode string, cmd *ContainerCommand) error

	// LoadContainer tells the robot a container is being loaded.
	LoadContainer(ctx context.Context, robotCode, containerCode string, cmd *ContainerCommand) error

	// InvalidateQR tells the robot to stop displaying a pickup QR code.
	InvalidateQR(ctx context.Context, robotCode string, cmd *QRCommand) error

	// Move sends the robot to a destination.
	Move(ctx context.Context, robotCode string, cmd *MoveCommand) error
}

// ContainerCommand is the payload of container pickup/load commands.
type ContainerCommand struct {
	OrderCode string `json:"orderCode"`
	TripCode  string `json:"tripCode"`
	Action    string `json:"action"`
}

// QRCommand is the payload of QR commands.
type QRCommand struct {
	TripCode string `json:"tripCode"`
	Action   string `json:"action"`
}

// MoveCommand is the payload of a move command.
type MoveCommand struct {
	TripCode    string `json:"tripCode,omitempty"`
	Destination string `json:"destination"`
}

const (
	ActionOpen       = "OPEN"
	ActionLoad       = "LOAD"
	ActionInvalidate = "INVALIDATE"
)

// Mailer delivers email. Implementations must bound their own latency.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
