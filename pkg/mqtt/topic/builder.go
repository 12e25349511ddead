package topic

import (
	"strings"
)

// Builder constructs robot topic strings so every component agrees on the layout.
type Builder struct {
	// root is the first topic level, "robot" in production.
	root string
}

// NewBuilder creates a Builder. An empty root falls back to DefaultRoot.
func NewBuilder(root string) *Builder {
	root = strings.Trim(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	return &Builder{root: root}
}

// Root returns the first topic level.
func (b *Builder) Root() string {
	return b.root
}

// Telemetry returns the upstream topic a robot publishes a kind on.
// Direction: Robot -> Fleet
func (b *Builder) Telemetry(robotID, kind string) string {
	return b.join(robotID, kind)
}

// Wildcard returns the subscription filter matching kind for every robot.
// Result: {root}/+/{kind}
func (b *Builder) Wildcard(kind string) string {
	return b.join(Wildcard, kind)
}

// Subscriptions returns the full set of filters the fleet listens on.
func (b *Builder) Subscriptions() []string {
	filters := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		filters = append(filters, b.Wildcard(k))
	}
	return filters
}

// Move returns {root}/{robotID}/command/move.
// Direction: Fleet -> Robot
func (b *Builder) Move(robotID string) string {
	return b.join(robotID, SegmentCommand, CommandMove)
}

// QR returns {root}/{robotID}/command/qr.
func (b *Builder) QR(robotID string) string {
	return b.join(robotID, SegmentCommand, CommandQR)
}

// ContainerPickup returns {root}/{robotID}/container/{containerCode}/command/pickup.
// Publishing here unlocks the container for the receiver.
func (b *Builder) ContainerPickup(robotID, containerCode string) string {
	return b.join(robotID, SegmentContainer, containerCode, SegmentCommand, CommandPickup)
}

// ContainerLoad returns {root}/{robotID}/container/{containerCode}/command/load.
func (b *Builder) ContainerLoad(robotID, containerCode string) string {
	return b.join(robotID, SegmentContainer, containerCode, SegmentCommand, CommandLoad)
}

func (b *Builder) join(parts ...string) string {
	return b.root + "/" + strings.Join(parts, "/")
}
