package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// Example: "robot/+/battery" matches "robot/R7/battery".
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#".
	// It must be the last segment of a filter.
	MultiWildcard = "#"
)

// DefaultRoot is the namespace every robot topic lives under.
const DefaultRoot = "robot"

// Upstream kinds (Robot -> Fleet). Pattern: {root}/{robotID}/{kind}
const (
	KindLocation  = "location"
	KindBattery   = "battery"
	KindStatus    = "status"
	KindContainer = "container"
	KindTrip      = "trip"
	KindTripState = "trip/state"
	KindQRCode    = "qr-code"
	KindForceMove = "force_move"
	KindWarning   = "warning"
	KindHeartbeat = "heartbeat"
)

// Kinds lists every upstream kind the fleet subscribes to.
var Kinds = []string{
	KindLocation,
	KindBattery,
	KindStatus,
	KindContainer,
	KindTrip,
	KindTripState,
	KindQRCode,
	KindForceMove,
	KindWarning,
	KindHeartbeat,
}

// Downstream command segments (Fleet -> Robot).
const (
	// SegmentCommand prefixes every robot-level command.
	SegmentCommand = "command"

	// SegmentContainer prefixes container-level commands.
	SegmentContainer = "container"

	CommandMove   = "move"
	CommandQR     = "qr"
	CommandPickup = "pickup"
	CommandLoad   = "load"
)
