package model

// OrderStatus values touched by pickup.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusDelivery  OrderStatus = "DELIVERY"
	OrderStatusFinished  OrderStatus = "FINISHED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// TripStatus values touched by pickup.
type TripStatus string

const (
	TripStatusPending   TripStatus = "PENDING"
	TripStatusLoading   TripStatus = "LOADING"
	TripStatusMoving    TripStatus = "MOVING"
	TripStatusFinished  TripStatus = "FINISHED"
	TripStatusCompleted TripStatus = "COMPLETED"
)

// Order is owned by the order collaborator; pickup only reads it and moves its status.
type Order struct {
	ID            int64
	OrderCode     string
	TripID        int64
	ReceiverEmail string
	Status        OrderStatus
}

// Trip is owned by the trip collaborator.
type Trip struct {
	ID            int64
	TripCode      string
	RobotCode     string
	ContainerCode string
	Status        TripStatus
}

// ReadyForPickup reports whether the trip is in a state where the receiver may open the container.
func (t *Trip) ReadyForPickup() bool {
	return t.Status == TripStatusLoading || t.Status == TripStatusFinished
}
