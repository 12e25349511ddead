package core

import (
	"context"
	"time"

	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
)

// RobotRepository is the durable projection of robot telemetry.
// Find methods return util.ErrNotFound when the row does not exist.
type RobotRepository interface {
	FindByCode(ctx context.Context, code string) (*model.Robot, error)
	Save(ctx context.Context, robot *model.Robot) error
	List(ctx context.Context) ([]*model.Robot, error)
}

// ContainerRepository is the durable projection of container status.
type ContainerRepository interface {
	FindByRobotCodeAndContainerCode(ctx context.Context, robotCode, containerCode string) (*model.Container, error)
	Save(ctx context.Context, container *model.Container) error
}

// OrderRepository is the order collaborator's contract.
type OrderRepository interface {
	FindByOrderCode(ctx context.Context, orderCode string) (*model.Order, error)
	Save(ctx context.Context, order *model.Order) error
}

// TripRepository is the trip collaborator's contract.
type TripRepository interface {
	FindByTripCode(ctx context.Context, tripCode string) (*model.Trip, error)
	Save(ctx context.Context, trip *model.Trip) error
}

// PickupOtpRepository persists pickup code deliveries.
type PickupOtpRepository interface {
	Create(ctx context.Context, otp *model.PickupOtp) error

	// FindLatestActive returns the newest unverified row of the pair that is
	// not expired at now.
	FindLatestActive(ctx context.Context, orderCode, tripCode string, now time.Time) (*model.PickupOtp, error)

	// FindLatestUnverified returns the newest unverified row matching the code exactly,
	// expired or not.
	FindLatestUnverified(ctx context.Context, orderCode, tripCode, code string) (*model.PickupOtp, error)

	// CountCreatedSince counts rows of the pair created at or after since.
	CountCreatedSince(ctx context.Context, orderCode, tripCode string, since time.Time) (int, error)

	// MarkVerified flags every unverified row of the pair carrying code.
	MarkVerified(ctx context.Context, orderCode, tripCode, code string, at time.Time) (int64, error)

	// HasVerified reports whether any row of the pair is verified.
	HasVerified(ctx context.Context, orderCode, tripCode string) (bool, error)

	// DeleteExpired removes every row whose expiry is before now and which was
	// created before createdBefore. Younger rows still count toward the resend
	// limit and are kept even when expired.
	DeleteExpired(ctx context.Context, now, createdBefore time.Time) (int64, error)

	List(ctx context.Context) ([]*model.PickupOtp, error)
}

// Repository groups the durable stores of the fleet.
type Repository interface {
	Robot() RobotRepository
	Container() ContainerRepository
	Order() OrderRepository
	Trip() TripRepository
	PickupOtp() PickupOtpRepository
}
