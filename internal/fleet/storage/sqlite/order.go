package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/pkg/util"
)

type orderRepo struct {
	db *sql.DB
}

func (r *orderRepo) FindByOrderCode(ctx context.Context, orderCode string) (*model.Order, error) {
	var o model.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, order_code, trip_id, receiver_email, status FROM orders WHERE order_code = ?;`,
		orderCode,
	).Scan(&o.ID, &o.OrderCode, &o.TripID, &o.ReceiverEmail, &o.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &o, nil
}

// Save upserts by order code and fills in the ID of a new row.
func (r *orderRepo) Save(ctx context.Context, o *model.Order) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO orders (order_code, trip_id, receiver_email, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(order_code) DO UPDATE SET
			trip_id = excluded.trip_id,
			receiver_email = excluded.receiver_email,
			status = excluded.status
		RETURNING id;`,
		o.OrderCode, o.TripID, o.ReceiverEmail, string(o.Status),
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

type tripRepo struct {
	db *sql.DB
}

func (r *tripRepo) FindByTripCode(ctx context.Context, tripCode string) (*model.Trip, error) {
	var t model.Trip
	err := r.db.QueryRowContext(ctx,
		`SELECT id, trip_code, robot_code, container_code, status FROM trips WHERE trip_code = ?;`,
		tripCode,
	).Scan(&t.ID, &t.TripCode, &t.RobotCode, &t.ContainerCode, &t.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find trip: %w", err)
	}
	return &t, nil
}

// Save upserts by trip code and fills in the ID of a new row.
func (r *tripRepo) Save(ctx context.Context, t *model.Trip) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO trips (trip_code, robot_code, container_code, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(trip_code) DO UPDATE SET
			robot_code = excluded.robot_code,
			container_code = excluded.container_code,
			status = excluded.status
		RETURNING id;`,
		t.TripCode, t.RobotCode, t.ContainerCode, string(t.Status),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("save trip: %w", err)
	}
	return nil
}
