package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/pkg/util"
)

type robotRepo struct {
	db *sql.DB
}

const robotColumns = `code, lat, lon, room_code, battery, status, online, last_seen_at, updated_at,
	trip_id, trip_progress, trip_status, qr_code, warning`

func scanRobot(sc interface{ Scan(...any) error }) (*model.Robot, error) {
	var (
		r                   model.Robot
		online              int
		lastSeen, updatedAt int64
	)
	if err := sc.Scan(&r.Code, &r.Lat, &r.Lon, &r.RoomCode, &r.Battery, &r.Status, &online, &lastSeen, &updatedAt,
		&r.TripID, &r.TripProgress, &r.TripStatus, &r.QRCode, &r.Warning); err != nil {
		return nil, err
	}
	r.Online = online != 0
	r.LastSeenAt = fromNanos(lastSeen)
	r.UpdatedAt = fromNanos(updatedAt)
	return &r, nil
}

func (r *robotRepo) FindByCode(ctx context.Context, code string) (*model.Robot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+robotColumns+` FROM robots WHERE code = ?;`, code)
	robot, err := scanRobot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find robot: %w", err)
	}
	return robot, nil
}

func (r *robotRepo) Save(ctx context.Context, robot *model.Robot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO robots (`+robotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			room_code = excluded.room_code,
			battery = excluded.battery,
			status = excluded.status,
			online = excluded.online,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at,
			trip_id = excluded.trip_id,
			trip_progress = excluded.trip_progress,
			trip_status = excluded.trip_status,
			qr_code = excluded.qr_code,
			warning = excluded.warning;`,
		robot.Code,
		robot.Lat,
		robot.Lon,
		robot.RoomCode,
		robot.Battery,
		robot.Status,
		boolToInt(robot.Online),
		toNanos(robot.LastSeenAt),
		toNanos(robot.UpdatedAt),
		robot.TripID,
		robot.TripProgress,
		robot.TripStatus,
		robot.QRCode,
		robot.Warning,
	)
	if err != nil {
		return fmt.Errorf("save robot: %w", err)
	}
	return nil
}

func (r *robotRepo) List(ctx context.Context) ([]*model.Robot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+robotColumns+` FROM robots ORDER BY code;`)
	if err != nil {
		return nil, fmt.Errorf("list robots: %w", err)
	}
	defer rows.Close()

	var out []*model.Robot
	for rows.Next() {
		robot, err := scanRobot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan robot: %w", err)
		}
		out = append(out, robot)
	}
	return out, rows.Err()
}

type containerRepo struct {
	db *sql.DB
}

func (r *containerRepo) FindByRobotCodeAndContainerCode(ctx context.Context, robotCode, containerCode string) (*model.Container, error) {
	var (
		c         model.Container
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT robot_code, container_code, status, updated_at FROM containers WHERE robot_code = ? AND container_code = ?;`,
		robotCode, containerCode,
	).Scan(&c.RobotCode, &c.ContainerCode, &c.Status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find container: %w", err)
	}
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}

func (r *containerRepo) Save(ctx context.Context, c *model.Container) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO containers (robot_code, container_code, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(robot_code, container_code) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at;`,
		c.RobotCode, c.ContainerCode, c.Status, toNanos(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save container: %w", err)
	}
	return nil
}
