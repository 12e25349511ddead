// Package sqlite is the durable store of the fleet backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/autopeer-io/robofleet/internal/fleet/core"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

var _ core.Repository = (*Store)(nil)

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer; serialise through a single connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InitSchema ensures baseline tables exist. Timestamps are unix nanoseconds
// so range queries compare numerically.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS robots (
			code TEXT PRIMARY KEY,
			lat REAL NOT NULL DEFAULT 0,
			lon REAL NOT NULL DEFAULT 0,
			room_code TEXT NOT NULL DEFAULT '',
			battery REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			online INTEGER NOT NULL DEFAULT 0,
			last_seen_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			trip_id TEXT NOT NULL DEFAULT '',
			trip_progress REAL NOT NULL DEFAULT 0,
			trip_status TEXT NOT NULL DEFAULT '',
			qr_code TEXT NOT NULL DEFAULT '',
			warning TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS containers (
			robot_code TEXT NOT NULL,
			container_code TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (robot_code, container_code)
		);`,
		`CREATE TABLE IF NOT EXISTS trips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trip_code TEXT NOT NULL UNIQUE,
			robot_code TEXT NOT NULL DEFAULT '',
			container_code TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_code TEXT NOT NULL UNIQUE,
			trip_id INTEGER NOT NULL DEFAULT 0,
			receiver_email TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pickup_otps (
			id TEXT PRIMARY KEY,
			order_code TEXT NOT NULL,
			trip_code TEXT NOT NULL,
			code TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			verified INTEGER NOT NULL DEFAULT 0,
			verified_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pickup_otps_pair_time ON pickup_otps(order_code, trip_code, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_pickup_otps_expires ON pickup_otps(expires_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// DB exposes the underlying sql.DB for callers that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Robot() core.RobotRepository         { return &robotRepo{db: s.db} }
func (s *Store) Container() core.ContainerRepository { return &containerRepo{db: s.db} }
func (s *Store) Order() core.OrderRepository         { return &orderRepo{db: s.db} }
func (s *Store) Trip() core.TripRepository           { return &tripRepo{db: s.db} }
func (s *Store) PickupOtp() core.PickupOtpRepository { return &pickupOtpRepo{db: s.db} }

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
