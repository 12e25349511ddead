package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/pkg/util"
)

type pickupOtpRepo struct {
	db *sql.DB
}

const otpColumns = `id, order_code, trip_code, code, email, created_at, expires_at, verified, verified_at`

func scanOtp(sc interface{ Scan(...any) error }) (*model.PickupOtp, error) {
	var (
		p                    model.PickupOtp
		createdAt, expiresAt int64
		verified             int
		verifiedAt           sql.NullInt64
	)
	if err := sc.Scan(&p.ID, &p.OrderCode, &p.TripCode, &p.Code, &p.Email, &createdAt, &expiresAt, &verified, &verifiedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = fromNanos(createdAt)
	p.ExpiresAt = fromNanos(expiresAt)
	p.Verified = verified != 0
	if verifiedAt.Valid {
		t := fromNanos(verifiedAt.Int64)
		p.VerifiedAt = &t
	}
	return &p, nil
}

func (r *pickupOtpRepo) Create(ctx context.Context, p *model.PickupOtp) error {
	var verifiedAt sql.NullInt64
	if p.VerifiedAt != nil {
		verifiedAt = sql.NullInt64{Int64: toNanos(*p.VerifiedAt), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pickup_otps (`+otpColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		p.ID, p.OrderCode, p.TripCode, p.Code, p.Email,
		toNanos(p.CreatedAt), toNanos(p.ExpiresAt), boolToInt(p.Verified), verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pickup otp: %w", err)
	}
	return nil
}

func (r *pickupOtpRepo) findOne(ctx context.Context, query string, args ...any) (*model.PickupOtp, error) {
	p, err := scanOtp(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find pickup otp: %w", err)
	}
	return p, nil
}

func (r *pickupOtpRepo) FindLatestActive(ctx context.Context, orderCode, tripCode string, now time.Time) (*model.PickupOtp, error) {
	return r.findOne(ctx,
		`SELECT `+otpColumns+` FROM pickup_otps
		WHERE order_code = ? AND trip_code = ? AND verified = 0 AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1;`,
		orderCode, tripCode, toNanos(now),
	)
}

func (r *pickupOtpRepo) FindLatestUnverified(ctx context.Context, orderCode, tripCode, code string) (*model.PickupOtp, error) {
	return r.findOne(ctx,
		`SELECT `+otpColumns+` FROM pickup_otps
		WHERE order_code = ? AND trip_code = ? AND code = ? AND verified = 0
		ORDER BY created_at DESC LIMIT 1;`,
		orderCode, tripCode, code,
	)
}

func (r *pickupOtpRepo) CountCreatedSince(ctx context.Context, orderCode, tripCode string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pickup_otps WHERE order_code = ? AND trip_code = ? AND created_at >= ?;`,
		orderCode, tripCode, toNanos(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pickup otps: %w", err)
	}
	return n, nil
}

func (r *pickupOtpRepo) MarkVerified(ctx context.Context, orderCode, tripCode, code string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pickup_otps SET verified = 1, verified_at = ?
		WHERE order_code = ? AND trip_code = ? AND code = ? AND verified = 0;`,
		toNanos(at), orderCode, tripCode, code,
	)
	if err != nil {
		return 0, fmt.Errorf("mark pickup otp verified: %w", err)
	}
	return res.RowsAffected()
}

func (r *pickupOtpRepo) HasVerified(ctx context.Context, orderCode, tripCode string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pickup_otps WHERE order_code = ? AND trip_code = ? AND verified = 1;`,
		orderCode, tripCode,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check verified pickup otp: %w", err)
	}
	return n > 0, nil
}

func (r *pickupOtpRepo) DeleteExpired(ctx context.Context, now, createdBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pickup_otps WHERE expires_at < ? AND created_at < ?;`,
		toNanos(now), toNanos(createdBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired pickup otps: %w", err)
	}
	return res.RowsAffected()
}

func (r *pickupOtpRepo) List(ctx context.Context) ([]*model.PickupOtp, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+otpColumns+` FROM pickup_otps ORDER BY created_at DESC;`)
	if err != nil {
		return nil, fmt.Errorf("list pickup otps: %w", err)
	}
	defer rows.Close()

	var out []*model.PickupOtp
	for rows.Next() {
		p, err := scanOtp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pickup otp: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
