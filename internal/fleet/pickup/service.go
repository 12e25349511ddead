// Package pickup issues, rate-limits and verifies one-time pickup codes tied
// to an (order, trip) pair.
package pickup

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/internal/pkg/util"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// Config tunes the pickup service.
type Config struct {
	CodeTTL      time.Duration
	ResendWindow time.Duration
	ResendLimit  int
	MailTimeout  time.Duration
	MailSubject  string
}

func (c *Config) setDefaults() {
	if c.CodeTTL <= 0 {
		c.CodeTTL = 10 * time.Minute
	}
	if c.ResendWindow <= 0 {
		c.ResendWindow = 2 * time.Minute
	}
	if c.ResendLimit <= 0 {
		c.ResendLimit = 3
	}
	if c.MailTimeout <= 0 {
		c.MailTimeout = 10 * time.Second
	}
	if c.MailSubject == "" {
		c.MailSubject = "Your pickup code"
	}
}

// Service implements the pickup verification flow.
type Service struct {
	cfg Config

	orders   core.OrderRepository
	trips    core.TripRepository
	otps     core.PickupOtpRepository
	mailer   core.Mailer
	commands core.CommandPublisher

	clock clock.PassiveClock
	codes CodeGenerator
	newID func() string
	log   log.Logger
}

// Option customises a Service.
type Option func(*Service)

func WithClock(c clock.PassiveClock) Option { return func(s *Service) { s.clock = c } }

func WithCodeGenerator(g CodeGenerator) Option { return func(s *Service) { s.codes = g } }

func WithLogger(l log.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(cfg Config, repo core.Repository, mailer core.Mailer, commands core.CommandPublisher, opts ...Option) *Service {
	cfg.setDefaults()
	s := &Service{
		cfg:      cfg,
		orders:   repo.Order(),
		trips:    repo.Trip(),
		otps:     repo.PickupOtp(),
		mailer:   mailer,
		commands: commands,
		clock:    clock.RealClock{},
		codes:    GenerateCode,
		newID:    func() string { return uuid.NewString() },
		log:      log.WithName("pickup"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send issues a fresh code for the pair and mails it to the order's receiver.
// Validation failures return a named status without side effects. A failed
// delivery returns EMAIL_SEND_FAILED and keeps the persisted code.
func (s *Service) Send(ctx context.Context, orderCode, tripCode string) Status {
	return s.boundary("send", func() (Status, error) {
		a, st, err := s.eligible(ctx, orderCode, tripCode)
		if err != nil || st != "" {
			return st, err
		}

		m := s.newMachine(StateNoOtp)
		if err := m.fire(ctx, EventIssue, a); err != nil {
			return "", err
		}
		return a.status, nil
	})
}

// Resend delivers the active code again, or a fresh one when none is active.
// At most ResendLimit deliveries per pair are allowed within ResendWindow,
// counted from persisted rows.
func (s *Service) Resend(ctx context.Context, orderCode, tripCode string) Status {
	return s.boundary("resend", func() (Status, error) {
		a, st, err := s.eligible(ctx, orderCode, tripCode)
		if err != nil || st != "" {
			return st, err
		}

		now := s.clock.Now()
		sent, err := s.otps.CountCreatedSince(ctx, orderCode, tripCode, now.Add(-s.cfg.ResendWindow))
		if err != nil {
			return "", fmt.Errorf("count pickup otps: %w", err)
		}
		if sent >= s.cfg.ResendLimit {
			return StatusRateLimited, nil
		}

		active, err := s.otps.FindLatestActive(ctx, orderCode, tripCode, now)
		switch {
		case errors.Is(err, util.ErrNotFound):
			m := s.newMachine(StateNoOtp)
			if err := m.fire(ctx, EventIssue, a); err != nil {
				return "", err
			}
		case err != nil:
			return "", fmt.Errorf("find active pickup otp: %w", err)
		default:
			a.otp = active
			m := s.newMachine(StateOtpSent)
			if err := m.fire(ctx, EventResend, a); err != nil {
				return "", err
			}
		}
		return a.status, nil
	})
}

// Verify checks code against the newest unverified row of the pair. A code
// superseded by a newer Send is INVALID_OTP. On success every unverified row
// carrying that code is consumed, so a second verify of the same code is
// INVALID_OTP.
func (s *Service) Verify(ctx context.Context, orderCode, tripCode, code string) Status {
	return s.boundary("verify", func() (Status, error) {
		a := &attempt{orderCode: orderCode, tripCode: tripCode}

		now := s.clock.Now()
		otp, err := s.otps.FindLatestUnverified(ctx, orderCode, tripCode, code)
		state := StateOtpSent
		switch {
		case errors.Is(err, util.ErrNotFound):
			state = StateNoOtp
		case err != nil:
			return "", fmt.Errorf("find pickup otp: %w", err)
		case otp.Expired(now):
			state = StateOtpExpired
		}

		if state == StateOtpSent {
			latest, err := s.otps.FindLatestActive(ctx, orderCode, tripCode, now)
			switch {
			case errors.Is(err, util.ErrNotFound):
			case err != nil:
				return "", fmt.Errorf("find active pickup otp: %w", err)
			case latest.Code != code:
				state = StateNoOtp
			}
		}

		m := s.newMachine(state)
		if !m.Can(EventVerify) {
			if state == StateOtpExpired {
				return StatusOtpExpired, nil
			}
			return StatusInvalidOtp, nil
		}

		a.otp = otp
		if err := m.fire(ctx, EventVerify, a); err != nil {
			return "", err
		}
		return a.status, nil
	})
}

// Complete is the single point where a pickup is closed: it requires a
// verified code and moves order and trip to COMPLETED. Repeated calls return
// PICKUP_COMPLETED without writing.
func (s *Service) Complete(ctx context.Context, orderCode, tripCode string) Status {
	return s.boundary("complete", func() (Status, error) {
		a, st, err := s.lookup(ctx, orderCode, tripCode)
		if err != nil || st != "" {
			return st, err
		}
		if a.order.Status == model.OrderStatusCompleted && a.trip.Status == model.TripStatusCompleted {
			return StatusPickupCompleted, nil
		}

		verified, err := s.otps.HasVerified(ctx, orderCode, tripCode)
		if err != nil {
			return "", fmt.Errorf("check verified pickup otp: %w", err)
		}
		state := StateNoOtp
		if verified {
			state = StateOtpVerified
		}

		m := s.newMachine(state)
		if !m.Can(EventComplete) {
			return StatusOtpNotVerified, nil
		}
		if err := m.fire(ctx, EventComplete, a); err != nil {
			return "", err
		}
		return a.status, nil
	})
}

// Cleanup deletes every code past its expiry, verified or not, once it has
// left the resend window.
func (s *Service) Cleanup(ctx context.Context) (deleted int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(nil, "Pickup cleanup panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("pickup cleanup panicked: %v", r)
		}
	}()

	now := s.clock.Now()
	deleted, err = s.otps.DeleteExpired(ctx, now, now.Add(-s.cfg.ResendWindow))
	if err != nil {
		metrics.PickupTotal.WithLabelValues("cleanup", string(StatusServerError)).Inc()
		return 0, fmt.Errorf("delete expired pickup otps: %w", err)
	}
	return deleted, nil
}

// boundary maps errors and panics of op to SERVER_ERROR.
func (s *Service) boundary(op string, fn func() (Status, error)) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(nil, "Pickup operation panicked", "op", op, "panic", r, "stack", string(debug.Stack()))
			st = StatusServerError
		}
		metrics.PickupTotal.WithLabelValues(op, string(st)).Inc()
	}()

	st, err := fn()
	if err != nil {
		s.log.Error(err, "Pickup operation failed", "op", op)
		return StatusServerError
	}
	return st
}

// lookup loads order and trip and checks they belong together.
func (s *Service) lookup(ctx context.Context, orderCode, tripCode string) (*attempt, Status, error) {
	order, err := s.orders.FindByOrderCode(ctx, orderCode)
	if errors.Is(err, util.ErrNotFound) {
		return nil, StatusOrderNotFound, nil
	} else if err != nil {
		return nil, "", fmt.Errorf("find order %s: %w", orderCode, err)
	}

	trip, err := s.trips.FindByTripCode(ctx, tripCode)
	if errors.Is(err, util.ErrNotFound) {
		return nil, StatusTripNotFound, nil
	} else if err != nil {
		return nil, "", fmt.Errorf("find trip %s: %w", tripCode, err)
	}

	if order.TripID != trip.ID {
		return nil, StatusTripMismatch, nil
	}
	return &attempt{orderCode: orderCode, tripCode: tripCode, order: order, trip: trip}, "", nil
}

// eligible is lookup plus the checks that gate issuing a code.
func (s *Service) eligible(ctx context.Context, orderCode, tripCode string) (*attempt, Status, error) {
	a, st, err := s.lookup(ctx, orderCode, tripCode)
	if err != nil || st != "" {
		return nil, st, err
	}
	if a.order.Status == model.OrderStatusCompleted {
		return nil, StatusAlreadyPickedUp, nil
	}
	if !a.trip.ReadyForPickup() {
		return nil, StatusNotReady, nil
	}
	return a, "", nil
}

// deliver mails the code within MailTimeout and reports whether it was accepted.
func (s *Service) deliver(ctx context.Context, otp *model.PickupOtp) bool {
	if s.mailer == nil {
		s.log.Warn("No mailer configured, pickup code not delivered", "order", otp.OrderCode)
		return false
	}
	if otp.Email == "" {
		s.log.Warn("Order has no receiver email", "order", otp.OrderCode)
		return false
	}

	mctx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()

	minutes := int(otp.ExpiresAt.Sub(s.clock.Now()).Round(time.Minute) / time.Minute)
	body := fmt.Sprintf("Your pickup code for order %s is %s. It expires in %d minutes.", otp.OrderCode, otp.Code, minutes)
	if err := s.mailer.Send(mctx, otp.Email, s.cfg.MailSubject, body); err != nil {
		s.log.Error(err, "Failed to send pickup code", "order", otp.OrderCode, "trip", otp.TripCode)
		return false
	}
	return true
}
