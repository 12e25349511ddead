package pickup

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	fsmutil "github.com/autopeer-io/robofleet/internal/pkg/util/fsm"
)

// States of a pickup code for one (order, trip) pair. They are derived from
// persisted rows at the start of every operation; nothing is kept in memory.
const (
	StateNoOtp       = "NO_OTP"
	StateOtpSent     = "OTP_SENT"
	StateOtpResent   = "OTP_RESENT"
	StateOtpVerified = "OTP_VERIFIED"
	StateOtpExpired  = "OTP_EXPIRED"
	StateCompleted   = "COMPLETED"
)

const (
	// EventIssue generates and delivers a fresh code.
	EventIssue = "event_issue"
	// EventResend delivers the active code again.
	EventResend = "event_resend"
	// EventVerify accepts a matching code.
	EventVerify = "event_verify"
	// EventComplete closes the pickup on order and trip.
	EventComplete = "event_complete"
)

// attempt carries one operation's inputs and outcome through the callbacks.
type attempt struct {
	orderCode string
	tripCode  string
	order     *model.Order
	trip      *model.Trip
	otp       *model.PickupOtp

	status Status
}

type machine struct {
	*fsm.FSM
	s *Service
}

func (s *Service) newMachine(initial string) *machine {
	m := &machine{s: s}

	events := fsm.Events{
		{Name: EventIssue, Src: []string{StateNoOtp, StateOtpExpired, StateOtpVerified}, Dst: StateOtpSent},
		{Name: EventResend, Src: []string{StateOtpSent}, Dst: StateOtpResent},
		{Name: EventVerify, Src: []string{StateOtpSent}, Dst: StateOtpVerified},
		{Name: EventComplete, Src: []string{StateOtpVerified}, Dst: StateCompleted},
	}

	callbacks := fsm.Callbacks{
		"enter_" + StateOtpSent:     fsmutil.WrapEvent(m.actionEnterSent),
		"enter_" + StateOtpResent:   fsmutil.WrapEvent(m.actionEnterResent),
		"enter_" + StateOtpVerified: fsmutil.WrapEvent(m.actionEnterVerified),
		"enter_" + StateCompleted:   fsmutil.WrapEvent(m.actionEnterCompleted),
	}

	m.FSM = fsm.NewFSM(initial, events, callbacks)
	return m
}

// fire runs event for a and returns the error of the failing callback, if any.
func (m *machine) fire(ctx context.Context, event string, a *attempt) error {
	if err := m.Event(ctx, event, a); err != nil && !fsmutil.IsNoTransition(err) {
		return err
	}
	return nil
}

// actionEnterSent persists a fresh code and mails it.
func (m *machine) actionEnterSent(ctx context.Context, e *fsm.Event) error {
	a := e.Args[0].(*attempt)

	code, err := m.s.codes()
	if err != nil {
		return err
	}
	now := m.s.clock.Now()
	otp := &model.PickupOtp{
		ID:        m.s.newID(),
		OrderCode: a.orderCode,
		TripCode:  a.tripCode,
		Code:      code,
		Email:     a.order.ReceiverEmail,
		CreatedAt: now,
		ExpiresAt: now.Add(m.s.cfg.CodeTTL),
	}
	if err := m.s.otps.Create(ctx, otp); err != nil {
		return fmt.Errorf("create pickup otp: %w", err)
	}
	a.otp = otp

	a.status = StatusOtpSent
	if !m.s.deliver(ctx, otp) {
		a.status = StatusEmailSendFailed
	}
	return nil
}

// actionEnterResent records another delivery of the active code. The new row
// keeps the original code and expiry so it only feeds the resend limit.
func (m *machine) actionEnterResent(ctx context.Context, e *fsm.Event) error {
	a := e.Args[0].(*attempt)

	prev := a.otp
	otp := &model.PickupOtp{
		ID:        m.s.newID(),
		OrderCode: prev.OrderCode,
		TripCode:  prev.TripCode,
		Code:      prev.Code,
		Email:     a.order.ReceiverEmail,
		CreatedAt: m.s.clock.Now(),
		ExpiresAt: prev.ExpiresAt,
	}
	if err := m.s.otps.Create(ctx, otp); err != nil {
		return fmt.Errorf("record pickup otp resend: %w", err)
	}
	a.otp = otp

	a.status = StatusOtpResent
	if !m.s.deliver(ctx, otp) {
		a.status = StatusEmailSendFailed
	}
	return nil
}

// actionEnterVerified marks the code used and opens the container when the
// trip is at a pickup point. Command failures do not undo the verification.
func (m *machine) actionEnterVerified(ctx context.Context, e *fsm.Event) error {
	a := e.Args[0].(*attempt)

	n, err := m.s.otps.MarkVerified(ctx, a.orderCode, a.tripCode, a.otp.Code, m.s.clock.Now())
	if err != nil {
		return fmt.Errorf("mark pickup otp verified: %w", err)
	}
	if n == 0 {
		// Lost the race against a concurrent verify of the same code.
		a.status = StatusInvalidOtp
		return nil
	}
	a.status = StatusOtpVerified

	trip, err := m.s.trips.FindByTripCode(ctx, a.tripCode)
	if err != nil {
		m.s.log.Warn("Verified pickup code but could not load trip", "trip", a.tripCode, "error", err)
		return nil
	}
	if trip.ReadyForPickup() {
		m.s.unlock(ctx, a.orderCode, trip)
	}
	return nil
}

// actionEnterCompleted moves order and trip to COMPLETED. Rows already
// completed are left untouched.
func (m *machine) actionEnterCompleted(ctx context.Context, e *fsm.Event) error {
	a := e.Args[0].(*attempt)

	if a.order.Status != model.OrderStatusCompleted {
		a.order.Status = model.OrderStatusCompleted
		if err := m.s.orders.Save(ctx, a.order); err != nil {
			return fmt.Errorf("complete order %s: %w", a.orderCode, err)
		}
	}
	if a.trip.Status != model.TripStatusCompleted {
		a.trip.Status = model.TripStatusCompleted
		if err := m.s.trips.Save(ctx, a.trip); err != nil {
			return fmt.Errorf("complete trip %s: %w", a.tripCode, err)
		}
	}
	a.status = StatusPickupCompleted
	return nil
}

// unlock publishes the container-open and QR-invalidate commands for trip.
func (s *Service) unlock(ctx context.Context, orderCode string, trip *model.Trip) {
	if s.commands == nil {
		return
	}
	if trip.ContainerCode != "" {
		cmd := &core.ContainerCommand{OrderCode: orderCode, TripCode: trip.TripCode, Action: core.ActionOpen}
		if err := s.commands.OpenContainer(ctx, trip.RobotCode, trip.ContainerCode, cmd); err != nil {
			s.log.Error(err, "Failed to publish container unlock", "robot", trip.RobotCode, "container", trip.ContainerCode)
		}
	} else {
		s.log.Warn("Trip has no container, skipping unlock", "trip", trip.TripCode)
	}

	qr := &core.QRCommand{TripCode: trip.TripCode, Action: core.ActionInvalidate}
	if err := s.commands.InvalidateQR(ctx, trip.RobotCode, qr); err != nil {
		s.log.Error(err, "Failed to publish QR invalidate", "robot", trip.RobotCode)
	}
}
