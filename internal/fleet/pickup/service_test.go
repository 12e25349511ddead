package pickup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/pkg/util"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// memRepo is an in-memory core.Repository for pickup tests.
type memRepo struct {
	mu         sync.Mutex
	orders     map[string]model.Order
	trips      map[string]model.Trip
	otps       []model.PickupOtp
	saves      int
	failOtps   error
	panicOnOtp bool
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[string]model.Order{}, trips: map[string]model.Trip{}}
}

func (r *memRepo) Robot() core.RobotRepository         { return nil }
func (r *memRepo) Container() core.ContainerRepository { return nil }
func (r *memRepo) Order() core.OrderRepository         { return orderRepo{r} }
func (r *memRepo) Trip() core.TripRepository           { return tripRepo{r} }
func (r *memRepo) PickupOtp() core.PickupOtpRepository { return otpRepo{r} }

type orderRepo struct{ r *memRepo }

func (o orderRepo) FindByOrderCode(ctx context.Context, code string) (*model.Order, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	v, ok := o.r.orders[code]
	if !ok {
		return nil, util.ErrNotFound
	}
	return &v, nil
}

func (o orderRepo) Save(ctx context.Context, v *model.Order) error {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	o.r.orders[v.OrderCode] = *v
	o.r.saves++
	return nil
}

type tripRepo struct{ r *memRepo }

func (t tripRepo) FindByTripCode(ctx context.Context, code string) (*model.Trip, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	v, ok := t.r.trips[code]
	if !ok {
		return nil, util.ErrNotFound
	}
	return &v, nil
}

func (t tripRepo) Save(ctx context.Context, v *model.Trip) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.trips[v.TripCode] = *v
	t.r.saves++
	return nil
}

type otpRepo struct{ r *memRepo }

func (o otpRepo) check() error {
	if o.r.panicOnOtp {
		panic("otp store exploded")
	}
	return o.r.failOtps
}

func (o otpRepo) Create(ctx context.Context, p *model.PickupOtp) error {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	if err := o.check(); err != nil {
		return err
	}
	o.r.otps = append(o.r.otps, *p)
	return nil
}

// newest returns matching rows newest first.
func (o otpRepo) newest(match func(p *model.PickupOtp) bool) *model.PickupOtp {
	var found []model.PickupOtp
	for _, p := range o.r.otps {
		if match(&p) {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	return &found[0]
}

func (o otpRepo) FindLatestActive(ctx context.Context, orderCode, tripCode string, now time.Time) (*model.PickupOtp, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	if err := o.check(); err != nil {
		return nil, err
	}
	p := o.newest(func(p *model.PickupOtp) bool {
		return p.OrderCode == orderCode && p.TripCode == tripCode && !p.Verified && !p.Expired(now)
	})
	if p == nil {
		return nil, util.ErrNotFound
	}
	return p, nil
}

func (o otpRepo) FindLatestUnverified(ctx context.Context, orderCode, tripCode, code string) (*model.PickupOtp, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	if err := o.check(); err != nil {
		return nil, err
	}
	p := o.newest(func(p *model.PickupOtp) bool {
		return p.OrderCode == orderCode && p.TripCode == tripCode && p.Code == code && !p.Verified
	})
	if p == nil {
		return nil, util.ErrNotFound
	}
	return p, nil
}

func (o otpRepo) CountCreatedSince(ctx context.Context, orderCode, tripCode string, since time.Time) (int, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	if err := o.check(); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range o.r.otps {
		if p.OrderCode == orderCode && p.TripCode == tripCode && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (o otpRepo) MarkVerified(ctx context.Context, orderCode, tripCode, code string, at time.Time) (int64, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	var n int64
	for i := range o.r.otps {
		p := &o.r.otps[i]
		if p.OrderCode == orderCode && p.TripCode == tripCode && p.Code == code && !p.Verified {
			p.Verified = true
			t := at
			p.VerifiedAt = &t
			n++
		}
	}
	return n, nil
}

func (o otpRepo) HasVerified(ctx context.Context, orderCode, tripCode string) (bool, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	for _, p := range o.r.otps {
		if p.OrderCode == orderCode && p.TripCode == tripCode && p.Verified {
			return true, nil
		}
	}
	return false, nil
}

func (o otpRepo) DeleteExpired(ctx context.Context, now, createdBefore time.Time) (int64, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	kept := o.r.otps[:0]
	var n int64
	for _, p := range o.r.otps {
		if p.ExpiresAt.Before(now) && p.CreatedAt.Before(createdBefore) {
			n++
			continue
		}
		kept = append(kept, p)
	}
	o.r.otps = kept
	return n, nil
}

func (o otpRepo) List(ctx context.Context) ([]*model.PickupOtp, error) { return nil, nil }

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

type fakeCommands struct {
	mu     sync.Mutex
	opened []string
	qr     []string
	err    error
}

func (f *fakeCommands) OpenContainer(ctx context.Context, robot, container string, cmd *core.ContainerCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, robot+"/"+container)
	return f.err
}

func (f *fakeCommands) LoadContainer(ctx context.Context, robot, container string, cmd *core.ContainerCommand) error {
	return nil
}

func (f *fakeCommands) InvalidateQR(ctx context.Context, robot string, cmd *core.QRCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qr = append(f.qr, robot)
	return f.err
}

func (f *fakeCommands) Move(ctx context.Context, robot string, cmd *core.MoveCommand) error {
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	mailer   *fakeMailer
	commands *fakeCommands
	clock    *clocktesting.FakeClock
}

const (
	orderCode = "O-100001"
	tripCode  = "T-200002"
)

func newFixture(t *testing.T, tripStatus model.TripStatus) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		mailer:   &fakeMailer{},
		commands: &fakeCommands{},
		clock:    clocktesting.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.repo.orders[orderCode] = model.Order{ID: 1, OrderCode: orderCode, TripID: 2, ReceiverEmail: "rx@example.com", Status: model.OrderStatusDelivery}
	f.repo.trips[tripCode] = model.Trip{ID: 2, TripCode: tripCode, RobotCode: "R7", ContainerCode: "C1", Status: tripStatus}

	seq := 0
	codes := func() (string, error) {
		seq++
		return fmt.Sprintf("%06d", seq*111111), nil
	}
	f.svc = NewService(Config{}, f.repo, f.mailer, f.commands,
		WithClock(f.clock), WithCodeGenerator(codes), WithLogger(log.NewNopLogger()))
	return f
}

func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	if len(f.repo.otps) == 0 {
		t.Fatal("no pickup code persisted")
	}
	return f.repo.otps[len(f.repo.otps)-1].Code
}

func TestSendThenVerify(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	if st := f.svc.Send(ctx, orderCode, tripCode); st != StatusOtpSent {
		t.Fatalf("Send() = %s, want OTP_SENT", st)
	}
	code := f.lastCode(t)
	if len(f.mailer.sent) != 1 || f.mailer.sent[0].to != "rx@example.com" || !strings.Contains(f.mailer.sent[0].body, code) {
		t.Fatalf("unexpected mail %+v", f.mailer.sent)
	}
	if otp := f.repo.otps[0]; !otp.ExpiresAt.Equal(f.clock.Now().Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", otp.ExpiresAt)
	}

	if st := f.svc.Verify(ctx, orderCode, tripCode, code); st != StatusOtpVerified {
		t.Fatalf("Verify() = %s, want OTP_VERIFIED", st)
	}
	if len(f.commands.opened) != 1 || f.commands.opened[0] != "R7/C1" || len(f.commands.qr) != 1 {
		t.Errorf("commands: opened=%v qr=%v", f.commands.opened, f.commands.qr)
	}
	if f.repo.orders[orderCode].Status == model.OrderStatusCompleted {
		t.Error("verify must not complete the order")
	}

	if st := f.svc.Verify(ctx, orderCode, tripCode, code); st != StatusInvalidOtp {
		t.Fatalf("second Verify() = %s, want INVALID_OTP", st)
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *memRepo)
		order  string
		trip   string
		want   Status
	}{
		{name: "order not found", order: "missing", trip: tripCode, want: StatusOrderNotFound},
		{name: "trip not found", order: orderCode, trip: "missing", want: StatusTripNotFound},
		{
			name: "trip mismatch",
			mutate: func(r *memRepo) {
				o := r.orders[orderCode]
				o.TripID = 99
				r.orders[orderCode] = o
			},
			order: orderCode, trip: tripCode, want: StatusTripMismatch,
		},
		{
			name: "already picked up",
			mutate: func(r *memRepo) {
				o := r.orders[orderCode]
				o.Status = model.OrderStatusCompleted
				r.orders[orderCode] = o
			},
			order: orderCode, trip: tripCode, want: StatusAlreadyPickedUp,
		},
		{
			name: "trip pending",
			mutate: func(r *memRepo) {
				tr := r.trips[tripCode]
				tr.Status = model.TripStatusPending
				r.trips[tripCode] = tr
			},
			order: orderCode, trip: tripCode, want: StatusNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.TripStatusFinished)
			if tt.mutate != nil {
				tt.mutate(f.repo)
			}
			if st := f.svc.Send(context.Background(), tt.order, tt.trip); st != tt.want {
				t.Fatalf("Send() = %s, want %s", st, tt.want)
			}
			if len(f.repo.otps) != 0 || len(f.mailer.sent) != 0 {
				t.Fatal("validation failure must not have side effects")
			}
		})
	}
}

func TestSendEmailFailureKeepsCode(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	f.mailer.err = errors.New("smtp unavailable")
	ctx := context.Background()

	if st := f.svc.Send(ctx, orderCode, tripCode); st != StatusEmailSendFailed {
		t.Fatalf("Send() = %s, want EMAIL_SEND_FAILED", st)
	}
	if st := f.svc.Verify(ctx, orderCode, tripCode, f.lastCode(t)); st != StatusOtpVerified {
		t.Fatalf("persisted code must still verify, got %s", st)
	}
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	f.svc.Send(ctx, orderCode, tripCode)
	code := f.lastCode(t)
	f.clock.Step(11 * time.Minute)

	if st := f.svc.Verify(ctx, orderCode, tripCode, code); st != StatusOtpExpired {
		t.Fatalf("Verify() = %s, want OTP_EXPIRED", st)
	}
	if len(f.repo.otps) != 1 {
		t.Fatal("verify must not delete expired rows")
	}
}

func TestVerifyWrongCode(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()
	f.svc.Send(ctx, orderCode, tripCode)

	if st := f.svc.Verify(ctx, orderCode, tripCode, "000000"); st != StatusInvalidOtp {
		t.Fatalf("Verify() = %s, want INVALID_OTP", st)
	}
	if st := f.svc.Verify(ctx, orderCode, "T-other", f.lastCode(t)); st != StatusInvalidOtp {
		t.Fatalf("Verify() on other trip = %s, want INVALID_OTP", st)
	}
}

func TestVerifySupersededCode(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	f.svc.Send(ctx, orderCode, tripCode)
	first := f.lastCode(t)
	f.clock.Step(time.Minute)
	f.svc.Send(ctx, orderCode, tripCode)
	second := f.lastCode(t)

	if st := f.svc.Verify(ctx, orderCode, tripCode, first); st != StatusInvalidOtp {
		t.Fatalf("Verify() with superseded code = %s, want INVALID_OTP", st)
	}
	if st := f.svc.Verify(ctx, orderCode, tripCode, second); st != StatusOtpVerified {
		t.Fatalf("Verify() with latest code = %s, want OTP_VERIFIED", st)
	}
}

func TestVerifyAfterResend(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	f.svc.Send(ctx, orderCode, tripCode)
	code := f.lastCode(t)
	f.clock.Step(time.Minute)
	if st := f.svc.Resend(ctx, orderCode, tripCode); st != StatusOtpResent {
		t.Fatalf("Resend() = %s, want OTP_RESENT", st)
	}
	if st := f.svc.Verify(ctx, orderCode, tripCode, code); st != StatusOtpVerified {
		t.Fatalf("Verify() after resend = %s, want OTP_VERIFIED", st)
	}
}

func TestVerifyCommandFailureStillVerifies(t *testing.T) {
	f := newFixture(t, model.TripStatusFinished)
	f.commands.err = errors.New("broker down")
	ctx := context.Background()

	f.svc.Send(ctx, orderCode, tripCode)
	if st := f.svc.Verify(ctx, orderCode, tripCode, f.lastCode(t)); st != StatusOtpVerified {
		t.Fatalf("Verify() = %s, want OTP_VERIFIED", st)
	}
}

func TestVerifyTripNotAtPickupPoint(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()
	f.svc.Send(ctx, orderCode, tripCode)

	tr := f.repo.trips[tripCode]
	tr.Status = model.TripStatusMoving
	f.repo.trips[tripCode] = tr

	if st := f.svc.Verify(ctx, orderCode, tripCode, f.lastCode(t)); st != StatusOtpVerified {
		t.Fatalf("Verify() = %s", st)
	}
	if len(f.commands.opened) != 0 {
		t.Fatal("container must not open while the trip is moving")
	}
}

func TestResendRateLimit(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	want := []Status{StatusOtpSent, StatusOtpResent, StatusOtpResent, StatusRateLimited}
	for i, w := range want {
		if st := f.svc.Resend(ctx, orderCode, tripCode); st != w {
			t.Fatalf("Resend() #%d = %s, want %s", i+1, st, w)
		}
		f.clock.Step(10 * time.Second)
	}

	if len(f.repo.otps) != 3 {
		t.Fatalf("persisted %d rows, want 3", len(f.repo.otps))
	}
	for _, otp := range f.repo.otps {
		if otp.Code != f.repo.otps[0].Code || !otp.ExpiresAt.Equal(f.repo.otps[0].ExpiresAt) {
			t.Fatalf("resend must reuse code and expiry: %+v", f.repo.otps)
		}
	}

	// The window is rolling.
	f.clock.Step(2 * time.Minute)
	if st := f.svc.Resend(ctx, orderCode, tripCode); st != StatusOtpResent {
		t.Fatalf("Resend() after window = %s, want OTP_RESENT", st)
	}
}

func TestResendAfterExpiryIssuesFreshCode(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	f.svc.Send(ctx, orderCode, tripCode)
	first := f.lastCode(t)
	f.clock.Step(11 * time.Minute)

	if st := f.svc.Resend(ctx, orderCode, tripCode); st != StatusOtpSent {
		t.Fatalf("Resend() = %s, want OTP_SENT", st)
	}
	if f.lastCode(t) == first {
		t.Fatal("expired code must be rotated")
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t, model.TripStatusFinished)
	ctx := context.Background()

	if st := f.svc.Complete(ctx, orderCode, tripCode); st != StatusOtpNotVerified {
		t.Fatalf("Complete() before verify = %s", st)
	}

	f.svc.Send(ctx, orderCode, tripCode)
	f.svc.Verify(ctx, orderCode, tripCode, f.lastCode(t))

	if st := f.svc.Complete(ctx, orderCode, tripCode); st != StatusPickupCompleted {
		t.Fatalf("Complete() = %s", st)
	}
	if f.repo.orders[orderCode].Status != model.OrderStatusCompleted || f.repo.trips[tripCode].Status != model.TripStatusCompleted {
		t.Fatal("order and trip must be COMPLETED")
	}

	saves := f.repo.saves
	if st := f.svc.Complete(ctx, orderCode, tripCode); st != StatusPickupCompleted {
		t.Fatalf("repeated Complete() = %s", st)
	}
	if f.repo.saves != saves {
		t.Fatal("repeated Complete() must not write")
	}

	if st := f.svc.Send(ctx, orderCode, tripCode); st != StatusAlreadyPickedUp {
		t.Fatalf("Send() after completion = %s", st)
	}
}

func TestServerError(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		f := newFixture(t, model.TripStatusLoading)
		f.repo.failOtps = errors.New("disk full")
		if st := f.svc.Send(context.Background(), orderCode, tripCode); st != StatusServerError {
			t.Fatalf("Send() = %s, want SERVER_ERROR", st)
		}
		if st := f.svc.Resend(context.Background(), orderCode, tripCode); st != StatusServerError {
			t.Fatalf("Resend() = %s, want SERVER_ERROR", st)
		}
	})

	t.Run("panic", func(t *testing.T) {
		f := newFixture(t, model.TripStatusLoading)
		f.repo.panicOnOtp = true
		if st := f.svc.Verify(context.Background(), orderCode, tripCode, "111111"); st != StatusServerError {
			t.Fatalf("Verify() = %s, want SERVER_ERROR", st)
		}
	})

	t.Run("code generator", func(t *testing.T) {
		f := newFixture(t, model.TripStatusLoading)
		f.svc.codes = func() (string, error) { return "", errors.New("entropy exhausted") }
		if st := f.svc.Send(context.Background(), orderCode, tripCode); st != StatusServerError {
			t.Fatalf("Send() = %s, want SERVER_ERROR", st)
		}
	})
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	f.svc.Send(ctx, orderCode, tripCode)
	f.svc.Verify(ctx, orderCode, tripCode, f.lastCode(t))
	f.clock.Step(5 * time.Minute)
	f.svc.Send(ctx, orderCode, tripCode)
	f.clock.Step(6 * time.Minute)

	n, err := f.svc.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() = %v", err)
	}
	if n != 1 || len(f.repo.otps) != 1 {
		t.Fatalf("Cleanup() deleted %d, %d rows left", n, len(f.repo.otps))
	}
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode() = %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q is not numeric", code)
			}
		}
	}
}

func TestCleanupKeepsRowsInsideResendWindow(t *testing.T) {
	f := newFixture(t, model.TripStatusLoading)
	ctx := context.Background()

	f.svc.Send(ctx, orderCode, tripCode)
	f.clock.Step(9 * time.Minute)
	for i := 0; i < 3; i++ {
		if st := f.svc.Resend(ctx, orderCode, tripCode); st != StatusOtpResent {
			t.Fatalf("Resend() #%d = %s, want OTP_RESENT", i+1, st)
		}
	}

	// Every row has expired, only the original left the window.
	f.clock.Step(61 * time.Second)
	n, err := f.svc.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() = %v", err)
	}
	if n != 1 || len(f.repo.otps) != 3 {
		t.Fatalf("Cleanup() deleted %d, %d rows left; want 1, 3", n, len(f.repo.otps))
	}

	if st := f.svc.Resend(ctx, orderCode, tripCode); st != StatusRateLimited {
		t.Fatalf("Resend() after cleanup = %s, want RATE_LIMIT_EXCEEDED", st)
	}
}
