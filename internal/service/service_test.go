package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/mailer"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo/memrepo"
)

type fakeDispatcher struct {
	mu            sync.Mutex
	fail          bool
	confirmations []model.SignupDetails
	reminders     []model.SignupDetails
	cancellations []string
}

func (f *fakeDispatcher) SendConfirmation(_ context.Context, d model.SignupDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return mailer.ErrDelivery
	}
	f.confirmations = append(f.confirmations, d)
	return nil
}

func (f *fakeDispatcher) SendReminder(_ context.Context, d model.SignupDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return mailer.ErrDelivery
	}
	f.reminders = append(f.reminders, d)
	return nil
}

func (f *fakeDispatcher) SendCancellationNotice(_ context.Context, email, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return mailer.ErrDelivery
	}
	f.cancellations = append(f.cancellations, email)
	return nil
}

func (f *fakeDispatcher) reminderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reminders)
}

var (
	now     = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	teacher = model.User{ID: "u-teacher", Username: "rivera", Name: "Ms. Rivera", Role: model.RoleUser, Status: model.StatusActive}
	other   = model.User{ID: "u-other", Username: "other", Role: model.RoleUser, Status: model.StatusActive}
	admin   = model.User{ID: "u-admin", Username: "admin", Role: model.RoleAdmin, Status: model.StatusActive}
)

func actorOf(u model.User) model.Actor {
	return model.Actor{UserID: u.ID, Role: u.Role, Status: u.Status}
}

type fixture struct {
	store *memrepo.Store
	disp  *fakeDispatcher
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := memrepo.New()
	store.AddUser(teacher)
	store.AddUser(other)
	store.AddUser(admin)
	disp := &fakeDispatcher{}
	svc := New(store, disp, disp, &log, Config{Now: func() time.Time { return now }})
	return &fixture{store: store, disp: disp, svc: svc}
}

func (f *fixture) slot(t *testing.T, capacity int, start time.Time) string {
	t.Helper()
	end := start.Add(30 * time.Minute)
	v, err := f.svc.Slots.CreateSlot(context.Background(), actorOf(teacher), dto.CreateSlotRequest{
		StartTime:   start,
		EndTime:     &end,
		MaxCapacity: capacity,
	})
	if err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	return v.ID
}

func (f *fixture) signup(slotID string, count int) (*model.Signup, error) {
	return f.svc.Signups.AttemptSignup(context.Background(), slotID, dto.SignupRequest{
		ParentName:    "Dana Parent",
		Email:         "Dana@Example.com ",
		AttendeeCount: count,
	})
}

func (f *fixture) occupancy(t *testing.T, slotID string) int {
	t.Helper()
	v, err := f.store.GetSlot(context.Background(), slotID)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	return v.Occupied
}

func expectCapacityError(t *testing.T, err error, remaining int) {
	t.Helper()
	var ce *CapacityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if ce.Remaining != remaining {
		t.Fatalf("expected remaining %d, got %d", remaining, ce.Remaining)
	}
}

func TestAttemptSignup_Scenario(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 2, now.Add(48*time.Hour))

	first, err := f.signup(slotID, 1)
	if err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if got := f.occupancy(t, slotID); got != 1 {
		t.Fatalf("occupancy after first signup = %d, want 1", got)
	}

	_, err = f.signup(slotID, 2)
	expectCapacityError(t, err, 1)

	if _, err := f.signup(slotID, 1); err != nil {
		t.Fatalf("second signup: %v", err)
	}
	if got := f.occupancy(t, slotID); got != 2 {
		t.Fatalf("occupancy = %d, want 2", got)
	}

	if _, err := f.svc.Cancellations.CancelByToken(context.Background(), first.CancellationToken); err != nil {
		t.Fatalf("CancelByToken: %v", err)
	}
	if got := f.occupancy(t, slotID); got != 1 {
		t.Fatalf("occupancy after cancel = %d, want 1", got)
	}

	if _, err := f.signup(slotID, 1); err != nil {
		t.Fatalf("signup after cancel: %v", err)
	}
	if got := f.occupancy(t, slotID); got != 2 {
		t.Fatalf("final occupancy = %d, want 2", got)
	}
}

func TestAttemptSignup_ConcurrentLastSpot(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 1, now.Add(48*time.Hour))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.signup(slotID, 1)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		var ce *CapacityError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &ce):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Fatalf("expected one success and one CapacityError, got %d and %d", ok, full)
	}
}

func TestAttemptSignup_InvariantUnderLoad(t *testing.T) {
	f := newFixture(t)
	const capacity = 7
	slotID := f.slot(t, capacity, now.Add(48*time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.signup(slotID, 1+i%3)
		}(i)
	}
	wg.Wait()

	if got := f.occupancy(t, slotID); got > capacity {
		t.Fatalf("occupancy %d exceeds capacity %d", got, capacity)
	}
}

func TestAttemptSignup_CancellationFreesCapacity(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 3, now.Add(48*time.Hour))

	big, err := f.signup(slotID, 2)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := f.signup(slotID, 1); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, err = f.signup(slotID, 1)
	expectCapacityError(t, err, 0)

	if err := f.svc.Cancellations.CancelByID(context.Background(), actorOf(teacher), big.ID); err != nil {
		t.Fatalf("CancelByID: %v", err)
	}
	if _, err := f.signup(slotID, 2); err != nil {
		t.Fatalf("signup after cancel: %v", err)
	}
}

func TestAttemptSignup_EmailFailureIsolated(t *testing.T) {
	f := newFixture(t)
	f.disp.fail = true
	slotID := f.slot(t, 1, now.Add(48*time.Hour))

	g, err := f.signup(slotID, 1)
	if err != nil {
		t.Fatalf("signup should succeed when email fails: %v", err)
	}
	if g.ID == "" || g.CancellationToken == "" {
		t.Fatalf("signup not fully populated: %+v", g)
	}
	if got := f.occupancy(t, slotID); got != 1 {
		t.Fatalf("occupancy = %d, want 1", got)
	}
}

func TestAttemptSignup_NormalizesAndConfirms(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 5, now.Add(48*time.Hour))

	g, err := f.signup(slotID, 0)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if g.AttendeeCount != 1 {
		t.Fatalf("default attendee count = %d, want 1", g.AttendeeCount)
	}
	if g.Email != "dana@example.com" {
		t.Fatalf("email not normalized: %q", g.Email)
	}
	if len(f.disp.confirmations) != 1 {
		t.Fatalf("expected one confirmation, got %d", len(f.disp.confirmations))
	}
	if name := f.disp.confirmations[0].OwnerName; name != "Ms. Rivera" {
		t.Fatalf("confirmation owner name = %q", name)
	}
}

func TestAttemptSignup_Rejects(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 5, now.Add(48*time.Hour))

	_, err := f.signup(slotID, -1)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	for _, email := range []string{"nope", "dana@example.com\r\nBcc: all@school.example"} {
		_, err = f.svc.Signups.AttemptSignup(context.Background(), slotID, dto.SignupRequest{ParentName: "Dana", Email: email})
		if !errors.As(err, &ve) || ve.Field != "email" {
			t.Fatalf("email %q: expected email ValidationError, got %v", email, err)
		}
	}
	if got := f.occupancy(t, slotID); got != 0 {
		t.Fatalf("rejected signups changed occupancy to %d", got)
	}

	_, err = f.signup("missing", 1)
	if !errors.Is(err, repo.ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestCancelByID_Authorization(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 5, now.Add(48*time.Hour))
	g, err := f.signup(slotID, 1)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	ctx := context.Background()

	if err := f.svc.Cancellations.CancelByID(ctx, actorOf(other), g.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Cancellations.CancelByID(ctx, actorOf(other), "missing"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner, missing signup: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Cancellations.CancelByID(ctx, actorOf(admin), "missing"); !errors.Is(err, repo.ErrSignupNotFound) {
		t.Fatalf("admin, missing signup: expected ErrSignupNotFound, got %v", err)
	}

	suspended := actorOf(teacher)
	suspended.Status = model.StatusSuspended
	if err := f.svc.Cancellations.CancelByID(ctx, suspended, g.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("suspended owner: expected ErrForbidden, got %v", err)
	}

	if err := f.svc.Cancellations.CancelByID(ctx, actorOf(admin), g.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if len(f.disp.cancellations) != 1 {
		t.Fatalf("expected one cancellation notice, got %d", len(f.disp.cancellations))
	}
}

func TestCancelByToken_UnknownAndMalformed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, tok := range []string{"", "short", "not a token at all, has spaces and is long enough ok"} {
		if _, err := f.svc.Cancellations.CancelByToken(ctx, tok); !errors.Is(err, repo.ErrSignupNotFound) {
			t.Fatalf("token %q: expected ErrSignupNotFound, got %v", tok, err)
		}
	}
}

func TestResolveByToken_ExactMatch(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 5, now.Add(48*time.Hour))
	g, err := f.signup(slotID, 1)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	ctx := context.Background()

	d, err := f.svc.Cancellations.ResolveByToken(ctx, g.CancellationToken)
	if err != nil {
		t.Fatalf("ResolveByToken: %v", err)
	}
	if d.Signup.ID != g.ID || d.OwnerName != "Ms. Rivera" || d.Slot.ID != slotID {
		t.Fatalf("unexpected details %+v", d)
	}

	flipped := []byte(g.CancellationToken)
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	if _, err := f.svc.Cancellations.ResolveByToken(ctx, string(flipped)); !errors.Is(err, repo.ErrSignupNotFound) {
		t.Fatalf("altered token: expected ErrSignupNotFound, got %v", err)
	}
}

func TestRunSweep_Idempotent(t *testing.T) {
	f := newFixture(t)
	inWindow := f.slot(t, 5, now.Add(24*time.Hour+10*time.Minute))
	tooLate := f.slot(t, 5, now.Add(25*time.Hour))
	tooSoon := f.slot(t, 5, now.Add(23*time.Hour))
	for _, id := range []string{inWindow, inWindow, tooLate, tooSoon} {
		if _, err := f.signup(id, 1); err != nil {
			t.Fatalf("signup: %v", err)
		}
	}
	ctx := context.Background()

	res, err := f.svc.Reminders.RunSweep(ctx, now)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if res.Processed != 2 || res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("first sweep = %+v", res)
	}

	res, err = f.svc.Reminders.RunSweep(ctx, now)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if res.Processed != 0 || res.Sent != 0 {
		t.Fatalf("second sweep = %+v", res)
	}
	if got := f.disp.reminderCount(); got != 2 {
		t.Fatalf("reminders sent = %d, want 2", got)
	}
}

func TestRunSweep_RetriesFailures(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 5, now.Add(24*time.Hour+30*time.Minute))
	if _, err := f.signup(slotID, 1); err != nil {
		t.Fatalf("signup: %v", err)
	}
	ctx := context.Background()

	f.disp.fail = true
	res, err := f.svc.Reminders.RunSweep(ctx, now)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if res.Failed != 1 || res.Sent != 0 {
		t.Fatalf("failing sweep = %+v", res)
	}

	f.disp.fail = false
	res, err = f.svc.Reminders.RunSweep(ctx, now)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if res.Sent != 1 {
		t.Fatalf("retry sweep = %+v", res)
	}
}

func TestRunSweep_ConcurrentSweepsSendOnce(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, 50, now.Add(24*time.Hour+5*time.Minute))
	for i := 0; i < 20; i++ {
		if _, err := f.signup(slotID, 1); err != nil {
			t.Fatalf("signup: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Reminders.RunSweep(context.Background(), now)
		}()
	}
	wg.Wait()

	if got := f.disp.reminderCount(); got != 20 {
		t.Fatalf("reminders sent = %d, want 20", got)
	}
}
