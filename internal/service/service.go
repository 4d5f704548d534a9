package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/notify"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
)

// ErrForbidden is returned for any mutation the actor may not perform. It is
// also returned when the target does not exist so callers cannot discover ids.
var ErrForbidden = errors.New("forbidden")

type CapacityError struct {
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough spots available: requested %d, remaining %d", e.Requested, e.Remaining)
}

// OccupancyError refuses a capacity that would fall below the spots already
// taken in a slot.
type OccupancyError struct {
	Occupied  int
	Requested int
}

func (e *OccupancyError) Error() string {
	return fmt.Sprintf("capacity %d is below current occupancy %d", e.Requested, e.Occupied)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

const (
	DefaultReminderLead   = 24 * time.Hour
	DefaultReminderWindow = time.Hour
	tokenAttempts         = 3
)

type Config struct {
	ReminderLead     time.Duration
	ReminderWindow   time.Duration
	SweepConcurrency int
	Now              func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ReminderLead <= 0 {
		c.ReminderLead = DefaultReminderLead
	}
	if c.ReminderWindow <= 0 {
		c.ReminderWindow = DefaultReminderWindow
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = 8
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type Service struct {
	Slots         *SlotService
	Signups       *SignupService
	Cancellations *CancellationService
	Reminders     *ReminderService
}

// New wires every service over one repository. events receives confirmation
// and cancellation notices; reminders is used by the sweep, which must see the
// real delivery result before it marks a signup.
func New(r repo.Repository, events, reminders notify.Dispatcher, log *zerolog.Logger, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		Slots:         NewSlotService(r, log, cfg.Now),
		Signups:       NewSignupService(r, events, log, cfg.Now),
		Cancellations: NewCancellationService(r, events, log),
		Reminders:     NewReminderService(r, reminders, log, cfg),
	}
}

// ownerName resolves a slot owner's display name for emails. A missing owner
// yields an empty name rather than an error.
func ownerName(ctx context.Context, r repo.Repository, log *zerolog.Logger, ownerID string) string {
	u, err := r.GetUser(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, repo.ErrUserNotFound) {
			log.Warn().Err(err).Str("user_id", ownerID).Msg("failed to resolve slot owner")
		}
		return ""
	}
	return u.DisplayName()
}
